// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ph2-regsh is an interactive shell to read and write the
// registers of the chips of a setup.
//
// Usage: ph2-regsh [OPTIONS] setup.yaml
//
// Example:
//
//	$> ph2-regsh -dry-run ./setup.yaml
//	ph2> chips
//	board=1/fe=0/chip=0 CBC
//	ph2> read 1/0/0 VCth1
//	VCth1 = 0x40
//	ph2> write 1/0/0 VCth1 0x80
//	ph2> field 1/0/0 TriggerLatency
//	TriggerLatency = 200 (0xc8)
package main // import "github.com/go-lpc/ph2/cmd/ph2-regsh"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/chip"
	"github.com/go-lpc/ph2/daq"
	"github.com/go-lpc/ph2/hwdesc"
)

func main() {
	log.SetPrefix("ph2-regsh: ")
	log.SetFlags(0)

	var (
		dry  = flag.Bool("dry-run", false, "run against an in-memory emulation of the setup")
		hist = flag.String("history", filepath.Join(os.TempDir(), ".ph2-regsh.history"), "path to history file")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: ph2-regsh [OPTIONS] setup.yaml

ex:
 $> ph2-regsh -dry-run ./setup.yaml

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing setup file")
	}

	sh, err := newShell(flag.Arg(0), *dry)
	if err != nil {
		log.Fatalf("could not create shell: %+v", err)
	}
	defer sh.Close()

	err = run(sh, *hist)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(sh *shell, hist string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	ctx := context.Background()
	for {
		line, err := term.Prompt("ph2> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(ctx, os.Stdout, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Printf("error: %v\n", err)
		}
	}
}

func openLink(setup *hwdesc.Setup, dry bool) (board.Link, error) {
	if dry {
		return daq.DryRunLink(setup, nil, nil)
	}

	tbl, err := setup.ReadAddrTable()
	if err != nil {
		return nil, fmt.Errorf("could not read address table: %w", err)
	}
	return daq.OpenLinks(setup, tbl, log.New(os.Stdout, "ph2-regsh: ", 0))
}

func newShell(fname string, dry bool) (*shell, error) {
	setup, err := hwdesc.Load(fname)
	if err != nil {
		return nil, fmt.Errorf("could not load setup: %w", err)
	}

	link, err := openLink(setup, dry)
	if err != nil {
		return nil, fmt.Errorf("could not open board link: %w", err)
	}

	ci := chip.New(link, log.New(os.Stdout, "ph2-regsh: ", 0))
	err = setup.Install(ci)
	if err != nil {
		if c, ok := link.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("could not install chips: %w", err)
	}

	return &shell{setup: setup, link: link, ci: ci}, nil
}
