// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ph2-lcio converts a raw event file to an LCIO one, and back.
//
// Input files with a .lcio extension are converted to raw event files,
// other input files are converted to LCIO.
package main // import "github.com/go-lpc/ph2/cmd/ph2-lcio"

import (
	"bufio"
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go-hep.org/x/hep/lcio"

	"github.com/go-lpc/ph2/event"
	"github.com/go-lpc/ph2/internal/xcnv"
)

var (
	msg = log.New(os.Stdout, "ph2-lcio: ", 0)
)

func main() {
	var (
		oname = flag.String("o", "", "path to output file")
		compr = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		board = flag.Uint("board", 0, "id of the board the data was read out from")
		run   = flag.Int("run", -1, "run number (default: inferred from the input file name)")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: ph2-lcio [OPTIONS] file.raw|file.lcio

ex:
 $> ph2-lcio -o out.lcio -lvl=9 -board=1 ./run_000042.raw
 $> ph2-lcio -o out.lcio -run=43 ./data.raw
 $> ph2-lcio -o out.raw ./run_000042.lcio

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input file")
	}

	var (
		fname = flag.Arg(0)
		err   error
	)
	switch {
	case strings.HasSuffix(fname, ".lcio"):
		if *oname == "" {
			*oname = "out.raw"
		}
		err = lcio2raw(*oname, fname)
	default:
		if *oname == "" {
			*oname = "out.lcio"
		}
		err = raw2lcio(*oname, *compr, uint16(*board), *run, fname)
	}
	if err != nil {
		msg.Fatalf("could not convert %q: %+v", fname, err)
	}
}

func raw2lcio(oname string, lvl int, board uint16, irun int, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open raw file: %w", err)
	}
	defer f.Close()

	run := int32(irun)
	if irun < 0 {
		run, err = runNbrFrom(fname)
		if err != nil {
			return fmt.Errorf("could not infer run from %q: %w", fname, err)
		}
	}

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	dec := event.NewDecoder(board, msg)
	err = xcnv.RAW2LCIO(w, event.NewReader(bufio.NewReader(f), dec), dec, board, run, msg)
	if err != nil {
		return fmt.Errorf("could not convert raw file to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

func lcio2raw(oname, fname string) error {
	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	f, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output raw file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	err = xcnv.LCIO2RAW(w, r, 100, msg)
	if err != nil {
		return fmt.Errorf("could not convert LCIO file to raw: %w", err)
	}

	err = w.Flush()
	if err != nil {
		return fmt.Errorf("could not flush output raw file: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output raw file: %w", err)
	}

	return nil
}

func runNbrFrom(fname string) (int32, error) {
	var (
		name = filepath.Base(fname)
		run  int32
	)
	_, err := fmt.Sscanf(name, "run_%d.raw", &run)
	return run, err
}
