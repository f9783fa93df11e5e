// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ph2-dump decodes and displays raw event files.
// Event frames embedded in LCIO files (with a .lcio extension) are
// displayed as well.
//
// Usage: ph2-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> ph2-dump -board=1 ./testdata/run_000042.raw
//	=== board 1, event 7 ===
//	trigger:          1
//	TDC:           0x2a
//	BX counter:     256
//	size:            20
//	anomalies:        0
//	FE 0: bx-id=0x123 status=0x1ff
//	  stubs: [{chip=0 seed=64 bend=0x5}]
//	[...]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"go-hep.org/x/hep/lcio"

	"github.com/go-lpc/ph2/event"
	"github.com/go-lpc/ph2/internal/xcnv"
)

func main() {
	log.SetPrefix("ph2-dump: ")
	log.SetFlags(0)

	xmain(os.Stdout, os.Args[1:])
}

func xmain(stdout io.Writer, args []string) {
	var (
		fset     = flag.NewFlagSet("ph2-dump", flag.ExitOnError)
		board    = fset.Uint("board", 0, "id of the board the data was read out from")
		clusters = fset.Bool("clusters", false, "display clusters")
	)

	fset.Usage = func() {
		fmt.Printf(`ph2-dump decodes and displays raw event files.

Usage: ph2-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> ph2-dump -board=1 ./testdata/run_000042.raw
 === board 1, event 7 ===
 trigger:          1
 TDC:           0x2a
 BX counter:     256
 size:            20
 anomalies:        0
 FE 0: bx-id=0x123 status=0x1ff
   stubs: [{chip=0 seed=64 bend=0x5}]
 [...]

Options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input raw file")
	}

	for _, fname := range fset.Args() {
		err := process(stdout, fname, uint16(*board), *clusters)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, board uint16, clusters bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	src, wait, err := open(fname)
	if err != nil {
		return err
	}
	defer src.Close()

	msg := log.New(wbuf, "ph2-dump: ", 0)
	r := event.NewReader(bufio.NewReader(src), event.NewDecoder(board, msg))
loop:
	for {
		evt, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode event: %w", err)
		}
		dump(wbuf, &evt, clusters)
	}

	err = wait()
	if err != nil {
		return fmt.Errorf("could not extract frames from LCIO file: %w", err)
	}

	return nil
}

// open returns a stream of raw frames read from fname.
// The returned function waits for the extraction of frames from LCIO
// files to complete.
func open(fname string) (io.ReadCloser, func() error, error) {
	if filepath.Ext(fname) != ".lcio" {
		f, err := os.Open(fname)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open %q: %w", fname, err)
		}
		return f, func() error { return nil }, nil
	}

	r, err := lcio.Open(fname)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open LCIO file %q: %w", fname, err)
	}

	var (
		rp, wp = io.Pipe()
		errc   = make(chan error, 1)
	)
	go func() {
		defer r.Close()
		err := xcnv.LCIO2RAW(wp, r, 100, log.New(io.Discard, "", 0))
		_ = wp.CloseWithError(err)
		errc <- err
	}()

	return rp, func() error { return <-errc }, nil
}

func dump(w io.Writer, evt *event.Event, clusters bool) {
	fmt.Fprintf(w, "=== board %d, event %d ===\n", evt.Board, evt.Counter)
	fmt.Fprintf(w, "trigger:    %7d\n", evt.TriggerID)
	fmt.Fprintf(w, "TDC:        %7s\n", fmt.Sprintf("0x%02x", evt.TDC))
	fmt.Fprintf(w, "BX counter: %7d\n", evt.BxCounter)
	fmt.Fprintf(w, "size:       %7d\n", evt.Size)
	fmt.Fprintf(w, "anomalies:  %7d\n", evt.Anomalies)

	for _, id := range evt.FrontEnds() {
		fe, _ := evt.FrontEnd(id)
		fmt.Fprintf(w, "FE %d: bx-id=0x%03x status=0x%03x\n", id, fe.BxID, fe.Status)
		for chip := uint8(0); chip < event.NChips; chip++ {
			slot, _ := event.SlotOf(chip)
			if slot.Index() >= len(fe.Chips) {
				continue
			}
			fmt.Fprintf(w, "  chip %d: err=%d pipe=%d l1=%d hits=%v\n",
				chip,
				evt.Error(id, chip), evt.PipelineAddress(id, chip), evt.L1ID(id, chip),
				evt.Hits(id, chip),
			)
		}
		if len(fe.Stubs) > 0 {
			fmt.Fprintf(w, "  stubs: %v\n", fe.Stubs)
		}
		if clusters {
			fmt.Fprintf(w, "  clusters: %v\n", evt.Clusterize(id))
		}
	}
}
