// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-hep.org/x/hep/lcio"

	"github.com/go-lpc/ph2/event"
	"github.com/go-lpc/ph2/internal/xcnv"
)

var scenario = []uint32{
	0xffff0005,
	0x00010001,
	0x2a000007,
	0x00000100,
	0xa0000002,
	0, 0, 0, 0, 0, 0, 0,
	0x51230001,
	0x000001ff,
	0x680a0000,
	0x00000000,
	0, 0, 0, 0,
}

func writeFile(t *testing.T, fname string, frames ...[]uint32) {
	t.Helper()

	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create raw file: %+v", err)
	}
	defer f.Close()

	enc := event.NewEncoder(f)
	for _, words := range frames {
		err = enc.Write(words)
		if err != nil {
			t.Fatalf("could not write frame: %+v", err)
		}
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("could not close raw file: %+v", err)
	}
}

func TestDump(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "run.raw")
	writeFile(t, fname, scenario)

	xmain(io.Discard, []string{"-board=1", "-clusters", fname})
}

func TestProcess(t *testing.T) {
	tmp := t.TempDir()

	var hits event.HitVector
	hits.Set(0)
	hits.Set(2)
	withHits, err := event.Frame(event.Event{
		TriggerID: 2,
		Counter:   9,
		BxCounter: 0x200,
		FEs: []event.FrontEnd{
			{
				ID: 1,
				Chips: []event.ChipData{
					{Pipeline: 18, L1ID: 52, Hits: hits},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("could not build frame: %+v", err)
	}

	for _, tc := range []struct {
		name     string
		frames   [][]uint32
		clusters bool
		want     string
		err      bool
	}{
		{
			name:   "stubs",
			frames: [][]uint32{scenario},
			want: `=== board 1, event 7 ===
trigger:          1
TDC:           0x2a
BX counter:     256
size:            20
anomalies:        0
FE 0: bx-id=0x123 status=0x1ff
  stubs: [{chip=0 seed=64 bend=0x5}]
`,
		},
		{
			name:     "hits",
			frames:   [][]uint32{withHits},
			clusters: true,
			want: `=== board 1, event 9 ===
trigger:          2
TDC:           0x00
BX counter:     512
size:            20
anomalies:        0
FE 1: bx-id=0x000 status=0x000
  chip 3: err=0 pipe=18 l1=52 hits=[0 2]
  clusters: [{side=0 first=381 width=2}]
`,
		},
		{
			name:   "invalid-marker",
			frames: [][]uint32{{0xdead0001, 0, 0, 0}},
			err:    true,
		},
		{
			name:   "truncated",
			frames: [][]uint32{scenario[:10]},
			err:    true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(tmp, tc.name+".raw")
			writeFile(t, fname, tc.frames...)

			out := new(strings.Builder)
			err := process(out, fname, 1, tc.clusters)
			switch {
			case err != nil && !tc.err:
				t.Fatalf("could not ph2-dump: %+v", err)
			case err == nil && tc.err:
				t.Fatalf("expected an error")
			case err == nil:
				if got, want := out.String(), tc.want; got != want {
					t.Fatalf("invalid ph2-dump output:\ngot:\n%s\nwant:\n%s\n", got, want)
				}
			}
		})
	}

	err = process(io.Discard, filepath.Join(tmp, "not-there.raw"), 1, false)
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestProcessLCIO(t *testing.T) {
	tmp := t.TempDir()

	raw := filepath.Join(tmp, "run.raw")
	writeFile(t, raw, scenario, scenario)

	want := new(strings.Builder)
	err := process(want, raw, 1, true)
	if err != nil {
		t.Fatalf("could not dump raw file: %+v", err)
	}

	fname := filepath.Join(tmp, "run.lcio")
	{
		f, err := os.Open(raw)
		if err != nil {
			t.Fatalf("could not open raw file: %+v", err)
		}
		defer f.Close()

		w, err := lcio.Create(fname)
		if err != nil {
			t.Fatalf("could not create LCIO file: %+v", err)
		}
		defer w.Close()

		var (
			msg = log.New(io.Discard, "", 0)
			dec = event.NewDecoder(1, msg)
		)
		err = xcnv.RAW2LCIO(w, event.NewReader(f, dec), dec, 1, 42, msg)
		if err != nil {
			t.Fatalf("could not convert raw file: %+v", err)
		}
		err = w.Close()
		if err != nil {
			t.Fatalf("could not close LCIO file: %+v", err)
		}
	}

	got := new(strings.Builder)
	err = process(got, fname, 1, true)
	if err != nil {
		t.Fatalf("could not dump LCIO file: %+v", err)
	}

	if got.String() != want.String() {
		t.Fatalf("invalid ph2-dump output:\ngot:\n%s\nwant:\n%s\n", got, want)
	}

	err = process(io.Discard, filepath.Join(tmp, "not-there.lcio"), 1, false)
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
