// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hwdesc

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/ph2/chip"
	"github.com/go-lpc/ph2/internal/fakeboard"
	"github.com/go-lpc/ph2/reg"
)

func TestLoad(t *testing.T) {
	setup, err := Load("testdata/setup.yaml")
	if err != nil {
		t.Fatalf("could not load setup: %+v", err)
	}

	if got, want := setup.Readout.Poll, 5*time.Millisecond; got != want {
		t.Fatalf("invalid poll period: got=%v, want=%v", got, want)
	}
	if got, want := setup.Readout.MaxBlock, defaultMaxBlock; got != want {
		t.Fatalf("invalid max block: got=%v, want=%v", got, want)
	}
	if got, want := len(setup.Boards), 2; got != want {
		t.Fatalf("invalid number of boards: got=%d, want=%d", got, want)
	}

	brd, ok := setup.Board(2)
	if !ok {
		t.Fatalf("could not find board 2")
	}
	if got, want := brd.Device, "/dev/uio1"; got != want {
		t.Fatalf("invalid device: got=%q, want=%q", got, want)
	}
	if got, want := brd.Size, 0x10000; got != want {
		t.Fatalf("invalid size: got=0x%x, want=0x%x", got, want)
	}
	if _, ok := setup.Board(3); ok {
		t.Fatalf("unexpected board 3")
	}

	want := []reg.Address{
		{Board: 1, FrontEnd: 0, Chip: 0},
		{Board: 1, FrontEnd: 0, Chip: 1},
		{Board: 1, FrontEnd: 0, Chip: 8},
		{Board: 2, FrontEnd: 3, Chip: 0},
	}
	if got := setup.Addresses(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid addresses:\ngot= %v\nwant=%v", got, want)
	}

	if got, want := setup.Path("cbc.txt"), filepath.Join("testdata", "cbc.txt"); got != want {
		t.Fatalf("invalid path: got=%q, want=%q", got, want)
	}
	if got, want := setup.Path("/abs/cbc.txt"), "/abs/cbc.txt"; got != want {
		t.Fatalf("invalid path: got=%q, want=%q", got, want)
	}

	tbl, err := setup.ReadAddrTable()
	if err != nil {
		t.Fatalf("could not read address table: %+v", err)
	}
	if _, ok := tbl.Lookup("readout.fifo"); !ok {
		t.Fatalf("could not find readout.fifo")
	}
}

func TestInstall(t *testing.T) {
	setup, err := Load("testdata/setup.yaml")
	if err != nil {
		t.Fatalf("could not load setup: %+v", err)
	}

	ci := chip.New(fakeboard.New(chip.CBC.Codec()), nil)
	err = setup.Install(ci)
	if err != nil {
		t.Fatalf("could not install setup: %+v", err)
	}

	if got, want := ci.Chips(), setup.Addresses(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid chips:\ngot= %v\nwant=%v", got, want)
	}

	for _, tc := range []struct {
		addr reg.Address
		want uint32
	}{
		{reg.Address{Board: 1, FrontEnd: 0, Chip: 0}, 0x40},
		{reg.Address{Board: 1, FrontEnd: 0, Chip: 1}, 0x80},
		{reg.Address{Board: 2, FrontEnd: 3, Chip: 0}, 0x40},
	} {
		d, ok := ci.Register(tc.addr, "VCth1")
		if !ok {
			t.Fatalf("%v: could not find VCth1", tc.addr)
		}
		if got, want := d.Value, tc.want; got != want {
			t.Fatalf("%v: invalid VCth1: got=0x%x, want=0x%x", tc.addr, got, want)
		}
	}

	cic := reg.Address{Board: 1, FrontEnd: 0, Chip: 8}
	if _, ok := ci.Register(cic, "FE_ENABLE"); !ok {
		t.Fatalf("could not find CIC register")
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no-board",
			yaml: "addrtable: fc7.xml\n",
			want: "hwdesc: no board declared",
		},
		{
			name: "unknown-field",
			yaml: "boards: [{id: 1, slot: 2}]\n",
			want: "hwdesc: could not unmarshal setup",
		},
		{
			name: "dup-board",
			yaml: "boards: [{id: 1}, {id: 1}]\n",
			want: "hwdesc: duplicate board 1",
		},
		{
			name: "bad-size",
			yaml: "boards: [{id: 1, device: /dev/uio0}]\n",
			want: "hwdesc: board 1: invalid mapping size 0",
		},
		{
			name: "dup-fe",
			yaml: "boards: [{id: 1, frontends: [{id: 2}, {id: 2}]}]\n",
			want: "hwdesc: board 1: duplicate front-end 2",
		},
		{
			name: "dup-chip",
			yaml: "boards: [{id: 1, frontends: [{id: 2, chips: [{id: 0, family: CBC, regfile: a.txt}, {id: 0, family: CBC, regfile: a.txt}]}]}]\n",
			want: "hwdesc: board 1: front-end 2: duplicate chip 0",
		},
		{
			name: "bad-family",
			yaml: "boards: [{id: 1, frontends: [{id: 2, chips: [{id: 0, family: XYZ, regfile: a.txt}]}]}]\n",
			want: "hwdesc: board 1: front-end 2: chip 0: ",
		},
		{
			name: "no-regfile",
			yaml: "boards: [{id: 1, frontends: [{id: 2, chips: [{id: 0, family: CBC}]}]}]\n",
			want: "hwdesc: board 1: front-end 2: chip 0: missing register file",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; !strings.HasPrefix(got, want) {
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
			}
		})
	}
}

func TestMapOverrideError(t *testing.T) {
	setup, err := Load("testdata/setup.yaml")
	if err != nil {
		t.Fatalf("could not load setup: %+v", err)
	}

	_, err = setup.Map(Chip{ID: 4, Family: "CBC", RegFile: "cbc.txt", Overrides: map[string]uint32{"VCth2": 0x7}})
	if err == nil {
		t.Fatalf("expected an overflow error")
	}

	_, err = setup.Map(Chip{ID: 4, Family: "CBC", RegFile: "cbc.txt", Overrides: map[string]uint32{"NoSuchReg": 1}})
	if err == nil {
		t.Fatalf("expected an unknown-register error")
	}

	_, err = setup.Map(Chip{ID: 4, Family: "CBC", RegFile: "missing.txt"})
	if err == nil {
		t.Fatalf("expected a missing-file error")
	}
}
