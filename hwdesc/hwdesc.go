// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hwdesc describes the hardware layout of a readout setup:
// the FPGA boards, their front ends and the chips mounted on them.
//
// A setup is described by a YAML document:
//
//	addrtable: fc7.xml
//	readout:
//	  poll: 10ms
//	boards:
//	  - id: 1
//	    device: /dev/uio0
//	    size: 0x10000
//	    frontends:
//	      - id: 0
//	        chips:
//	          - {id: 0, family: CBC, regfile: cbc.txt, overrides: {VCth1: 0x80}}
//
// Relative file names are resolved against the directory of the
// description file.
package hwdesc // import "github.com/go-lpc/ph2/hwdesc"

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/chip"
	"github.com/go-lpc/ph2/reg"
)

// Setup describes a complete readout setup.
type Setup struct {
	AddrTable string  `yaml:"addrtable"`
	Readout   Readout `yaml:"readout"`
	Boards    []Board `yaml:"boards"`

	dir string
}

// Readout holds the readout loop settings.
type Readout struct {
	Poll     time.Duration `yaml:"poll"`     // polling period of the readout FIFO
	MaxBlock int           `yaml:"maxblock"` // maximum number of words read at once
}

// Board describes an FPGA board.
type Board struct {
	ID        uint16     `yaml:"id"`
	Device    string     `yaml:"device"` // memory-mapped device; empty for a dry run
	Offset    int64      `yaml:"offset"`
	Size      int        `yaml:"size"`
	FrontEnds []FrontEnd `yaml:"frontends"`
}

// FrontEnd describes a front-end hybrid connected to a board.
type FrontEnd struct {
	ID    uint8  `yaml:"id"`
	Chips []Chip `yaml:"chips"`
}

// Chip describes a chip mounted on a front end.
type Chip struct {
	ID        uint8             `yaml:"id"`
	Family    string            `yaml:"family"`
	RegFile   string            `yaml:"regfile"`
	Overrides map[string]uint32 `yaml:"overrides"`
}

const (
	defaultPoll     = 10 * time.Millisecond
	defaultMaxBlock = 1 << 16
)

// Load loads the setup described by the YAML file fname.
func Load(fname string) (*Setup, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("hwdesc: could not read %q: %w", fname, err)
	}

	setup, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("hwdesc: could not decode %q: %w", fname, err)
	}
	setup.dir = filepath.Dir(fname)

	return setup, nil
}

// Decode decodes and validates a setup description from r.
func Decode(r io.Reader) (*Setup, error) {
	var setup Setup
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&setup)
	if err != nil {
		return nil, fmt.Errorf("hwdesc: could not unmarshal setup: %w", err)
	}

	if setup.Readout.Poll <= 0 {
		setup.Readout.Poll = defaultPoll
	}
	if setup.Readout.MaxBlock <= 0 {
		setup.Readout.MaxBlock = defaultMaxBlock
	}

	err = setup.validate()
	if err != nil {
		return nil, err
	}

	return &setup, nil
}

func (setup *Setup) validate() error {
	if len(setup.Boards) == 0 {
		return fmt.Errorf("hwdesc: no board declared")
	}

	boards := make(map[uint16]struct{}, len(setup.Boards))
	for _, brd := range setup.Boards {
		if _, dup := boards[brd.ID]; dup {
			return fmt.Errorf("hwdesc: duplicate board %d", brd.ID)
		}
		boards[brd.ID] = struct{}{}
		if brd.Device != "" && brd.Size <= 0 {
			return fmt.Errorf("hwdesc: board %d: invalid mapping size %d", brd.ID, brd.Size)
		}

		fes := make(map[uint8]struct{}, len(brd.FrontEnds))
		for _, fe := range brd.FrontEnds {
			if _, dup := fes[fe.ID]; dup {
				return fmt.Errorf("hwdesc: board %d: duplicate front-end %d", brd.ID, fe.ID)
			}
			fes[fe.ID] = struct{}{}

			chips := make(map[uint8]struct{}, len(fe.Chips))
			for _, c := range fe.Chips {
				if _, dup := chips[c.ID]; dup {
					return fmt.Errorf(
						"hwdesc: board %d: front-end %d: duplicate chip %d",
						brd.ID, fe.ID, c.ID,
					)
				}
				chips[c.ID] = struct{}{}

				_, err := chip.ParseFamily(c.Family)
				if err != nil {
					return fmt.Errorf(
						"hwdesc: board %d: front-end %d: chip %d: %w",
						brd.ID, fe.ID, c.ID, err,
					)
				}
				if c.RegFile == "" {
					return fmt.Errorf(
						"hwdesc: board %d: front-end %d: chip %d: missing register file",
						brd.ID, fe.ID, c.ID,
					)
				}
			}
		}
	}
	return nil
}

// Path resolves fname against the directory of the description file.
func (setup *Setup) Path(fname string) string {
	if fname == "" || filepath.IsAbs(fname) || setup.dir == "" {
		return fname
	}
	return filepath.Join(setup.dir, fname)
}

// Board returns the description of the board with the provided ID.
func (setup *Setup) Board(id uint16) (Board, bool) {
	for _, brd := range setup.Boards {
		if brd.ID == id {
			return brd, true
		}
	}
	return Board{}, false
}

// Addresses returns the sorted addresses of all the declared chips.
func (setup *Setup) Addresses() []reg.Address {
	var addrs []reg.Address
	for _, brd := range setup.Boards {
		for _, fe := range brd.FrontEnds {
			for _, c := range fe.Chips {
				addrs = append(addrs, reg.Address{Board: brd.ID, FrontEnd: fe.ID, Chip: c.ID})
			}
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		ai, aj := addrs[i], addrs[j]
		switch {
		case ai.Board != aj.Board:
			return ai.Board < aj.Board
		case ai.FrontEnd != aj.FrontEnd:
			return ai.FrontEnd < aj.FrontEnd
		default:
			return ai.Chip < aj.Chip
		}
	})
	return addrs
}

// ReadAddrTable reads the address table of the setup.
func (setup *Setup) ReadAddrTable() (*board.AddrTable, error) {
	if setup.AddrTable == "" {
		return nil, fmt.Errorf("hwdesc: no address table declared")
	}
	return board.ReadAddrTable(setup.Path(setup.AddrTable))
}

// Map reads the register map of the chip c, with its overrides applied.
func (setup *Setup) Map(c Chip) (reg.Map, error) {
	m, err := reg.ReadFile(setup.Path(c.RegFile))
	if err != nil {
		return nil, fmt.Errorf("hwdesc: could not read register file of chip %d: %w", c.ID, err)
	}

	names := make([]string, 0, len(c.Overrides))
	for name := range c.Overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err = m.Set(name, c.Overrides[name])
		if err != nil {
			return nil, fmt.Errorf("hwdesc: could not override chip %d: %w", c.ID, err)
		}
	}
	return m, nil
}

// Install registers all the chips of the setup with the provided chip
// interface, loading their register maps.
func (setup *Setup) Install(ci *chip.Interface) error {
	for _, brd := range setup.Boards {
		for _, fe := range brd.FrontEnds {
			for _, c := range fe.Chips {
				fam, err := chip.ParseFamily(c.Family)
				if err != nil {
					return fmt.Errorf("hwdesc: could not parse family of chip %d: %w", c.ID, err)
				}
				m, err := setup.Map(c)
				if err != nil {
					return err
				}
				ci.Add(reg.Address{Board: brd.ID, FrontEnd: fe.ID, Chip: c.ID}, fam, m)
			}
		}
	}
	return nil
}
