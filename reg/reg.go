// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reg describes the registers of front-end chips: symbolic
// register descriptors, per-chip register maps and the addresses used
// to route register operations to a chip.
package reg // import "github.com/go-lpc/ph2/reg"

import (
	"fmt"
	"sort"
)

// Descriptor describes a single chip register.
// A register is identified by its (Page, Addr) pair within a chip.
type Descriptor struct {
	Page  uint8
	Addr  uint16
	Width uint8  // number of significant bits
	Value uint32 // current value
}

// Mask returns the mask of the significant bits of the register.
func (d Descriptor) Mask() uint32 {
	if d.Width >= 32 {
		return 0xffffffff
	}
	return (1 << d.Width) - 1
}

// Fits returns whether v can be stored in the register.
func (d Descriptor) Fits(v uint32) bool {
	return v&^d.Mask() == 0
}

// With returns a copy of the descriptor holding value v.
func (d Descriptor) With(v uint32) Descriptor {
	d.Value = v
	return d
}

func (d Descriptor) String() string {
	return fmt.Sprintf("{page=%d addr=0x%02x width=%d value=0x%02x}", d.Page, d.Addr, d.Width, d.Value)
}

// Address locates a chip behind a board.
type Address struct {
	Board    uint16 // board ID
	FrontEnd uint8  // front-end (hybrid) ID
	Chip     uint8  // chip ID on the front-end
}

func (a Address) String() string {
	return fmt.Sprintf("board=%d/fe=%d/chip=%d", a.Board, a.FrontEnd, a.Chip)
}

// Map maps register names to their descriptors, for a single chip.
type Map map[string]Descriptor

// Get returns the descriptor named name.
func (m Map) Get(name string) (Descriptor, bool) {
	d, ok := m[name]
	return d, ok
}

// Set stores the value v into the register named name.
func (m Map) Set(name string, v uint32) error {
	d, ok := m[name]
	if !ok {
		return fmt.Errorf("reg: unknown register %q", name)
	}
	if !d.Fits(v) {
		return fmt.Errorf("reg: value 0x%x overflows %d-bit register %q", v, d.Width, name)
	}
	d.Value = v
	m[name] = d
	return nil
}

// Names returns the sorted list of register names.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Ordered returns the register names sorted by (page, address).
func (m Map) Ordered() []string {
	names := m.Names()
	sort.SliceStable(names, func(i, j int) bool {
		a := m[names[i]]
		b := m[names[j]]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.Addr < b.Addr
	})
	return names
}

// ByAddr returns the name of the register at (page, addr).
func (m Map) ByAddr(page uint8, addr uint16) (string, bool) {
	for k, d := range m {
		if d.Page == page && d.Addr == addr {
			return k, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the map.
func (m Map) Clone() Map {
	o := make(Map, len(m))
	for k, v := range m {
		o[k] = v
	}
	return o
}
