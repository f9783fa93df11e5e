// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"encoding/xml"
	"fmt"
	"io"
	"math/bits"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Mode describes how successive words of a block access are addressed.
type Mode uint8

const (
	// Single is a single register.
	Single Mode = iota
	// Incremental blocks span consecutive addresses.
	Incremental
	// NonIncremental blocks read or write the same address (FIFO).
	NonIncremental
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Incremental:
		return "incremental"
	case NonIncremental:
		return "non-incremental"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Entry is a resolved node of an address table.
type Entry struct {
	Name string
	Addr uint32 // word address
	Mask uint32
	Mode Mode
	Size int // number of words, for block nodes
}

// Shift returns the position of the least significant bit of the mask.
func (e Entry) Shift() uint {
	if e.Mask == 0 {
		return 0
	}
	return uint(bits.TrailingZeros32(e.Mask))
}

// AddrTable maps dotted register names to board addresses.
type AddrTable struct {
	nodes map[string]Entry
}

type xmlNode struct {
	ID      string    `xml:"id,attr"`
	Address string    `xml:"address,attr"`
	Mask    string    `xml:"mask,attr"`
	Mode    string    `xml:"mode,attr"`
	Size    string    `xml:"size,attr"`
	Nodes   []xmlNode `xml:"node"`
}

// ParseAddrTable parses an uHAL-style XML address table.
//
// Addresses of nested nodes are relative to their parent.
// The id of the top-level node is not part of the register names.
func ParseAddrTable(r io.Reader) (*AddrTable, error) {
	var root xmlNode
	err := xml.NewDecoder(r).Decode(&root)
	if err != nil {
		return nil, fmt.Errorf("board: could not decode address table: %w", err)
	}

	tbl := &AddrTable{nodes: make(map[string]Entry)}
	for _, n := range root.Nodes {
		err = tbl.add("", 0, n)
		if err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// ReadAddrTable reads the named XML address table file.
func ReadAddrTable(fname string) (*AddrTable, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("board: could not open address table: %w", err)
	}
	defer f.Close()

	return ParseAddrTable(f)
}

func (tbl *AddrTable) add(prefix string, base uint32, n xmlNode) error {
	if n.ID == "" {
		return fmt.Errorf("board: node with no id under %q", prefix)
	}
	name := n.ID
	if prefix != "" {
		name = prefix + "." + n.ID
	}
	if _, dup := tbl.nodes[name]; dup {
		return fmt.Errorf("board: duplicate node %q", name)
	}

	e := Entry{
		Name: name,
		Addr: base,
		Mask: 0xffffffff,
		Size: 1,
	}
	if n.Address != "" {
		v, err := strconv.ParseUint(n.Address, 0, 32)
		if err != nil {
			return fmt.Errorf("board: invalid address %q of node %q: %w", n.Address, name, err)
		}
		e.Addr += uint32(v)
	}
	if n.Mask != "" {
		v, err := strconv.ParseUint(n.Mask, 0, 32)
		if err != nil {
			return fmt.Errorf("board: invalid mask %q of node %q: %w", n.Mask, name, err)
		}
		if v == 0 {
			return fmt.Errorf("board: null mask for node %q", name)
		}
		e.Mask = uint32(v)
	}
	switch strings.ToLower(n.Mode) {
	case "", "single":
		e.Mode = Single
	case "incremental", "block":
		e.Mode = Incremental
	case "non-incremental", "port", "fifo":
		e.Mode = NonIncremental
	default:
		return fmt.Errorf("board: invalid mode %q of node %q", n.Mode, name)
	}
	if n.Size != "" {
		v, err := strconv.ParseUint(n.Size, 0, 32)
		if err != nil {
			return fmt.Errorf("board: invalid size %q of node %q: %w", n.Size, name, err)
		}
		e.Size = int(v)
	}
	tbl.nodes[name] = e

	for _, c := range n.Nodes {
		err := tbl.add(name, e.Addr, c)
		if err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the entry of the named register.
func (tbl *AddrTable) Lookup(name string) (Entry, bool) {
	e, ok := tbl.nodes[name]
	return e, ok
}

// Names returns the sorted list of register names.
func (tbl *AddrTable) Names() []string {
	names := make([]string, 0, len(tbl.nodes))
	for k := range tbl.nodes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
