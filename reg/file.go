// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultWidth is the width of registers whose description does not
// declare one.
const DefaultWidth = 8

// ReadMap reads a register map from a text description.
//
// Each non-comment line describes one register:
//
//	Name Page Addr Default Value [Width]
//
// Numbers may be given in decimal or with a 0x prefix. Lines starting
// with '#' or '*' are comments. The Value column is loaded in the map.
func ReadMap(r io.Reader) (Map, error) {
	var (
		m    = make(Map)
		sc   = bufio.NewScanner(r)
		line int
	)
	for sc.Scan() {
		line++
		txt := strings.TrimSpace(sc.Text())
		if txt == "" || strings.HasPrefix(txt, "#") || strings.HasPrefix(txt, "*") {
			continue
		}
		toks := strings.Fields(txt)
		if len(toks) != 5 && len(toks) != 6 {
			return nil, fmt.Errorf("reg: invalid register description line:%d: %q", line, txt)
		}
		name := toks[0]
		page, err := strconv.ParseUint(toks[1], 0, 8)
		if err != nil {
			return nil, fmt.Errorf("reg: could not parse page %q line:%d: %w", toks[1], line, err)
		}
		addr, err := strconv.ParseUint(toks[2], 0, 16)
		if err != nil {
			return nil, fmt.Errorf("reg: could not parse address %q line:%d: %w", toks[2], line, err)
		}
		val, err := strconv.ParseUint(toks[4], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("reg: could not parse value %q line:%d: %w", toks[4], line, err)
		}
		width := uint64(DefaultWidth)
		if len(toks) == 6 {
			width, err = strconv.ParseUint(toks[5], 0, 8)
			if err != nil {
				return nil, fmt.Errorf("reg: could not parse width %q line:%d: %w", toks[5], line, err)
			}
		}

		if _, dup := m[name]; dup {
			return nil, fmt.Errorf("reg: duplicate register %q line:%d", name, line)
		}
		d := Descriptor{
			Page:  uint8(page),
			Addr:  uint16(addr),
			Width: uint8(width),
			Value: uint32(val),
		}
		if !d.Fits(d.Value) {
			return nil, fmt.Errorf("reg: value 0x%x overflows %d-bit register %q line:%d", d.Value, d.Width, name, line)
		}
		m[name] = d
	}

	err := sc.Err()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reg: could not scan register description: %w", err)
	}

	return m, nil
}

// ReadFile reads a register map from the named file.
func ReadFile(fname string) (Map, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("reg: could not open register file %q: %w", fname, err)
	}
	defer f.Close()

	m, err := ReadMap(f)
	if err != nil {
		return nil, fmt.Errorf("reg: could not read register file %q: %w", fname, err)
	}
	return m, nil
}

// WriteMap writes m in the text format understood by ReadMap,
// sorted by (page, address). The current values are written out as
// both the default and the value columns.
func WriteMap(w io.Writer, m Map) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "* %-38s %-6s %-6s %-6s %-6s %s\n", "RegName", "Page", "Addr", "Defval", "Value", "Width")
	for _, name := range m.Ordered() {
		d := m[name]
		fmt.Fprintf(bw, "%-40s 0x%02x   0x%02x   0x%02x   0x%02x   %d\n",
			name, d.Page, d.Addr, d.Value, d.Value, d.Width,
		)
	}
	return bw.Flush()
}
