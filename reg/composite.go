// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reg

import (
	"fmt"
)

// Part is the slice of a composite field stored in one register.
type Part struct {
	Reg   string // name of the register holding the part
	Lo    uint8  // position of the part's LSB inside the register
	Width uint8  // number of bits of the part
	From  uint8  // position of the part's LSB inside the composite value
}

// Mask returns the mask of the part inside its register.
func (p Part) Mask() uint32 {
	return ((1 << p.Width) - 1) << p.Lo
}

// Composite is a logical field whose bits are spread over one or more
// registers, possibly sharing those registers with other fields.
type Composite struct {
	Name  string
	Parts []Part
}

// Width returns the number of bits of the composite value.
func (c Composite) Width() uint8 {
	var n uint8
	for _, p := range c.Parts {
		if w := p.From + p.Width; w > n {
			n = w
		}
	}
	return n
}

// Update is a new value for a named register.
type Update struct {
	Name  string
	Value uint32
}

// Merge writes the low bits of v into parent, at the bit positions
// selected by mask, starting at bit shift.
// Bits of parent outside mask are preserved.
func Merge(parent, mask uint32, shift uint8, v uint32) uint32 {
	return (parent &^ mask) | ((v << shift) & mask)
}

// Split computes the register values needed to store v into the
// composite field c, given the current register values in m.
// m is not modified.
func Split(c Composite, v uint32, m Map) ([]Update, error) {
	if w := c.Width(); w < 32 && v>>w != 0 {
		return nil, fmt.Errorf("reg: value 0x%x overflows %d-bit field %q", v, w, c.Name)
	}

	var (
		ups = make([]Update, 0, len(c.Parts))
		cur = make(map[string]int, len(c.Parts))
	)
	for _, p := range c.Parts {
		d, ok := m[p.Reg]
		if !ok {
			return nil, fmt.Errorf("reg: field %q: unknown register %q", c.Name, p.Reg)
		}
		parent := d.Value
		i, seen := cur[p.Reg]
		if seen {
			parent = ups[i].Value
		}
		sub := (v >> p.From) & ((1 << p.Width) - 1)
		val := Merge(parent, p.Mask(), p.Lo, sub)
		if seen {
			ups[i].Value = val
			continue
		}
		cur[p.Reg] = len(ups)
		ups = append(ups, Update{Name: p.Reg, Value: val})
	}
	return ups, nil
}

// Join recombines the value of the composite field c from the register
// values in m.
func Join(c Composite, m Map) (uint32, error) {
	var v uint32
	for _, p := range c.Parts {
		d, ok := m[p.Reg]
		if !ok {
			return 0, fmt.Errorf("reg: field %q: unknown register %q", c.Name, p.Reg)
		}
		v |= ((d.Value & p.Mask()) >> p.Lo) << p.From
	}
	return v, nil
}

var composites = map[string]map[string]Composite{
	"CBC": {
		"TriggerLatency": {
			Name: "TriggerLatency",
			Parts: []Part{
				{Reg: "TriggerLatency1", Lo: 0, Width: 8, From: 0},
				{Reg: "FeCtrl&TrgLat2", Lo: 0, Width: 1, From: 8},
			},
		},
		"PtWidth": {
			Name:  "PtWidth",
			Parts: []Part{{Reg: "Pipe&StubInpSel&Ptwidth", Lo: 0, Width: 4}},
		},
		"StubLogic": {
			Name:  "StubLogic",
			Parts: []Part{{Reg: "Pipe&StubInpSel&Ptwidth", Lo: 4, Width: 2}},
		},
	},
	"CIC": {
		"BX0Delay": {
			Name: "BX0Delay",
			Parts: []Part{
				{Reg: "BX0_DELAY_LSB", Lo: 0, Width: 8, From: 0},
				{Reg: "BX0_DELAY_MSB", Lo: 0, Width: 8, From: 8},
			},
		},
	},
}

// LookupComposite returns the composite field name of the given chip
// family, if any.
func LookupComposite(family, name string) (Composite, bool) {
	c, ok := composites[family][name]
	return c, ok
}
