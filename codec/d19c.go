// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"github.com/go-lpc/ph2/reg"
)

// D19C is the one-word layout of the D19C firmware I2C command processor.
type D19C struct{}

func (D19C) Words() int { return 1 }

func (c D19C) Encode(d reg.Descriptor, a reg.Address, op Op) ([]uint32, error) {
	err := c.check(d, a.FrontEnd, a.Chip, op)
	if err != nil {
		return nil, err
	}
	return []uint32{c.word(typeSingle, d, a.FrontEnd, a.Chip, op)}, nil
}

func (c D19C) EncodeBroadcast(d reg.Descriptor, nchips uint8, a reg.Address, op Op) ([]uint32, error) {
	err := c.check(d, a.FrontEnd, nchips, op)
	if err != nil {
		return nil, err
	}
	return []uint32{c.word(typeBroadcast, d, a.FrontEnd, nchips, op)}, nil
}

func (D19C) check(d reg.Descriptor, fe, chip uint8, op Op) error {
	for _, err := range []error{
		checkDesc(d, op),
		checkField("page", uint32(d.Page), 0x1),
		checkField("address", uint32(d.Addr), 0xff),
		checkField("front-end", uint32(fe), 0xf),
		checkField("chip", uint32(chip), 0xf),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (D19C) word(typ uint32, d reg.Descriptor, fe, chip uint8, op Op) uint32 {
	return typ<<28 |
		uint32(fe)<<24 |
		uint32(chip)<<20 |
		bit(op.Read, 19) |
		uint32(d.Page)<<17 |
		bit(op.Write, 16) |
		uint32(d.Addr)<<8 |
		d.Value
}

func (D19C) Decode(words []uint32) (Reply, int) {
	if len(words) < 1 {
		return Reply{Failed: true}, 0
	}
	w := words[0]
	typ := w >> 28
	r := Reply{
		Desc: reg.Descriptor{
			Page:  uint8(w>>17) & 0x1,
			Addr:  uint16(w>>8) & 0xff,
			Width: MaxWidth,
		},
		FrontEnd: uint8(w>>24) & 0xf,
		Chip:     uint8(w>>20) & 0xf,
		Read:     w&(1<<19) != 0,
		Write:    w&(1<<16) != 0,
	}
	switch typ {
	case typeSingle:
		r.Desc.Value = w & 0xff
	case typeBroadcast:
		r.Desc.Value = w & 0xff
		r.Broadcast = true
	case typeNACK:
		r.Failed = true
	default:
		return Reply{Failed: true}, 1
	}
	return r, 1
}
