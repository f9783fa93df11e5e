// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"github.com/go-lpc/ph2/reg"
)

const wideMarker = 0xe

// Wide is the two-word layout used for chips with 16-bit register
// addresses.
type Wide struct{}

func (Wide) Words() int { return 2 }

func (c Wide) Encode(d reg.Descriptor, a reg.Address, op Op) ([]uint32, error) {
	err := c.check(d, a.FrontEnd, a.Chip, op)
	if err != nil {
		return nil, err
	}
	return c.words(typeSingle, d, a.FrontEnd, a.Chip, op), nil
}

func (c Wide) EncodeBroadcast(d reg.Descriptor, nchips uint8, a reg.Address, op Op) ([]uint32, error) {
	err := c.check(d, a.FrontEnd, nchips, op)
	if err != nil {
		return nil, err
	}
	return c.words(typeBroadcast, d, a.FrontEnd, nchips, op), nil
}

func (Wide) check(d reg.Descriptor, fe, chip uint8, op Op) error {
	for _, err := range []error{
		checkDesc(d, op),
		checkField("page", uint32(d.Page), 0x3),
		checkField("front-end", uint32(fe), 0xf),
		checkField("chip", uint32(chip), 0xf),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (Wide) words(typ uint32, d reg.Descriptor, fe, chip uint8, op Op) []uint32 {
	return []uint32{
		typ<<28 |
			uint32(fe)<<24 |
			uint32(chip)<<20 |
			bit(op.Read, 19) |
			bit(op.Write, 18) |
			uint32(d.Page)<<16 |
			uint32(d.Addr),
		wideMarker<<28 | d.Value,
	}
}

func (Wide) Decode(words []uint32) (Reply, int) {
	switch len(words) {
	case 0:
		return Reply{Failed: true}, 0
	case 1:
		return Reply{Failed: true}, 1
	}

	w0, w1 := words[0], words[1]
	if w1>>28 != wideMarker {
		return Reply{Failed: true}, 2
	}

	r := Reply{
		Desc: reg.Descriptor{
			Page:  uint8(w0>>16) & 0x3,
			Addr:  uint16(w0),
			Width: MaxWidth,
		},
		FrontEnd: uint8(w0>>24) & 0xf,
		Chip:     uint8(w0>>20) & 0xf,
		Read:     w0&(1<<19) != 0,
		Write:    w0&(1<<18) != 0,
	}
	switch w0 >> 28 {
	case typeSingle:
		r.Desc.Value = w1 & 0xff
	case typeBroadcast:
		r.Desc.Value = w1 & 0xff
		r.Broadcast = true
	case typeNACK:
		r.Failed = true
	default:
		return Reply{Failed: true}, 2
	}
	return r, 2
}
