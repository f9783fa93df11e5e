// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codec encodes symbolic chip-register operations into the
// 32-bit words understood by a board firmware, and decodes the words
// sent back by the board.
//
// Two word layouts are provided.
//
// D19C, one word per operation (CBC and CIC chips):
//
//	[31:28] type: 0x1 single chip, 0x2 broadcast, 0xF NACK
//	[27:24] front-end id
//	[23:20] chip id (number of chips for a broadcast)
//	[19]    read
//	[18]    unused
//	[17]    page
//	[16]    write
//	[15: 8] register address
//	[ 7: 0] register value
//
// Wide, two words per operation (SSA and MPA chips, 16-bit addresses):
//
//	word0 [31:28] type, [27:24] front-end id, [23:20] chip id,
//	      [19] read, [18] write, [17:16] page, [15:0] register address
//	word1 [31:28] 0xE, [7:0] register value
//
// The value carried by a broadcast read-back is a transport
// acknowledgement only: it says nothing about the value held by each chip.
package codec // import "github.com/go-lpc/ph2/codec"

import (
	"errors"
	"fmt"

	"github.com/go-lpc/ph2/reg"
)

var (
	// ErrWidth is returned when a register is wider than what a
	// single operation can carry.
	ErrWidth = errors.New("codec: register too wide")

	// ErrRange is returned when a value, an address or an id does not
	// fit in its field of the word layout.
	ErrRange = errors.New("codec: field out of range")
)

// MaxWidth is the largest register width a single operation can carry.
const MaxWidth = 8

const (
	typeSingle    = 0x1
	typeBroadcast = 0x2
	typeNACK      = 0xf
)

// Op describes the requested register operation.
// Setting both Read and Write requests a write followed by a read-back.
type Op struct {
	Read  bool
	Write bool
}

// Reply is a decoded register operation.
//
// The register width is not carried on the wire: decoded replies report
// Desc.Width as MaxWidth.
type Reply struct {
	Desc      reg.Descriptor // Desc.Value is zero when Failed
	Chip      uint8          // chip id, or number of chips for a broadcast
	FrontEnd  uint8
	Read      bool
	Write     bool
	Broadcast bool
	Failed    bool
}

// Codec encodes and decodes register operations for one board firmware
// generation.
type Codec interface {
	// Encode returns the words performing op on register d of the chip
	// at a.
	Encode(d reg.Descriptor, a reg.Address, op Op) ([]uint32, error)

	// EncodeBroadcast returns the words performing op on register d of
	// the nchips chips of the front-end at a.
	EncodeBroadcast(d reg.Descriptor, nchips uint8, a reg.Address, op Op) ([]uint32, error)

	// Decode decodes the first operation held in words.
	// It returns the decoded reply and the number of consumed words.
	// Decode never fails: words not matching any known operation yield
	// a reply with Failed set.
	Decode(words []uint32) (Reply, int)

	// Words returns the number of words of a single operation.
	Words() int
}

// New returns the codec named name.
func New(name string) (Codec, error) {
	switch name {
	case "d19c", "D19C":
		return D19C{}, nil
	case "wide", "Wide":
		return Wide{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

// DecodeAll decodes every operation held in words.
func DecodeAll(c Codec, words []uint32) []Reply {
	var (
		out = make([]Reply, 0, len(words)/c.Words())
		beg = 0
	)
	for beg < len(words) {
		r, n := c.Decode(words[beg:])
		out = append(out, r)
		if n <= 0 {
			break
		}
		beg += n
	}
	return out
}

func checkDesc(d reg.Descriptor, op Op) error {
	if d.Width > MaxWidth {
		return fmt.Errorf("codec: register (page=%d, addr=0x%x) has width %d: %w", d.Page, d.Addr, d.Width, ErrWidth)
	}
	if !d.Fits(d.Value) {
		return fmt.Errorf("codec: value 0x%x overflows %d-bit register: %w", d.Value, d.Width, ErrRange)
	}
	if !op.Read && !op.Write {
		return fmt.Errorf("codec: empty register operation: %w", ErrRange)
	}
	return nil
}

func checkField(name string, v, max uint32) error {
	if v > max {
		return fmt.Errorf("codec: %s %d out of range [0, %d]: %w", name, v, max, ErrRange)
	}
	return nil
}

func bit(v bool, pos uint) uint32 {
	if v {
		return 1 << pos
	}
	return 0
}

var (
	_ Codec = (*D19C)(nil)
	_ Codec = (*Wide)(nil)
)
