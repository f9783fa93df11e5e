// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event holds functions to decode, encode and analyze event
// frames read out from an FPGA board.
package event // import "github.com/go-lpc/ph2/event"

import (
	"fmt"
	"math/bits"
	"sort"
)

const (
	NChips        = 8   // number of readout chips per front-end
	NChannels     = 254 // number of channels per readout chip
	StripsPerChip = 127 // number of strips per chip, per sensor side

	frameMarker = 0xffff
	l1Marker    = 0xa // 0b1010
	stubMarker  = 0x5 // 0b0101

	hdrWords    = 4   // frame header words
	segmentBits = 274 // 2 error + 9 pipeline address + 9 L1 id + 254 hits
	stubBits    = 15  // 3 chip input + 8 seed + 4 bend
)

// Event is the data of one trigger, read out from one board.
type Event struct {
	Board     uint16
	Size      int    // declared size in 32-bit words
	Dummy     int    // number of dummy padding words
	TriggerID uint16 // external trigger id (15 bits)
	TDC       uint8  // TDC phase
	Counter   uint32 // event counter (24 bits)
	BxCounter uint32 // bunch-crossing counter

	FEs []FrontEnd // front-ends, in stream order

	Anomalies int // number of framing anomalies found while decoding
}

// FrontEnd is the data of one front-end (hybrid).
type FrontEnd struct {
	ID     uint8
	BxID   uint16     // 12 bits
	Status uint16     // 9 bits
	Chips  []ChipData // indexed by concentrator input
	Stubs  []Stub
}

// ChipData is the L1 data of one readout chip.
type ChipData struct {
	Error    uint8  // 2 bits
	Pipeline uint16 // pipeline address (9 bits)
	L1ID     uint16 // 9 bits
	Hits     HitVector
}

// Stub is a track-segment candidate.
type Stub struct {
	Slot Slot  // concentrator input of the chip that produced the stub
	Seed uint8 // seed position
	Bend uint8 // bend code
}

// Chip returns the id of the chip that produced the stub.
func (s Stub) Chip() uint8 { return ChipOf(s.Slot) }

func (s Stub) String() string {
	return fmt.Sprintf("{chip=%d seed=%d bend=0x%x}", s.Chip(), s.Seed, s.Bend)
}

// HitVector is the set of channels hit on one readout chip.
// Channel i is stored at bit i.
type HitVector [4]uint64

// Bit returns whether channel ch was hit.
func (h HitVector) Bit(ch int) bool {
	if ch < 0 || ch >= NChannels {
		return false
	}
	return h[ch/64]&(1<<(ch%64)) != 0
}

// Set marks channel ch as hit.
func (h *HitVector) Set(ch int) {
	if ch < 0 || ch >= NChannels {
		return
	}
	h[ch/64] |= 1 << (ch % 64)
}

// Count returns the number of channels hit.
func (h HitVector) Count() int {
	n := 0
	for _, w := range h {
		n += bits.OnesCount64(w)
	}
	return n
}

// Channels returns the sorted list of channels hit.
func (h HitVector) Channels() []int {
	out := make([]int, 0, h.Count())
	for i, w := range h {
		for w != 0 {
			j := bits.TrailingZeros64(w)
			out = append(out, 64*i+j)
			w &= w - 1
		}
	}
	return out
}

// FrontEnd returns the front-end with the given id.
func (evt *Event) FrontEnd(fe uint8) (*FrontEnd, bool) {
	for i := range evt.FEs {
		if evt.FEs[i].ID == fe {
			return &evt.FEs[i], true
		}
	}
	return nil, false
}

// FrontEnds returns the sorted ids of the front-ends present in the event.
func (evt *Event) FrontEnds() []uint8 {
	ids := make([]uint8, 0, len(evt.FEs))
	for _, fe := range evt.FEs {
		ids = append(ids, fe.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (evt *Event) chip(fe, chip uint8) (ChipData, bool) {
	slot, ok := SlotOf(chip)
	if !ok {
		return ChipData{}, false
	}
	f, ok := evt.FrontEnd(fe)
	if !ok || slot.Index() >= len(f.Chips) {
		return ChipData{}, false
	}
	return f.Chips[slot.Index()], true
}

// Error returns the error bits of a chip.
func (evt *Event) Error(fe, chip uint8) uint8 {
	d, _ := evt.chip(fe, chip)
	return d.Error
}

// PipelineAddress returns the pipeline address of a chip.
func (evt *Event) PipelineAddress(fe, chip uint8) uint16 {
	d, _ := evt.chip(fe, chip)
	return d.Pipeline
}

// L1ID returns the L1 id of a chip.
func (evt *Event) L1ID(fe, chip uint8) uint16 {
	d, _ := evt.chip(fe, chip)
	return d.L1ID
}

// Hits returns the channels hit on a chip.
func (evt *Event) Hits(fe, chip uint8) []int {
	d, _ := evt.chip(fe, chip)
	return d.Hits.Channels()
}

// NHits returns the number of channels hit on a chip.
func (evt *Event) NHits(fe, chip uint8) int {
	d, _ := evt.chip(fe, chip)
	return d.Hits.Count()
}

// DataBit returns whether channel ch of a chip was hit.
func (evt *Event) DataBit(fe, chip uint8, ch int) bool {
	d, _ := evt.chip(fe, chip)
	return d.Hits.Bit(ch)
}

// Stubs returns the stubs produced by a chip.
func (evt *Event) Stubs(fe, chip uint8) []Stub {
	slot, ok := SlotOf(chip)
	if !ok {
		return nil
	}
	f, ok := evt.FrontEnd(fe)
	if !ok {
		return nil
	}
	var out []Stub
	for _, s := range f.Stubs {
		if s.Slot == slot {
			out = append(out, s)
		}
	}
	return out
}

// BxID returns the bunch-crossing id of a front-end.
func (evt *Event) BxID(fe uint8) uint16 {
	f, ok := evt.FrontEnd(fe)
	if !ok {
		return 0
	}
	return f.BxID
}

// Status returns the status bits of a front-end.
func (evt *Event) Status(fe uint8) uint16 {
	f, ok := evt.FrontEnd(fe)
	if !ok {
		return 0
	}
	return f.Status
}
