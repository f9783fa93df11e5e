// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakeboard provides an in-memory board link, for tests and dry
// runs.
package fakeboard // import "github.com/go-lpc/ph2/internal/fakeboard"

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/codec"
	"github.com/go-lpc/ph2/reg"
)

type key struct {
	board uint16
	fe    uint8
	chip  uint8
}

type raddr struct {
	page uint8
	addr uint16
}

// Loopback is an in-memory board link.
//
// Command words are decoded with a codec and applied to a register
// model of every addressed chip. Writes are echoed back as
// acknowledgements, reads return the modeled register value.
// Block reads return the words programmed with Push.
type Loopback struct {
	mu    sync.RWMutex
	codec codec.Codec

	cur     uint16
	selects int

	chips map[key]map[raddr]uint32
	nack  map[key]bool // chips answering with NACKs
	stuck map[key]bool // chips ignoring writes
	down  map[uint16]bool
	fail  error // transport failure returned by Send

	regs  map[string]uint32
	fifos map[string][]uint32
}

// New returns a new loopback link decoding commands with c.
func New(c codec.Codec) *Loopback {
	return &Loopback{
		codec: c,
		chips: make(map[key]map[raddr]uint32),
		nack:  make(map[key]bool),
		stuck: make(map[key]bool),
		down:  make(map[uint16]bool),
		regs:  make(map[string]uint32),
		fifos: make(map[string][]uint32),
	}
}

func keyOf(a reg.Address) key {
	return key{board: a.Board, fe: a.FrontEnd, chip: a.Chip}
}

// NACK makes the chip at a answer every operation with a NACK.
func (lb *Loopback) NACK(a reg.Address, v bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.nack[keyOf(a)] = v
}

// Stuck makes the chip at a acknowledge writes without applying them.
func (lb *Loopback) Stuck(a reg.Address, v bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.stuck[keyOf(a)] = v
}

// Unreachable makes the selection of board id fail.
func (lb *Loopback) Unreachable(id uint16, v bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.down[id] = v
}

// Fail makes every Send return err. A nil err clears the failure.
func (lb *Loopback) Fail(err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.fail = err
}

// Set sets the modeled value of register (page, addr) of the chip at a.
func (lb *Loopback) Set(a reg.Address, page uint8, addr uint16, v uint32) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.set(keyOf(a), raddr{page, addr}, v)
}

// Value returns the modeled value of register (page, addr) of the chip at a.
func (lb *Loopback) Value(a reg.Address, page uint8, addr uint16) (uint32, bool) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	v, ok := lb.chips[keyOf(a)][raddr{page, addr}]
	return v, ok
}

// Push appends words to the named block register.
func (lb *Loopback) Push(name string, words ...uint32) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.fifos[name] = append(lb.fifos[name], words...)
}

// Selects returns the number of board selections performed so far.
func (lb *Loopback) Selects() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.selects
}

func (lb *Loopback) set(k key, r raddr, v uint32) {
	m, ok := lb.chips[k]
	if !ok {
		m = make(map[raddr]uint32)
		lb.chips[k] = m
	}
	m[r] = v
}

func (lb *Loopback) Select(ctx context.Context, id uint16) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.down[id] {
		return fmt.Errorf("fakeboard: board %d unreachable", id)
	}
	lb.cur = id
	lb.selects++
	lb.regs[board.RegBoardID] = uint32(id)
	return nil
}

func (lb *Loopback) Send(ctx context.Context, words []uint32) ([]uint32, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.fail != nil {
		return nil, lb.fail
	}

	var (
		out = make([]uint32, 0, len(words))
		nw  = lb.codec.Words()
	)
	for beg := 0; beg < len(words); beg += nw {
		end := beg + nw
		if end > len(words) {
			end = len(words)
		}
		out = append(out, lb.apply(words[beg:end])...)
	}
	return out, nil
}

// apply applies a single operation and returns its reply words.
func (lb *Loopback) apply(ws []uint32) []uint32 {
	r, _ := lb.codec.Decode(ws)
	if r.Failed {
		// echo garbage back.
		return append([]uint32(nil), ws...)
	}

	var (
		d     = r.Desc
		a     = reg.Address{Board: lb.cur, FrontEnd: r.FrontEnd, Chip: r.Chip}
		op    = codec.Op{Read: r.Read, Write: r.Write}
		chips = []uint8{r.Chip}
		rd    = raddr{d.Page, d.Addr}
	)
	if r.Broadcast {
		chips = chips[:0]
		for i := uint8(0); i < r.Chip; i++ {
			chips = append(chips, i)
		}
	}

	nack := false
	for _, id := range chips {
		k := key{board: lb.cur, fe: r.FrontEnd, chip: id}
		if lb.nack[k] {
			nack = true
			continue
		}
		if r.Write && !lb.stuck[k] {
			lb.set(k, rd, d.Value)
		}
	}

	if !r.Broadcast && r.Read {
		d.Value = lb.chips[keyOf(a)][rd]
	}

	var (
		out []uint32
		err error
	)
	if r.Broadcast {
		out, err = lb.codec.EncodeBroadcast(d, r.Chip, a, op)
	} else {
		out, err = lb.codec.Encode(d, a, op)
	}
	if err != nil {
		// modeled value too wide for the wire: answer with garbage.
		return make([]uint32, len(ws))
	}
	if nack {
		out[0] = out[0]&0x0fffffff | 0xf<<28
	}
	return out
}

func (lb *Loopback) ReadBlock(ctx context.Context, name string, n int) ([]uint32, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	fifo := lb.fifos[name]
	if len(fifo) < n {
		return nil, fmt.Errorf("fakeboard: block %q too short (got=%d, want=%d)", name, len(fifo), n)
	}
	out := append([]uint32(nil), fifo[:n]...)
	lb.fifos[name] = fifo[n:]
	return out, nil
}

func (lb *Loopback) ReadReg(ctx context.Context, name string) (uint32, error) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if name == board.RegNWords {
		return uint32(len(lb.fifos[board.RegReadout])), nil
	}
	v, ok := lb.regs[name]
	if !ok {
		return 0, fmt.Errorf("fakeboard: unknown register %q", name)
	}
	return v, nil
}

func (lb *Loopback) WriteReg(ctx context.Context, name string, v uint32) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.regs[name] = v
	return nil
}

var (
	_ board.Link = (*Loopback)(nil)
)
