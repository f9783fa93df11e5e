// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/go-lpc/ph2/internal/mmap"
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

type reg32 struct {
	r func() uint32
	w func(v uint32)
}

func newReg32(bus *Bus, rw rwer, offset int64) reg32 {
	return reg32{
		r: func() uint32 {
			return bus.readU32(rw, offset)
		},
		w: func(v uint32) {
			bus.writeU32(rw, offset, v)
		},
	}
}

// Bus is a Link over a window of 32-bit little-endian board registers,
// such as a memory-mapped /dev/uioN device.
//
// Command words are pushed into the command FIFO register. Replies are
// drained from the reply FIFO register once the reply counter register
// announces enough words.
type Bus struct {
	mu  sync.Mutex
	msg *log.Logger
	rw  rwer
	tbl *AddrTable

	poll    time.Duration // reply counter polling period
	timeout time.Duration // maximum time to wait for replies

	regs struct {
		id       reg32
		nreplies reg32
	}

	err  error
	xbuf [4]byte
}

// NewBus returns a Bus over the register window rw, laid out
// according to tbl.
func NewBus(rw rwer, tbl *AddrTable, msg *log.Logger) (*Bus, error) {
	bus := &Bus{
		msg:  msg,
		rw:   rw,
		tbl:  tbl,
		poll:    100 * time.Microsecond,
		timeout: 1 * time.Second,
	}
	for _, name := range []string{RegBoardID, RegCommand, RegReply, RegNReplies} {
		if _, ok := tbl.Lookup(name); !ok {
			return nil, fmt.Errorf("board: address table has no %q register", name)
		}
	}
	bus.regs.id = bus.reg32(RegBoardID)
	bus.regs.nreplies = bus.reg32(RegNReplies)
	return bus, nil
}

// OpenBus memory-maps size bytes of the named device, starting at
// offset off, and returns a Bus over that window.
func OpenBus(dev string, off int64, size int, tbl *AddrTable, msg *log.Logger) (*Bus, error) {
	h, err := mmap.Open(dev, off, size)
	if err != nil {
		return nil, fmt.Errorf("board: could not open register window: %w", err)
	}
	bus, err := NewBus(h, tbl, msg)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	return bus, nil
}

// Close closes the underlying register window, if it can be closed.
func (bus *Bus) Close() error {
	if c, ok := bus.rw.(io.Closer); ok {
		err := c.Close()
		if err != nil {
			return fmt.Errorf("board: could not close register window: %w", err)
		}
	}
	return nil
}

func (bus *Bus) reg32(name string) reg32 {
	e, _ := bus.tbl.Lookup(name)
	return newReg32(bus, bus.rw, 4*int64(e.Addr))
}

func (bus *Bus) readU32(r io.ReaderAt, off int64) uint32 {
	if bus.err != nil {
		return 0
	}
	_, bus.err = r.ReadAt(bus.xbuf[:4], off)
	if bus.err != nil {
		bus.err = fmt.Errorf("board: could not read register 0x%x: %w", off, bus.err)
		return 0
	}
	return binary.LittleEndian.Uint32(bus.xbuf[:4])
}

func (bus *Bus) writeU32(w io.WriterAt, off int64, v uint32) {
	if bus.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(bus.xbuf[:4], v)
	_, bus.err = w.WriteAt(bus.xbuf[:4], off)
	if bus.err != nil {
		bus.err = fmt.Errorf("board: could not write register 0x%x: %w", off, bus.err)
		return
	}
}

// flush returns and clears the sticky error.
func (bus *Bus) flush() error {
	err := bus.err
	bus.err = nil
	return err
}

func (bus *Bus) lookup(name string) (Entry, error) {
	e, ok := bus.tbl.Lookup(name)
	if !ok {
		return e, fmt.Errorf("board: unknown register %q", name)
	}
	return e, nil
}

func (bus *Bus) Select(ctx context.Context, id uint16) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.regs.id.w(uint32(id))
	if err := bus.flush(); err != nil {
		return fmt.Errorf("board: could not select board %d: %w", id, err)
	}
	return nil
}

func (bus *Bus) Send(ctx context.Context, words []uint32) ([]uint32, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	cmd, err := bus.lookup(RegCommand)
	if err != nil {
		return nil, err
	}
	bus.writeBlock(cmd, words)
	if err := bus.flush(); err != nil {
		return nil, fmt.Errorf("board: could not send command words: %w", err)
	}

	tmr := time.NewTimer(bus.timeout)
	defer tmr.Stop()

	for {
		n := bus.regs.nreplies.r()
		if err := bus.flush(); err != nil {
			return nil, fmt.Errorf("board: could not read number of replies: %w", err)
		}
		if int(n) >= len(words) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("board: timeout waiting for replies (got=%d, want=%d): %w",
				n, len(words), ctx.Err(),
			)
		case <-tmr.C:
			return nil, fmt.Errorf("board: no reply after %v (got=%d, want=%d): %w",
				bus.timeout, n, len(words), ErrTimeout,
			)
		case <-time.After(bus.poll):
		}
	}

	rep, err := bus.lookup(RegReply)
	if err != nil {
		return nil, err
	}
	out := bus.readBlock(rep, len(words))
	if err := bus.flush(); err != nil {
		return nil, fmt.Errorf("board: could not read replies: %w", err)
	}
	return out, nil
}

func (bus *Bus) ReadBlock(ctx context.Context, name string, n int) ([]uint32, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	e, err := bus.lookup(name)
	if err != nil {
		return nil, err
	}
	if e.Mode == Incremental && n > e.Size {
		return nil, fmt.Errorf("board: block %q too small (size=%d, n=%d)", name, e.Size, n)
	}
	out := bus.readBlock(e, n)
	if err := bus.flush(); err != nil {
		return nil, fmt.Errorf("board: could not read block %q: %w", name, err)
	}
	return out, nil
}

func (bus *Bus) ReadReg(ctx context.Context, name string) (uint32, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	e, err := bus.lookup(name)
	if err != nil {
		return 0, err
	}
	v := bus.readU32(bus.rw, 4*int64(e.Addr))
	if err := bus.flush(); err != nil {
		return 0, fmt.Errorf("board: could not read %q: %w", name, err)
	}
	return (v & e.Mask) >> e.Shift(), nil
}

func (bus *Bus) WriteReg(ctx context.Context, name string, v uint32) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	e, err := bus.lookup(name)
	if err != nil {
		return err
	}
	if w := v << e.Shift(); w>>e.Shift() != v || w&^e.Mask != 0 {
		return fmt.Errorf("board: value 0x%x overflows register %q (mask=0x%x)", v, name, e.Mask)
	}

	off := 4 * int64(e.Addr)
	if e.Mask == 0xffffffff {
		bus.writeU32(bus.rw, off, v)
	} else {
		cur := bus.readU32(bus.rw, off)
		cur &= ^e.Mask
		cur |= (v << e.Shift()) & e.Mask
		bus.writeU32(bus.rw, off, cur)
	}
	if err := bus.flush(); err != nil {
		return fmt.Errorf("board: could not write %q: %w", name, err)
	}
	return nil
}

func (bus *Bus) readBlock(e Entry, n int) []uint32 {
	out := make([]uint32, n)
	off := 4 * int64(e.Addr)
	for i := range out {
		out[i] = bus.readU32(bus.rw, off)
		if e.Mode == Incremental {
			off += 4
		}
	}
	return out
}

func (bus *Bus) writeBlock(e Entry, words []uint32) {
	off := 4 * int64(e.Addr)
	for _, w := range words {
		bus.writeU32(bus.rw, off, w)
		if e.Mode == Incremental {
			off += 4
		}
	}
}

// ErrTimeout is returned when a board does not answer all the command
// words sent to it in time.
var ErrTimeout = errors.New("board: reply timeout")

var (
	_ Link = (*Bus)(nil)
)
