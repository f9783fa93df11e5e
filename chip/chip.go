// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chip configures front-end chips over a board link and keeps a
// shadow copy of their registers.
package chip // import "github.com/go-lpc/ph2/chip"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/codec"
	"github.com/go-lpc/ph2/reg"
)

var (
	// ErrVerify is returned when the value read back after a write
	// differs from the written value.
	ErrVerify = errors.New("chip: register verification failed")

	// ErrReply is returned when a chip answers with a failed reply or
	// with a reply for another register.
	ErrReply = errors.New("chip: invalid register reply")
)

// RegValue is a value to write to a named register.
type RegValue struct {
	Name  string
	Value uint32
}

type state struct {
	fam  Family
	regs reg.Map
}

// Interface drives the registers of a set of chips.
//
// The shadow register maps only hold values confirmed by the hardware.
// All operations are serialized.
type Interface struct {
	link board.Link
	msg  *log.Logger

	mu    sync.Mutex
	cur   uint16 // last selected board
	sel   bool   // whether cur is valid
	chips map[reg.Address]*state
}

// New returns an interface driving chips over link.
func New(link board.Link, msg *log.Logger) *Interface {
	if msg == nil {
		msg = log.New(io.Discard, "", 0)
	}
	return &Interface{
		link:  link,
		msg:   msg,
		chips: make(map[reg.Address]*state),
	}
}

// Add declares the chip at a, of family fam, with the initial register
// values m. m is copied.
func (ci *Interface) Add(a reg.Address, fam Family, m reg.Map) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.chips[a] = &state{fam: fam, regs: m.Clone()}
}

// Chips returns the addresses of the declared chips.
func (ci *Interface) Chips() []reg.Address {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	out := make([]reg.Address, 0, len(ci.chips))
	for a := range ci.chips {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Board != b.Board {
			return a.Board < b.Board
		}
		if a.FrontEnd != b.FrontEnd {
			return a.FrontEnd < b.FrontEnd
		}
		return a.Chip < b.Chip
	})
	return out
}

// Map returns a copy of the shadow register map of the chip at a.
func (ci *Interface) Map(a reg.Address) (reg.Map, bool) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	st, ok := ci.chips[a]
	if !ok {
		return nil, false
	}
	return st.regs.Clone(), true
}

// Register returns the shadow copy of the named register of the chip at a.
func (ci *Interface) Register(a reg.Address, name string) (reg.Descriptor, bool) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	st, ok := ci.chips[a]
	if !ok {
		return reg.Descriptor{}, false
	}
	return st.regs.Get(name)
}

// Composite returns the shadow value of the named composite field of
// the chip at a.
func (ci *Interface) Composite(a reg.Address, name string) (uint32, error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	st, err := ci.state(a)
	if err != nil {
		return 0, err
	}
	c, ok := reg.LookupComposite(st.fam.String(), name)
	if !ok {
		return 0, fmt.Errorf("chip: unknown %v field %q", st.fam, name)
	}
	return reg.Join(c, st.regs)
}

func (ci *Interface) state(a reg.Address) (*state, error) {
	st, ok := ci.chips[a]
	if !ok {
		return nil, fmt.Errorf("chip: unknown chip %v", a)
	}
	return st, nil
}

func (ci *Interface) desc(st *state, a reg.Address, name string) (reg.Descriptor, error) {
	d, ok := st.regs[name]
	if !ok {
		return d, fmt.Errorf("chip: unknown register %q for %v chip %v", name, st.fam, a)
	}
	return d, nil
}

// ResetSelection forgets the last selected board, so the next operation
// selects its board again. It must be called after the link was used
// by another client.
func (ci *Interface) ResetSelection() {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.sel = false
}

// selectBoard selects the board id, unless it is already selected.
func (ci *Interface) selectBoard(ctx context.Context, id uint16) error {
	if ci.sel && ci.cur == id {
		return nil
	}
	err := ci.link.Select(ctx, id)
	if err != nil {
		ci.sel = false
		return fmt.Errorf("chip: could not select board %d: %w", id, err)
	}
	ci.cur = id
	ci.sel = true
	return nil
}

func (ci *Interface) send(ctx context.Context, id uint16, words []uint32) ([]uint32, error) {
	err := ci.selectBoard(ctx, id)
	if err != nil {
		return nil, err
	}
	reply, err := ci.link.Send(ctx, words)
	if err != nil {
		// the board state is unknown: select it again next time.
		ci.sel = false
		return nil, fmt.Errorf("chip: could not send register words to board %d: %w", id, err)
	}
	return reply, nil
}

// check checks the reply r to an operation on register d of the chip at a.
func check(r codec.Reply, a reg.Address, d reg.Descriptor) error {
	switch {
	case r.Failed:
		return fmt.Errorf("chip: %v register (page=%d, addr=0x%x) failed: %w", a, d.Page, d.Addr, ErrReply)
	case r.Broadcast,
		r.Chip != a.Chip, r.FrontEnd != a.FrontEnd,
		r.Desc.Page != d.Page, r.Desc.Addr != d.Addr:
		return fmt.Errorf(
			"chip: %v register (page=%d, addr=0x%x) got reply for fe=%d/chip=%d (page=%d, addr=0x%x): %w",
			a, d.Page, d.Addr, r.FrontEnd, r.Chip, r.Desc.Page, r.Desc.Addr, ErrReply,
		)
	}
	return nil
}

// ReadRegister reads the named register of the chip at a from the
// hardware. The shadow map is updated with the value read back.
func (ci *Interface) ReadRegister(ctx context.Context, a reg.Address, name string) (uint32, error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	st, err := ci.state(a)
	if err != nil {
		return 0, err
	}
	d, err := ci.desc(st, a, name)
	if err != nil {
		return 0, err
	}

	c := st.fam.Codec()
	words, err := c.Encode(d, a, codec.Op{Read: true})
	if err != nil {
		return 0, fmt.Errorf("chip: could not encode read of %q: %w", name, err)
	}
	reply, err := ci.send(ctx, a.Board, words)
	if err != nil {
		return 0, err
	}

	r, _ := c.Decode(reply)
	err = check(r, a, d)
	if err == nil && !r.Read {
		err = fmt.Errorf("chip: %v register %q got a reply without read-back: %w", a, name, ErrReply)
	}
	if err != nil {
		ci.msg.Printf("could not read %q: %+v", name, err)
		return 0, err
	}
	v := r.Desc.Value
	if !d.Fits(v) {
		return 0, fmt.Errorf("chip: %v read 0x%x overflows %d-bit register %q: %w", a, v, d.Width, name, ErrReply)
	}
	st.regs[name] = d.With(v)
	return v, nil
}

// WriteRegister writes v to the named register of the chip at a.
//
// With verify, the register is read back after the write and the
// shadow map is only updated if the read-back value matches v.
// Without verify, the shadow map is updated once the write is
// acknowledged.
func (ci *Interface) WriteRegister(ctx context.Context, a reg.Address, name string, v uint32, verify bool) error {
	errs, err := ci.WriteRegisters(ctx, a, []RegValue{{Name: name, Value: v}}, verify)
	if err != nil {
		return err
	}
	return errs[0]
}

// WriteRegisters writes a block of registers of the chip at a, with a
// single transport operation.
//
// WriteRegisters returns one error per register, nil on success, and
// a non-nil error if the block could not be sent.
func (ci *Interface) WriteRegisters(ctx context.Context, a reg.Address, vs []RegValue, verify bool) ([]error, error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	st, err := ci.state(a)
	if err != nil {
		return nil, err
	}
	return ci.writeRegisters(ctx, st, a, vs, verify)
}

func (ci *Interface) writeRegisters(ctx context.Context, st *state, a reg.Address, vs []RegValue, verify bool) ([]error, error) {
	var (
		c     = st.fam.Codec()
		op    = codec.Op{Write: true, Read: verify}
		errs  = make([]error, len(vs))
		sent  = make([]int, 0, len(vs)) // indices of sent registers
		words = make([]uint32, 0, len(vs)*c.Words())
	)

	for i, rv := range vs {
		d, err := ci.desc(st, a, rv.Name)
		if err != nil {
			errs[i] = err
			continue
		}
		ws, err := c.Encode(d.With(rv.Value), a, op)
		if err != nil {
			errs[i] = fmt.Errorf("chip: could not encode write of %q: %w", rv.Name, err)
			continue
		}
		words = append(words, ws...)
		sent = append(sent, i)
	}
	if len(sent) == 0 {
		return errs, nil
	}

	reply, err := ci.send(ctx, a.Board, words)
	if err != nil {
		return nil, err
	}
	rs := codec.DecodeAll(c, reply)

	for j, i := range sent {
		rv := vs[i]
		d := st.regs[rv.Name]
		if j >= len(rs) {
			errs[i] = fmt.Errorf("chip: %v missing reply for %q: %w", a, rv.Name, ErrReply)
			continue
		}
		r := rs[j]
		err := check(r, a, d)
		if err != nil {
			errs[i] = err
			continue
		}
		switch {
		case verify && !(r.Read && r.Write):
			errs[i] = fmt.Errorf(
				"chip: %v register %q got a reply without read-back: %w",
				a, rv.Name, ErrVerify,
			)
			continue
		case !r.Write:
			errs[i] = fmt.Errorf("chip: %v register %q got a reply without write: %w", a, rv.Name, ErrReply)
			continue
		}
		if verify && r.Desc.Value != rv.Value {
			errs[i] = fmt.Errorf(
				"chip: %v register %q read back 0x%x, want 0x%x: %w",
				a, rv.Name, r.Desc.Value, rv.Value, ErrVerify,
			)
			continue
		}
		st.regs[rv.Name] = d.With(rv.Value)
	}

	for i, err := range errs {
		if err != nil {
			ci.msg.Printf("could not write %q: %+v", vs[i].Name, err)
		}
	}
	return errs, nil
}

// WriteComposite writes v to the named composite field of the chip at
// a, preserving the bits of the underlying registers that do not belong
// to the field.
func (ci *Interface) WriteComposite(ctx context.Context, a reg.Address, name string, v uint32, verify bool) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	st, err := ci.state(a)
	if err != nil {
		return err
	}
	c, ok := reg.LookupComposite(st.fam.String(), name)
	if !ok {
		return fmt.Errorf("chip: unknown %v field %q", st.fam, name)
	}
	ups, err := reg.Split(c, v, st.regs)
	if err != nil {
		return fmt.Errorf("chip: could not split field %q: %w", name, err)
	}

	vs := make([]RegValue, len(ups))
	for i, up := range ups {
		vs[i] = RegValue{Name: up.Name, Value: up.Value}
	}
	errs, err := ci.writeRegisters(ctx, st, a, vs, verify)
	if err != nil {
		return err
	}
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("chip: could not write field %q: %w", name, err)
		}
	}
	return nil
}

// Configure writes every register of the shadow map of the chip at a
// to the hardware, with verification.
func (ci *Interface) Configure(ctx context.Context, a reg.Address) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	st, err := ci.state(a)
	if err != nil {
		return err
	}

	names := st.regs.Ordered()
	vs := make([]RegValue, len(names))
	for i, name := range names {
		vs[i] = RegValue{Name: name, Value: st.regs[name].Value}
	}

	errs, err := ci.writeRegisters(ctx, st, a, vs, true)
	if err != nil {
		return fmt.Errorf("chip: could not configure %v chip %v: %w", st.fam, a, err)
	}

	var (
		first error
		nerr  int
	)
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		nerr++
	}
	if first != nil {
		return fmt.Errorf(
			"chip: could not configure %v chip %v (%d/%d registers failed): %w",
			st.fam, a, nerr, len(vs), first,
		)
	}
	return nil
}

// BroadcastWrite writes v to the named register of the nchips chips of
// family fam on front-end fe of the given board, with one operation.
//
// The shadow maps are not updated: the acknowledgement of a broadcast
// says nothing about the value held by each chip. Read the registers
// back with ReadRegister to update them.
func (ci *Interface) BroadcastWrite(ctx context.Context, id uint16, fe, nchips uint8, fam Family, name string, v uint32) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	var (
		d     reg.Descriptor
		found bool
	)
	for a, st := range ci.chips {
		if a.Board != id || a.FrontEnd != fe || st.fam != fam {
			continue
		}
		d, found = st.regs.Get(name)
		if found {
			break
		}
	}
	if !found {
		return fmt.Errorf("chip: no %v chip with register %q on board=%d/fe=%d", fam, name, id, fe)
	}

	var (
		c = fam.Codec()
		a = reg.Address{Board: id, FrontEnd: fe}
	)
	words, err := c.EncodeBroadcast(d.With(v), nchips, a, codec.Op{Write: true})
	if err != nil {
		return fmt.Errorf("chip: could not encode broadcast of %q: %w", name, err)
	}
	reply, err := ci.send(ctx, id, words)
	if err != nil {
		return err
	}

	r, _ := c.Decode(reply)
	if r.Failed || !r.Broadcast {
		return fmt.Errorf("chip: broadcast of %q to board=%d/fe=%d not acknowledged: %w", name, id, fe, ErrReply)
	}
	return nil
}
