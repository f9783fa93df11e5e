// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/codec"
	"github.com/go-lpc/ph2/internal/fakeboard"
)

// frame is a 20-word event frame with one front-end and one stub.
var frame = []uint32{
	0xffff0005,
	0x00010001,
	0x2a000007,
	0x00000100,
	0xa0000002,
	0, 0, 0, 0, 0, 0, 0,
	0x51230001,
	0x000001ff,
	0x680a0000,
	0x00000000,
	0, 0, 0, 0,
}

func frames(n int) []uint32 {
	var out []uint32
	for i := 0; i < n; i++ {
		out = append(out, frame...)
	}
	return out
}

func recv(t *testing.T, blocks <-chan Block) Block {
	t.Helper()
	select {
	case blk := <-blocks:
		return blk
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for a block")
	}
	return Block{}
}

func TestReadout(t *testing.T) {
	const id = 11
	var (
		lb  = fakeboard.New(codec.D19C{})
		rdo = NewReadout(lb, []uint16{id}, time.Millisecond, 1024, nil)
		out = make(chan Block)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evts0 := testutil.ToFloat64(eventsTotal.WithLabelValues("11"))

	// two full frames and the first half of a third one.
	lb.Push(board.RegReadout, frames(3)[:50]...)

	errc := make(chan error, 1)
	go func() {
		errc <- rdo.Run(ctx, out)
	}()

	blk := recv(t, out)
	if got, want := blk.Board, uint16(id); got != want {
		t.Fatalf("invalid board: got=%d, want=%d", got, want)
	}
	if got, want := len(blk.Frames), 2; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}
	if got, want := len(blk.Events), 2; got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}
	for i, f := range blk.Frames {
		if !reflect.DeepEqual(f, frame) {
			t.Fatalf("invalid frame %d:\ngot= %x\nwant=%x", i, f, frame)
		}
	}
	if got, want := blk.Events[0].Board, uint16(id); got != want {
		t.Fatalf("invalid event board: got=%d, want=%d", got, want)
	}

	// the rest of the third frame.
	lb.Push(board.RegReadout, frames(3)[50:]...)
	blk = recv(t, out)
	if got, want := len(blk.Frames), 1; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}
	if !reflect.DeepEqual(blk.Frames[0], frame) {
		t.Fatalf("invalid reassembled frame:\ngot= %x\nwant=%x", blk.Frames[0], frame)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("readout failed: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for readout to stop")
	}

	if got, want := testutil.ToFloat64(eventsTotal.WithLabelValues("11"))-evts0, 3.0; got != want {
		t.Fatalf("invalid events metric: got=%v, want=%v", got, want)
	}
}

func TestReadoutFramingError(t *testing.T) {
	const id = 12
	var (
		lb  = fakeboard.New(codec.D19C{})
		rdo = NewReadout(lb, []uint16{id}, time.Millisecond, 1024, nil)
	)

	errs0 := testutil.ToFloat64(decodeErrorsTotal.WithLabelValues("12"))

	block := append(frames(1), 0xdead0001, 0, 0, 0)
	block = append(block, frame...)
	blk := rdo.process(raw{board: id, words: block})
	if got, want := len(blk.Frames), 1; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}
	if got, want := len(rdo.rest[id]), 0; got != want {
		t.Fatalf("invalid rest: got=%d, want=%d", got, want)
	}

	// a frame with a corrupted dummy count is dropped, the next one is kept.
	bad := frames(1)
	bad[1] = 0x00010010
	blk = rdo.process(raw{board: id, words: append(bad, frame...)})
	if got, want := len(blk.Frames), 1; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}

	if got, want := testutil.ToFloat64(decodeErrorsTotal.WithLabelValues("12"))-errs0, 2.0; got != want {
		t.Fatalf("invalid decode-errors metric: got=%v, want=%v", got, want)
	}
}

func TestReadoutEnable(t *testing.T) {
	var (
		ctx = context.Background()
		lb  = fakeboard.New(codec.D19C{})
		rdo = NewReadout(lb, []uint16{1, 2}, time.Millisecond, 1024, nil)
	)

	for _, v := range []bool{true, false} {
		err := rdo.Enable(ctx, v)
		if err != nil {
			t.Fatalf("could not enable readout: %+v", err)
		}
		flag, err := lb.ReadReg(ctx, board.RegReadoutOn)
		if err != nil {
			t.Fatalf("could not read readout flag: %+v", err)
		}
		want := uint32(0)
		if v {
			want = 1
		}
		if flag != want {
			t.Fatalf("invalid readout flag: got=%d, want=%d", flag, want)
		}
	}
	if got, want := lb.Selects(), 4; got != want {
		t.Fatalf("invalid number of selections: got=%d, want=%d", got, want)
	}

	lb.Unreachable(2, true)
	err := rdo.Enable(ctx, true)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestReadoutLinkFailure(t *testing.T) {
	var (
		lb  = fakeboard.New(codec.D19C{})
		rdo = NewReadout(lb, []uint16{3}, time.Millisecond, 1024, nil)
		out = make(chan Block)
	)
	lb.Unreachable(3, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := rdo.Run(ctx, out)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
