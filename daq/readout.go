// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq implements the readout process of a set of FPGA boards:
// chip configuration, event data readout and decoding, publication of
// the decoded frames.
package daq // import "github.com/go-lpc/ph2/daq"

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/event"
)

// Block holds the frames of a data block read out from a board, with
// their decoded events.
type Block struct {
	Board  uint16
	Frames [][]uint32
	Events []event.Event
}

// raw is a block of words, as read out from a board.
type raw struct {
	board uint16
	words []uint32
}

// Readout reads out event data from a set of boards over a link.
type Readout struct {
	link   board.Link
	msg    *log.Logger
	poll   time.Duration
	max    int
	boards []uint16

	decs map[uint16]*event.Decoder
	rest map[uint16][]uint32 // incomplete trailing frame, per board
}

// NewReadout returns a readout of the provided boards.
// Boards are polled every poll period and at most max words are read
// at once from a board.
func NewReadout(link board.Link, boards []uint16, poll time.Duration, max int, msg *log.Logger) *Readout {
	if msg == nil {
		msg = log.New(io.Discard, "", 0)
	}
	rdo := &Readout{
		link:   link,
		msg:    msg,
		poll:   poll,
		max:    max,
		boards: append([]uint16(nil), boards...),
		decs:   make(map[uint16]*event.Decoder, len(boards)),
		rest:   make(map[uint16][]uint32, len(boards)),
	}
	for _, id := range boards {
		rdo.decs[id] = event.NewDecoder(id, msg)
	}
	return rdo
}

// Enable enables or disables the data readout of all the boards.
func (rdo *Readout) Enable(ctx context.Context, v bool) error {
	flag := uint32(0)
	if v {
		flag = 1
	}
	for _, id := range rdo.boards {
		err := rdo.link.Select(ctx, id)
		if err != nil {
			return fmt.Errorf("daq: could not select board %d: %w", id, err)
		}
		err = rdo.link.WriteReg(ctx, board.RegReadoutOn, flag)
		if err != nil {
			return fmt.Errorf("daq: could not set readout flag of board %d: %w", id, err)
		}
	}
	return nil
}

// Run reads out data from the boards until ctx is done, and sends
// the decoded blocks to out.
// Reading out the boards and decoding the data run concurrently.
func (rdo *Readout) Run(ctx context.Context, out chan<- Block) error {
	grp, ctx := errgroup.WithContext(ctx)
	raws := make(chan raw, 16)

	grp.Go(func() error {
		defer close(raws)
		return rdo.read(ctx, raws)
	})
	grp.Go(func() error {
		return rdo.decode(ctx, raws, out)
	})

	return grp.Wait()
}

func (rdo *Readout) read(ctx context.Context, raws chan<- raw) error {
	tck := time.NewTicker(rdo.poll)
	defer tck.Stop()

	for {
		n := 0
		for _, id := range rdo.boards {
			words, err := rdo.readBoard(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if len(words) == 0 {
				continue
			}
			n += len(words)
			select {
			case <-ctx.Done():
				return nil
			case raws <- raw{board: id, words: words}:
			}
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tck.C:
		}
	}
}

// readBoard reads the words available in the data FIFO of a board.
func (rdo *Readout) readBoard(ctx context.Context, id uint16) ([]uint32, error) {
	err := rdo.link.Select(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("daq: could not select board %d: %w", id, err)
	}

	n, err := rdo.link.ReadReg(ctx, board.RegNWords)
	if err != nil {
		return nil, fmt.Errorf("daq: could not read FIFO occupancy of board %d: %w", id, err)
	}
	if n == 0 {
		return nil, nil
	}
	if int(n) > rdo.max {
		n = uint32(rdo.max)
	}

	words, err := rdo.link.ReadBlock(ctx, board.RegReadout, int(n))
	if err != nil {
		return nil, fmt.Errorf("daq: could not read %d words from board %d: %w", n, id, err)
	}

	lbl := strconv.Itoa(int(id))
	blocksTotal.WithLabelValues(lbl).Inc()
	wordsTotal.WithLabelValues(lbl).Add(float64(len(words)))
	return words, nil
}

func (rdo *Readout) decode(ctx context.Context, raws <-chan raw, out chan<- Block) error {
	for r := range raws {
		blk := rdo.process(r)
		if len(blk.Frames) == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case out <- blk:
		}
	}
	return nil
}

// process decodes the complete frames of a raw block. Frames that fail
// to decode are dropped. A framing error drops the remaining words of
// the block.
func (rdo *Readout) process(r raw) Block {
	var (
		lbl = strconv.Itoa(int(r.board))
		dec = rdo.decs[r.board]
		buf = append(rdo.rest[r.board], r.words...)
		blk = Block{Board: r.board}
	)

	frames, rest, err := event.Split(buf)
	if err != nil {
		rdo.msg.Printf("board %d: dropping %d words: %+v", r.board, len(rest), err)
		decodeErrorsTotal.WithLabelValues(lbl).Inc()
		rest = nil
	}
	rdo.rest[r.board] = append([]uint32(nil), rest...)

	for _, frame := range frames {
		evt, err := dec.DecodeEvent(frame)
		if err != nil {
			rdo.msg.Printf("board %d: could not decode frame: %+v", r.board, err)
			decodeErrorsTotal.WithLabelValues(lbl).Inc()
			continue
		}
		eventsTotal.WithLabelValues(lbl).Inc()
		anomaliesTotal.WithLabelValues(lbl).Add(float64(evt.Anomalies))
		blk.Frames = append(blk.Frames, frame)
		blk.Events = append(blk.Events, evt)
	}
	return blk
}
