// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"errors"
	"io"
	"log"

	"github.com/go-lpc/ph2/internal/bitio"
	"golang.org/x/xerrors"
)

var (
	// ErrMarker is returned when a frame does not start with the frame marker.
	ErrMarker = errors.New("event: invalid frame marker")

	// ErrSize is returned when the sizes declared in a frame are
	// inconsistent with the data.
	ErrSize = errors.New("event: invalid frame size")
)

// Decoder decodes event frames read out from a board.
//
// A frame is a sequence of 32-bit words:
//
//	word0  [31:16] 0xFFFF, [15:0] frame size in units of 4 words
//	word1  [30:16] external trigger id, [7:0] dummy size in units of 4 words
//	word2  [31:24] TDC phase, [23:0] event counter
//	word3  bunch-crossing counter
//
// followed, for each front-end, by an L1 block and a stub block:
//
//	L1     [31:28] 0b1010, [27:20] front-end id, [11:0] block size in units of 4 words
//	       then 274-bit chip segments, one per concentrator input
//	stub   [31:28] 0b0101, [27:16] bunch-crossing id, [11:0] block size in units of 4 words
//	       [8:0] status bits
//	       then 15-bit stubs
//
// and by the dummy padding words.
type Decoder struct {
	board uint16
	msg   *log.Logger
	br    bitio.Reader
}

// NewDecoder returns a decoder for frames read out from the given board.
// Framing anomalies are reported to msg.
func NewDecoder(board uint16, msg *log.Logger) *Decoder {
	if msg == nil {
		msg = log.New(io.Discard, "", 0)
	}
	return &Decoder{board: board, msg: msg}
}

// Decode decodes all the events held back to back in block.
// Decoding stops at the first framing error: the events decoded so far
// are returned together with the error.
func (dec *Decoder) Decode(block []uint32) ([]Event, error) {
	var (
		evts = make([]Event, 0, 1)
		beg  = 0
	)
	for beg < len(block) {
		w := block[beg]
		if w>>16 != frameMarker {
			dec.msg.Printf("board %d: invalid frame marker 0x%04x at word %d", dec.board, w>>16, beg)
			return evts, xerrors.Errorf(
				"event: board %d invalid frame marker (got=0x%04x, word=%d): %w",
				dec.board, w>>16, beg, ErrMarker,
			)
		}
		size := 4 * int(w&0xffff)
		if size < hdrWords || beg+size > len(block) {
			dec.msg.Printf("board %d: invalid frame size %d at word %d (len=%d)", dec.board, size, beg, len(block))
			return evts, xerrors.Errorf(
				"event: board %d invalid frame size (size=%d, word=%d, len=%d): %w",
				dec.board, size, beg, len(block), ErrSize,
			)
		}
		evt, err := dec.DecodeEvent(block[beg : beg+size])
		if err != nil {
			return evts, err
		}
		evts = append(evts, evt)
		beg += size
	}
	return evts, nil
}

// DecodeEvent decodes a single event frame.
// words must hold exactly the frame.
func (dec *Decoder) DecodeEvent(words []uint32) (Event, error) {
	var evt Event
	if len(words) < hdrWords {
		dec.msg.Printf("board %d: frame too short (len=%d)", dec.board, len(words))
		return evt, xerrors.Errorf("event: board %d frame too short (len=%d): %w", dec.board, len(words), ErrSize)
	}

	if marker := words[0] >> 16; marker != frameMarker {
		dec.msg.Printf("board %d: invalid frame marker 0x%04x", dec.board, marker)
		return evt, xerrors.Errorf("event: board %d invalid frame marker (got=0x%04x): %w", dec.board, marker, ErrMarker)
	}

	evt.Board = dec.board
	evt.Size = 4 * int(words[0]&0xffff)
	if evt.Size != len(words) {
		dec.msg.Printf("board %d: frame size mismatch (size=%d, len=%d)", dec.board, evt.Size, len(words))
		return Event{}, xerrors.Errorf(
			"event: board %d frame size mismatch (size=%d, len=%d): %w",
			dec.board, evt.Size, len(words), ErrSize,
		)
	}

	evt.Dummy = 4 * int(words[1]&0xff)
	evt.TriggerID = uint16(words[1]>>16) & 0x7fff
	evt.TDC = uint8(words[2] >> 24)
	evt.Counter = words[2] & 0xffffff
	evt.BxCounter = words[3]

	end := evt.Size - evt.Dummy
	if end < hdrWords {
		dec.msg.Printf("board %d: dummy size %d overruns frame (size=%d)", dec.board, evt.Dummy, evt.Size)
		return Event{}, xerrors.Errorf(
			"event: board %d dummy size overruns frame (dummy=%d, size=%d): %w",
			dec.board, evt.Dummy, evt.Size, ErrSize,
		)
	}

	cur := hdrWords
	for cur < end {
		var fe FrontEnd

		n, err := dec.block(&evt, words, cur, end, l1Marker, "L1")
		if err != nil {
			return Event{}, err
		}
		fe.ID = uint8(words[cur] >> 20)
		fe.Chips = dec.segments(words[cur+1 : cur+n])
		cur += n

		n, err = dec.block(&evt, words, cur, end, stubMarker, "stub")
		if err != nil {
			return Event{}, err
		}
		if n < 2 {
			dec.msg.Printf("board %d: stub block too short (size=%d)", dec.board, n)
			return Event{}, xerrors.Errorf(
				"event: board %d FE %d stub block too short (size=%d): %w",
				dec.board, fe.ID, n, ErrSize,
			)
		}
		fe.BxID = uint16(words[cur]>>16) & 0xfff
		fe.Status = uint16(words[cur+1]) & 0x1ff
		fe.Stubs = dec.stubs(words[cur+2 : cur+n])
		cur += n

		evt.FEs = append(evt.FEs, fe)
	}

	return evt, nil
}

// block validates the sub-block header at words[beg] and returns the
// declared size of the sub-block, in words.
func (dec *Decoder) block(evt *Event, words []uint32, beg, end int, marker uint32, name string) (int, error) {
	if beg >= end {
		dec.msg.Printf("board %d: missing %s block at word %d", dec.board, name, beg)
		return 0, xerrors.Errorf(
			"event: board %d missing %s block (word=%d, end=%d): %w",
			dec.board, name, beg, end, ErrSize,
		)
	}

	w := words[beg]
	if got := w >> 28; got != marker {
		// keep going with the declared size.
		evt.Anomalies++
		dec.msg.Printf(
			"board %d: invalid %s block marker (got=0x%x, want=0x%x) at word %d",
			dec.board, name, got, marker, beg,
		)
	}

	n := 4 * int(w&0xfff)
	if n == 0 || beg+n > end {
		dec.msg.Printf("board %d: invalid %s block size %d at word %d (end=%d)", dec.board, name, n, beg, end)
		return 0, xerrors.Errorf(
			"event: board %d invalid %s block size (size=%d, word=%d, end=%d): %w",
			dec.board, name, n, beg, end, ErrSize,
		)
	}
	return n, nil
}

// segments unpacks the per-chip L1 data of a front-end.
// Bits after the last complete segment are padding.
func (dec *Decoder) segments(payload []uint32) []ChipData {
	dec.br.Reset(payload)
	n := dec.br.Len() / segmentBits
	if n > NChips {
		n = NChips
	}

	out := make([]ChipData, n)
	for i := range out {
		d := &out[i]
		v, _ := dec.br.Read(2)
		d.Error = uint8(v)
		v, _ = dec.br.Read(9)
		d.Pipeline = uint16(v)
		v, _ = dec.br.Read(9)
		d.L1ID = uint16(v)
		for ch := 0; ch < NChannels; ch++ {
			v, _ = dec.br.Read(1)
			if v != 0 {
				d.Hits.Set(ch)
			}
		}
	}
	return out
}

// stubs unpacks the stubs of a front-end, dropping the all-zero
// padding stubs.
func (dec *Decoder) stubs(payload []uint32) []Stub {
	dec.br.Reset(payload)
	var out []Stub
	for dec.br.Len() >= stubBits {
		v, _ := dec.br.Read(stubBits)
		if v == 0 {
			continue
		}
		out = append(out, Stub{
			Slot: slotAt(int(v>>12) & 0x7),
			Seed: uint8(v >> 4),
			Bend: uint8(v & 0xf),
		})
	}
	return out
}
