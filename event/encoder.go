// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"encoding/binary"
	"io"

	"github.com/go-lpc/ph2/internal/bitio"
	"golang.org/x/xerrors"
)

// Frame builds the frame words of an event.
// evt.Size is ignored and recomputed. evt.Dummy is rounded up to a
// multiple of 4 words.
func Frame(evt Event) ([]uint32, error) {
	dummy := (evt.Dummy + 3) / 4
	if dummy > 0xff {
		return nil, xerrors.Errorf("event: dummy size too large (dummy=%d)", evt.Dummy)
	}

	out := make([]uint32, hdrWords, 64)
	out[1] = uint32(evt.TriggerID&0x7fff)<<16 | uint32(dummy)
	out[2] = uint32(evt.TDC)<<24 | evt.Counter&0xffffff
	out[3] = evt.BxCounter

	for _, fe := range evt.FEs {
		if len(fe.Chips) > NChips {
			return nil, xerrors.Errorf("event: FE %d has too many chips (n=%d)", fe.ID, len(fe.Chips))
		}

		var w bitio.Writer
		for _, d := range fe.Chips {
			w.Write(uint64(d.Error), 2)
			w.Write(uint64(d.Pipeline), 9)
			w.Write(uint64(d.L1ID), 9)
			for ch := 0; ch < NChannels; ch++ {
				v := uint64(0)
				if d.Hits.Bit(ch) {
					v = 1
				}
				w.Write(v, 1)
			}
		}
		l1 := pad(w.Words(), 1)
		n := (1 + len(l1)) / 4
		if n > 0xfff {
			return nil, xerrors.Errorf("event: FE %d L1 block too large (n=%d)", fe.ID, n)
		}
		out = append(out, l1Marker<<28|uint32(fe.ID)<<20|uint32(n))
		out = append(out, l1...)

		w = bitio.Writer{}
		for _, s := range fe.Stubs {
			w.Write(uint64(s.Slot.Index())<<12|uint64(s.Seed)<<4|uint64(s.Bend&0xf), stubBits)
		}
		stubs := pad(w.Words(), 2)
		n = (2 + len(stubs)) / 4
		if n > 0xfff {
			return nil, xerrors.Errorf("event: FE %d stub block too large (n=%d)", fe.ID, n)
		}
		out = append(out, stubMarker<<28|uint32(fe.BxID&0xfff)<<16|uint32(n))
		out = append(out, uint32(fe.Status&0x1ff))
		out = append(out, stubs...)
	}

	out = append(out, make([]uint32, 4*dummy)...)
	size := len(out) / 4
	if size > 0xffff {
		return nil, xerrors.Errorf("event: frame too large (n=%d)", size)
	}
	out[0] = frameMarker<<16 | uint32(size)
	return out, nil
}

// pad zero-pads p so that hdr+len(p) is a multiple of 4.
func pad(p []uint32, hdr int) []uint32 {
	for (hdr+len(p))%4 != 0 {
		p = append(p, 0)
	}
	return p
}

// Encoder writes event frames to an underlying writer, as little-endian
// 32-bit words.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
}

// NewEncoder returns an encoder that writes frames to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the frame of evt.
func (enc *Encoder) Encode(evt Event) error {
	words, err := Frame(evt)
	if err != nil {
		return err
	}
	return enc.Write(words)
}

// Write writes raw frame words.
func (enc *Encoder) Write(words []uint32) error {
	if enc.err != nil {
		return enc.err
	}
	if n := 4 * len(words); cap(enc.buf) < n {
		enc.buf = make([]byte, n)
	}
	buf := enc.buf[:4*len(words)]
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	_, enc.err = enc.w.Write(buf)
	if enc.err != nil {
		return xerrors.Errorf("event: could not write frame: %w", enc.err)
	}
	return nil
}
