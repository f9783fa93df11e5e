// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Reader reads event frames from a stream of little-endian 32-bit
// words.
type Reader struct {
	r   io.Reader
	dec *Decoder
	buf []byte
	err error
}

// NewReader returns a reader of frames from r, decoded with dec.
func NewReader(r io.Reader, dec *Decoder) *Reader {
	return &Reader{
		r:   r,
		dec: dec,
		buf: make([]byte, 4),
	}
}

// ReadFrame reads the words of the next frame.
// ReadFrame returns io.EOF when no more frames are available.
func (r *Reader) ReadFrame() ([]uint32, error) {
	if r.err != nil {
		return nil, r.err
	}

	_, r.err = io.ReadFull(r.r, r.buf[:4])
	if r.err != nil {
		if xerrors.Is(r.err, io.EOF) {
			return nil, io.EOF
		}
		return nil, xerrors.Errorf("event: could not read frame header: %w", r.err)
	}

	hdr := binary.LittleEndian.Uint32(r.buf[:4])
	if hdr>>16 != frameMarker {
		r.err = xerrors.Errorf("event: invalid frame marker (got=0x%04x): %w", hdr>>16, ErrMarker)
		return nil, r.err
	}

	size := 4 * int(hdr&0xffff)
	if size < hdrWords {
		r.err = xerrors.Errorf("event: invalid frame size %d: %w", size, ErrSize)
		return nil, r.err
	}

	if cap(r.buf) < 4*size {
		buf := make([]byte, 4*size)
		copy(buf, r.buf[:4])
		r.buf = buf
	}
	raw := r.buf[:4*size]
	_, r.err = io.ReadFull(r.r, raw[4:])
	if r.err != nil {
		if xerrors.Is(r.err, io.EOF) {
			r.err = io.ErrUnexpectedEOF
		}
		return nil, xerrors.Errorf("event: could not read frame payload: %w", r.err)
	}

	words := make([]uint32, size)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return words, nil
}

// Next reads and decodes the next frame.
// Next returns io.EOF when no more frames are available.
func (r *Reader) Next() (Event, error) {
	words, err := r.ReadFrame()
	if err != nil {
		return Event{}, err
	}
	return r.dec.DecodeEvent(words)
}
