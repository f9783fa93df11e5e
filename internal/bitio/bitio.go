// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitio reads and writes bit-packed fields from and to a
// sequence of 32-bit words.
//
// Bits are consumed MSB-first within each word, and words are consumed
// in order, so that the concatenation of the words is read as a single
// big-endian bit string.
package bitio // import "github.com/go-lpc/ph2/internal/bitio"

// Reader reads bit fields from a slice of 32-bit words.
type Reader struct {
	p []uint32
	c int // bit cursor
}

// NewReader returns a bit reader over p.
func NewReader(p []uint32) *Reader {
	return &Reader{p: p}
}

// Reset resets the reader to read from p, from its first bit.
func (r *Reader) Reset(p []uint32) {
	r.p = p
	r.c = 0
}

// Len returns the number of unread bits.
func (r *Reader) Len() int {
	return 32*len(r.p) - r.c
}

// Pos returns the current bit cursor.
func (r *Reader) Pos() int { return r.c }

// Skip advances the cursor by n bits.
func (r *Reader) Skip(n int) {
	r.c += n
	if max := 32 * len(r.p); r.c > max {
		r.c = max
	}
}

// Read reads the next n bits (n <= 64) and returns them right-aligned.
// Read returns false if less than n bits are left, in which case the
// cursor is left untouched.
func (r *Reader) Read(n int) (uint64, bool) {
	if n < 0 || n > 64 || n > r.Len() {
		return 0, false
	}
	var v uint64
	for n > 0 {
		var (
			i   = r.c >> 5
			off = r.c & 31
			rem = 32 - off // bits left in current word
			k   = n
		)
		if k > rem {
			k = rem
		}
		w := uint64(r.p[i]) >> uint(rem-k)
		w &= (1 << uint(k)) - 1
		v = v<<uint(k) | w
		r.c += k
		n -= k
	}
	return v, true
}

// Writer packs bit fields into 32-bit words.
type Writer struct {
	p []uint32
	c int
}

// Bits returns the number of bits written so far.
func (w *Writer) Bits() int { return w.c }

// Words returns the packed words. The last word is zero-padded.
func (w *Writer) Words() []uint32 { return w.p }

// Write appends the n low bits of v (n <= 64), MSB-first.
func (w *Writer) Write(v uint64, n int) {
	for n > 0 {
		off := w.c & 31
		if off == 0 {
			w.p = append(w.p, 0)
		}
		var (
			rem = 32 - off
			k   = n
		)
		if k > rem {
			k = rem
		}
		bits := (v >> uint(n-k)) & ((1 << uint(k)) - 1)
		w.p[len(w.p)-1] |= uint32(bits) << uint(rem-k)
		w.c += k
		n -= k
	}
}

// Pad zero-pads the output up to the next multiple of n words.
func (w *Writer) Pad(n int) {
	for len(w.p)%n != 0 {
		w.p = append(w.p, 0)
	}
	w.c = 32 * len(w.p)
}
