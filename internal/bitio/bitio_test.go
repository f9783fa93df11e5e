// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitio

import (
	"reflect"
	"testing"
)

func TestReader(t *testing.T) {
	r := NewReader([]uint32{0xa5000001, 0x80000000})

	for _, tc := range []struct {
		n    int
		want uint64
	}{
		{n: 4, want: 0xa},
		{n: 4, want: 0x5},
		{n: 23, want: 0},
		{n: 2, want: 0x3}, // straddles the word boundary
		{n: 31, want: 0},
	} {
		got, ok := r.Read(tc.n)
		if !ok {
			t.Fatalf("could not read %d bits", tc.n)
		}
		if got != tc.want {
			t.Fatalf("invalid value: got=0x%x, want=0x%x", got, tc.want)
		}
	}

	if got, want := r.Len(), 0; got != want {
		t.Fatalf("invalid remaining bits: got=%d, want=%d", got, want)
	}

	if _, ok := r.Read(1); ok {
		t.Fatalf("expected a short read")
	}
}

func TestReaderWide(t *testing.T) {
	r := NewReader([]uint32{0x01234567, 0x89abcdef, 0xffffffff})
	r.Skip(4)
	v, ok := r.Read(64)
	if !ok {
		t.Fatalf("could not read 64 bits")
	}
	if got, want := v, uint64(0x123456789abcdeff); got != want {
		t.Fatalf("invalid value: got=0x%x, want=0x%x", got, want)
	}
	if got, want := r.Pos(), 68; got != want {
		t.Fatalf("invalid cursor: got=%d, want=%d", got, want)
	}
}

func TestWriter(t *testing.T) {
	var w Writer
	w.Write(0xa, 4)
	w.Write(0x5, 4)
	w.Write(0, 23)
	w.Write(0x3, 2)
	w.Pad(4)

	want := []uint32{0xa5000001, 0x80000000, 0, 0}
	if got := w.Words(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid words:\ngot= %08x\nwant=%08x", got, want)
	}
	if got, want := w.Bits(), 128; got != want {
		t.Fatalf("invalid bit count: got=%d, want=%d", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	fields := []struct {
		v uint64
		n int
	}{
		{0x3, 2}, {0x1ff, 9}, {0x0a5, 9}, {0x123456789abcdef, 60},
		{0x7fff, 15}, {0, 15}, {0x1, 1}, {0xfedcba9876543210, 64},
	}

	var w Writer
	for _, f := range fields {
		w.Write(f.v, f.n)
	}

	r := NewReader(w.Words())
	for i, f := range fields {
		got, ok := r.Read(f.n)
		if !ok {
			t.Fatalf("field[%d]: short read", i)
		}
		if got != f.v {
			t.Fatalf("field[%d]: got=0x%x, want=0x%x", i, got, f.v)
		}
	}
}
