// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"reflect"
	"testing"
)

func TestHitVector(t *testing.T) {
	var h HitVector
	for _, ch := range []int{0, 63, 64, 127, 200, 253, 254, -1} {
		h.Set(ch)
	}

	if got, want := h.Count(), 6; got != want {
		t.Fatalf("invalid count: got=%d, want=%d", got, want)
	}
	if got, want := h.Channels(), []int{0, 63, 64, 127, 200, 253}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid channels: got=%v, want=%v", got, want)
	}
	for _, tc := range []struct {
		ch   int
		want bool
	}{
		{0, true},
		{1, false},
		{63, true},
		{64, true},
		{65, false},
		{253, true},
		{254, false},
		{-1, false},
	} {
		if got := h.Bit(tc.ch); got != tc.want {
			t.Fatalf("invalid bit %d: got=%v, want=%v", tc.ch, got, tc.want)
		}
	}

	var empty HitVector
	if got := empty.Channels(); len(got) != 0 {
		t.Fatalf("invalid channels for empty vector: %v", got)
	}
}

func TestAccessorsMissing(t *testing.T) {
	evt := Event{
		FEs: []FrontEnd{{ID: 2, BxID: 42, Status: 3}},
	}

	if got, want := evt.FrontEnds(), []uint8{2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid front-ends: got=%v, want=%v", got, want)
	}
	if got, want := evt.BxID(2), uint16(42); got != want {
		t.Fatalf("invalid bx-id: got=%d, want=%d", got, want)
	}
	if got, want := evt.Status(2), uint16(3); got != want {
		t.Fatalf("invalid status: got=%d, want=%d", got, want)
	}
	if got := evt.BxID(1); got != 0 {
		t.Fatalf("invalid bx-id for missing front-end: %d", got)
	}
	if got := evt.NHits(2, 0); got != 0 {
		t.Fatalf("invalid number of hits for missing chip: %d", got)
	}
	if got := evt.NHits(2, 42); got != 0 {
		t.Fatalf("invalid number of hits for invalid chip: %d", got)
	}
	if got := evt.Stubs(1, 0); got != nil {
		t.Fatalf("invalid stubs for missing front-end: %v", got)
	}
	if got := evt.Stubs(2, 42); got != nil {
		t.Fatalf("invalid stubs for invalid chip: %v", got)
	}
	if got := evt.Clusterize(1); got == nil || len(got) != 0 {
		t.Fatalf("invalid clusters for missing front-end: %v", got)
	}
}
