// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reg

import (
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	for _, tc := range []struct {
		parent uint32
		mask   uint32
		shift  uint8
		v      uint32
		want   uint32
	}{
		{0x3c, 0x01, 0, 0x1, 0x3d},
		{0x3d, 0x01, 0, 0x0, 0x3c},
		{0x1b, 0x0f, 0, 0x5, 0x15},
		{0x1b, 0x30, 4, 0x2, 0x2b},
		{0xff, 0x30, 4, 0x0, 0xcf},
		{0x00, 0x30, 4, 0xf, 0x30}, // extra bits of v are dropped
	} {
		got := Merge(tc.parent, tc.mask, tc.shift, tc.v)
		if got != tc.want {
			t.Fatalf("merge(0x%x, 0x%x, %d, 0x%x): got=0x%x, want=0x%x",
				tc.parent, tc.mask, tc.shift, tc.v, got, tc.want,
			)
		}
	}
}

func TestMergePreservesOtherBits(t *testing.T) {
	for _, mask := range []uint32{0x01, 0x0f, 0x30, 0xf0, 0x80} {
		shift := uint8(0)
		for mask>>shift&1 == 0 {
			shift++
		}
		for parent := uint32(0); parent < 0x100; parent++ {
			for _, v := range []uint32{0, 1, 0x5, 0xff} {
				got := Merge(parent, mask, shift, v)
				if got&^mask != parent&^mask {
					t.Fatalf("merge(0x%x, 0x%x, %d, 0x%x) modified bits outside mask: 0x%x",
						parent, mask, shift, v, got,
					)
				}
			}
		}
	}
}

func TestSplitJoin(t *testing.T) {
	m := Map{
		"FeCtrl&TrgLat2":          {Page: 0, Addr: 0x01, Width: 8, Value: 0x3c},
		"TriggerLatency1":         {Page: 0, Addr: 0x02, Width: 8, Value: 0xc8},
		"Pipe&StubInpSel&Ptwidth": {Page: 0, Addr: 0x12, Width: 8, Value: 0x1b},
	}

	lat, ok := LookupComposite("CBC", "TriggerLatency")
	if !ok {
		t.Fatalf("missing TriggerLatency composite")
	}
	if got, want := lat.Width(), uint8(9); got != want {
		t.Fatalf("invalid width: got=%d, want=%d", got, want)
	}

	ups, err := Split(lat, 0x1a5, m)
	if err != nil {
		t.Fatalf("could not split: %+v", err)
	}
	want := []Update{
		{Name: "TriggerLatency1", Value: 0xa5},
		{Name: "FeCtrl&TrgLat2", Value: 0x3d},
	}
	if !reflect.DeepEqual(ups, want) {
		t.Fatalf("invalid updates:\ngot= %v\nwant=%v", ups, want)
	}

	for _, up := range ups {
		err := m.Set(up.Name, up.Value)
		if err != nil {
			t.Fatalf("could not apply update: %+v", err)
		}
	}
	v, err := Join(lat, m)
	if err != nil {
		t.Fatalf("could not join: %+v", err)
	}
	if got, want := v, uint32(0x1a5); got != want {
		t.Fatalf("invalid joined value: got=0x%x, want=0x%x", got, want)
	}

	_, err = Split(lat, 0x200, m)
	if err == nil {
		t.Fatalf("expected an overflow error")
	}

	// PtWidth and StubLogic share a register.
	ptw, _ := LookupComposite("CBC", "PtWidth")
	stl, _ := LookupComposite("CBC", "StubLogic")
	ups, err = Split(ptw, 0x4, m)
	if err != nil {
		t.Fatalf("could not split: %+v", err)
	}
	if got, want := ups, []Update{{Name: "Pipe&StubInpSel&Ptwidth", Value: 0x14}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid updates:\ngot= %v\nwant=%v", got, want)
	}
	_ = m.Set(ups[0].Name, ups[0].Value)

	v, err = Join(stl, m)
	if err != nil {
		t.Fatalf("could not join: %+v", err)
	}
	if got, want := v, uint32(0x1); got != want {
		t.Fatalf("invalid stub logic: got=0x%x, want=0x%x", got, want)
	}

	_, err = Split(Composite{Name: "x", Parts: []Part{{Reg: "nope", Width: 1}}}, 1, m)
	if err == nil {
		t.Fatalf("expected an unknown register error")
	}
}
