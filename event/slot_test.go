// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import "testing"

func TestSlot(t *testing.T) {
	want := []int{3, 2, 1, 0, 4, 5, 6, 7}
	seen := make(map[int]bool)
	for chip := uint8(0); chip < NChips; chip++ {
		slot, ok := SlotOf(chip)
		if !ok {
			t.Fatalf("could not get slot of chip %d", chip)
		}
		if got, want := slot.Index(), want[chip]; got != want {
			t.Fatalf("invalid slot for chip %d: got=%d, want=%d", chip, got, want)
		}
		if seen[slot.Index()] {
			t.Fatalf("slot %d used twice", slot.Index())
		}
		seen[slot.Index()] = true

		if got, want := ChipOf(slot), chip; got != want {
			t.Fatalf("invalid inverse for chip %d: got=%d, want=%d", chip, got, want)
		}
	}

	for i := 0; i < NChips; i++ {
		slot := slotAt(i)
		back, ok := SlotOf(ChipOf(slot))
		if !ok || back != slot {
			t.Fatalf("invalid round trip for slot %d: got=%v", i, back)
		}
	}

	_, ok := SlotOf(NChips)
	if ok {
		t.Fatalf("expected no slot for chip %d", NChips)
	}
}
