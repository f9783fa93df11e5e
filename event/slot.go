// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import "fmt"

// Slot is the concentrator input a readout chip is connected to.
// The concentrator orders its inputs differently from the chip ids of
// the front-end: slots are obtained from chip ids with SlotOf.
type Slot struct {
	i uint8
}

// chip id -> concentrator input.
var slots = [NChips]uint8{3, 2, 1, 0, 4, 5, 6, 7}

// chip ids, indexed by concentrator input.
var chips = func() [NChips]uint8 {
	var o [NChips]uint8
	for chip, slot := range slots {
		o[slot] = uint8(chip)
	}
	return o
}()

// SlotOf returns the concentrator input of the given chip.
func SlotOf(chip uint8) (Slot, bool) {
	if int(chip) >= NChips {
		return Slot{}, false
	}
	return Slot{slots[chip]}, true
}

// ChipOf returns the chip id connected to the given concentrator input.
func ChipOf(s Slot) uint8 {
	return chips[s.i]
}

// Index returns the concentrator input number.
func (s Slot) Index() int { return int(s.i) }

func (s Slot) String() string {
	return fmt.Sprintf("slot-%d", s.i)
}

// slotAt returns the slot of concentrator input i, as read from a frame.
func slotAt(i int) Slot {
	return Slot{uint8(i) % NChips}
}
