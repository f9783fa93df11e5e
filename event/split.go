// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"golang.org/x/xerrors"
)

// Split splits a block of words read out from a board into complete
// frames. The words of a trailing incomplete frame are returned in rest.
//
// The returned frames and rest share the storage of block.
func Split(block []uint32) (frames [][]uint32, rest []uint32, err error) {
	beg := 0
	for beg < len(block) {
		w := block[beg]
		if w>>16 != frameMarker {
			return frames, block[beg:], xerrors.Errorf(
				"event: invalid frame marker (got=0x%04x, word=%d): %w",
				w>>16, beg, ErrMarker,
			)
		}
		size := 4 * int(w&0xffff)
		if size < hdrWords {
			return frames, block[beg:], xerrors.Errorf(
				"event: invalid frame size (size=%d, word=%d): %w",
				size, beg, ErrSize,
			)
		}
		if beg+size > len(block) {
			break
		}
		frames = append(frames, block[beg:beg+size])
		beg += size
	}
	return frames, block[beg:], nil
}
