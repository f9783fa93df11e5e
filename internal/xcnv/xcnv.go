// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert raw event frames to/from LCIO.
package xcnv // import "github.com/go-lpc/ph2/internal/xcnv"

const (
	detector = "PH2-OT"

	rawCollection     = "PH2_RAW"      // raw frame words
	clusterCollection = "PH2_CLUSTERS" // one object per cluster: fe, side, first strip, width

	rawHeader = 2 // board id, number of frame words
)
