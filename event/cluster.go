// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"fmt"
	"sort"
)

// Cluster is a group of contiguous strips hit on one side of a sensor.
type Cluster struct {
	Side       uint8 // 0: even channels, 1: odd channels
	FirstStrip int
	Width      int
}

func (c Cluster) String() string {
	return fmt.Sprintf("{side=%d first=%d width=%d}", c.Side, c.FirstStrip, c.Width)
}

// Clusterize returns the clusters of the hits found on all the chips
// of a front-end.
// Clusters are sorted by side, then by first strip.
func (evt *Event) Clusterize(fe uint8) []Cluster {
	var strips [2][]int
	for chip := uint8(0); chip < NChips; chip++ {
		d, ok := evt.chip(fe, chip)
		if !ok {
			continue
		}
		for _, ch := range d.Hits.Channels() {
			side := ch % 2
			strips[side] = append(strips[side], ch/2+int(chip)*StripsPerChip)
		}
	}

	out := make([]Cluster, 0)
	for side := range strips {
		out = appendClusters(out, uint8(side), strips[side])
	}
	return out
}

// appendClusters appends to out the clusters of the given strips.
// Strips closer than 2 are merged.
func appendClusters(out []Cluster, side uint8, strips []int) []Cluster {
	if len(strips) == 0 {
		return out
	}
	sort.Ints(strips)

	cur := Cluster{Side: side, FirstStrip: strips[0], Width: 1}
	for _, s := range strips[1:] {
		last := cur.FirstStrip + cur.Width - 1
		if s-last <= 1 {
			cur.Width = s - cur.FirstStrip + 1
			continue
		}
		out = append(out, cur)
		cur = Cluster{Side: side, FirstStrip: s, Width: 1}
	}
	return append(out, cur)
}
