// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chip

import (
	"fmt"
	"strings"

	"github.com/go-lpc/ph2/codec"
)

// Family is a family of front-end chips.
type Family uint8

const (
	CBC Family = iota // binary readout chip
	CIC               // concentrator
	SSA               // short-strip readout chip
	MPA               // macro-pixel readout chip
)

func (f Family) String() string {
	switch f {
	case CBC:
		return "CBC"
	case CIC:
		return "CIC"
	case SSA:
		return "SSA"
	case MPA:
		return "MPA"
	}
	return fmt.Sprintf("Family(%d)", uint8(f))
}

// ParseFamily returns the family named s.
func ParseFamily(s string) (Family, error) {
	switch strings.ToUpper(s) {
	case "CBC":
		return CBC, nil
	case "CIC":
		return CIC, nil
	case "SSA":
		return SSA, nil
	case "MPA":
		return MPA, nil
	}
	return 0, fmt.Errorf("chip: unknown chip family %q", s)
}

// Codec returns the codec used to reach chips of the family.
func (f Family) Codec() codec.Codec {
	switch f {
	case SSA, MPA:
		return codec.Wide{}
	default:
		return codec.D19C{}
	}
}
