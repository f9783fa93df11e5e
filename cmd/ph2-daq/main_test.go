// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"
)

func TestOptions(t *testing.T) {
	if got := len(options(false)); got != 0 {
		t.Fatalf("invalid number of options: got=%d, want=0", got)
	}
	if got := len(options(true)); got != 1 {
		t.Fatalf("invalid number of options: got=%d, want=1", got)
	}
}
