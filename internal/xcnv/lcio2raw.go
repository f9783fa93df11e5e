// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"fmt"
	"io"
	"log"

	"go-hep.org/x/hep/lcio"

	"github.com/go-lpc/ph2/event"
)

// LCIO2RAW extracts the raw frames of the LCIO events read from r and
// writes them to w as little-endian 32-bit words.
func LCIO2RAW(w io.Writer, r *lcio.Reader, freq int, msg *log.Logger) error {
	var (
		enc = event.NewEncoder(w)
		i   = 0
	)

	for r.Next() {
		if i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		evt := r.Event()
		words, err := rawWords(&evt)
		if err != nil {
			return fmt.Errorf("could not extract frame of evt %d: %w", i, err)
		}
		err = enc.Write(words)
		if err != nil {
			return fmt.Errorf("could not write frame of evt %d: %w", i, err)
		}
		i++
	}

	return nil
}

func rawWords(evt *lcio.Event) ([]uint32, error) {
	obj, ok := evt.Get(rawCollection).(*lcio.GenericObject)
	if !ok || len(obj.Data) == 0 {
		return nil, fmt.Errorf("no %q collection", rawCollection)
	}
	i32s := obj.Data[0].I32s
	if len(i32s) < rawHeader || int(i32s[1]) != len(i32s)-rawHeader {
		return nil, fmt.Errorf("invalid %q collection (len=%d)", rawCollection, len(i32s))
	}

	words := make([]uint32, len(i32s)-rawHeader)
	for i, v := range i32s[rawHeader:] {
		words[i] = uint32(v)
	}
	return words, nil
}
