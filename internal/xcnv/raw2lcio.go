// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"errors"
	"fmt"
	"io"
	"log"

	"go-hep.org/x/hep/lcio"

	"github.com/go-lpc/ph2/event"
)

// RAW2LCIO converts the frames read from r into LCIO events.
// Each LCIO event holds the raw frame words and the clusters of every
// front-end.
func RAW2LCIO(w *lcio.Writer, r *event.Reader, dec *event.Decoder, board uint16, run int32, msg *log.Logger) error {
	for i := 0; ; i++ {
		if i%100 == 0 {
			msg.Printf("processing evt %d...", i)
		}
		words, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read frame: %w", err)
		}

		evt, err := dec.DecodeEvent(words)
		if err != nil {
			return fmt.Errorf("could not decode frame %d: %w", i, err)
		}

		if i == 0 {
			err = w.WriteRunHeader(&lcio.RunHeader{
				RunNumber: run,
				Detector:  detector,
				Descr:     "",
				Params: lcio.Params{
					Ints: map[string][]int32{
						"Board": {int32(board)},
					},
				},
			})
			if err != nil {
				return fmt.Errorf("could not write run header: %w", err)
			}
		}

		lev := lcio.Event{
			RunNumber:   run,
			EventNumber: int32(evt.Counter),
			TimeStamp:   int64(evt.BxCounter),
			Detector:    detector,
		}
		lev.Add(rawCollection, rawObject(board, words))
		lev.Add(clusterCollection, clusterObject(&evt))

		err = w.WriteEvent(&lev)
		if err != nil {
			return fmt.Errorf("could not write LCIO event %d: %w", i, err)
		}
	}
}

func rawObject(board uint16, words []uint32) *lcio.GenericObject {
	i32s := make([]int32, rawHeader+len(words))
	i32s[0] = int32(board)
	i32s[1] = int32(len(words))
	for i, w := range words {
		i32s[rawHeader+i] = int32(w)
	}
	return &lcio.GenericObject{
		Data: []lcio.GenericObjectData{
			{I32s: i32s},
		},
	}
}

func clusterObject(evt *event.Event) *lcio.GenericObject {
	obj := &lcio.GenericObject{
		Data: make([]lcio.GenericObjectData, 0),
	}
	for _, fe := range evt.FrontEnds() {
		for _, c := range evt.Clusterize(fe) {
			obj.Data = append(obj.Data, lcio.GenericObjectData{
				I32s: []int32{int32(fe), int32(c.Side), int32(c.FirstStrip), int32(c.Width)},
			})
		}
	}
	return obj
}
