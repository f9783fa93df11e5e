// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Mux is a link dispatching operations to one link per board.
// Select picks the link of the requested board.
type Mux struct {
	mu    sync.Mutex
	links map[uint16]Link
	cur   Link
}

// NewMux returns a link dispatching to the provided per-board links.
func NewMux(links map[uint16]Link) *Mux {
	mux := &Mux{links: make(map[uint16]Link, len(links))}
	for id, link := range links {
		mux.links[id] = link
	}
	return mux
}

// Boards returns the sorted IDs of the boards reachable through mux.
func (mux *Mux) Boards() []uint16 {
	ids := make([]uint16, 0, len(mux.links))
	for id := range mux.links {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (mux *Mux) Select(ctx context.Context, id uint16) error {
	mux.mu.Lock()
	defer mux.mu.Unlock()

	link, ok := mux.links[id]
	if !ok {
		mux.cur = nil
		return fmt.Errorf("board: no link for board %d", id)
	}
	err := link.Select(ctx, id)
	if err != nil {
		mux.cur = nil
		return err
	}
	mux.cur = link
	return nil
}

func (mux *Mux) link() (Link, error) {
	mux.mu.Lock()
	defer mux.mu.Unlock()
	if mux.cur == nil {
		return nil, fmt.Errorf("board: no board selected")
	}
	return mux.cur, nil
}

func (mux *Mux) Send(ctx context.Context, words []uint32) ([]uint32, error) {
	link, err := mux.link()
	if err != nil {
		return nil, err
	}
	return link.Send(ctx, words)
}

func (mux *Mux) ReadBlock(ctx context.Context, name string, n int) ([]uint32, error) {
	link, err := mux.link()
	if err != nil {
		return nil, err
	}
	return link.ReadBlock(ctx, name, n)
}

func (mux *Mux) ReadReg(ctx context.Context, name string) (uint32, error) {
	link, err := mux.link()
	if err != nil {
		return 0, err
	}
	return link.ReadReg(ctx, name)
}

func (mux *Mux) WriteReg(ctx context.Context, name string, v uint32) error {
	link, err := mux.link()
	if err != nil {
		return err
	}
	return link.WriteReg(ctx, name, v)
}

// Close closes all the underlying links that can be closed.
func (mux *Mux) Close() error {
	mux.mu.Lock()
	defer mux.mu.Unlock()

	var err error
	for _, id := range mux.Boards() {
		c, ok := mux.links[id].(io.Closer)
		if !ok {
			continue
		}
		e := c.Close()
		if e != nil && err == nil {
			err = fmt.Errorf("board: could not close link to board %d: %w", id, e)
		}
	}
	mux.cur = nil
	return err
}

var (
	_ Link = (*Mux)(nil)
)
