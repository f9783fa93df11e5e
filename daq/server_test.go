// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	tlog "github.com/go-daq/tdaq/log"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/chip"
	"github.com/go-lpc/ph2/event"
	"github.com/go-lpc/ph2/hwdesc"
	"github.com/go-lpc/ph2/internal/fakeboard"
	"github.com/go-lpc/ph2/reg"
)

func newTestContext(ctx context.Context) tdaq.Context {
	return tdaq.Context{
		Ctx: ctx,
		Msg: tlog.NewMsgStream("ph2-daq", tlog.LvlError, io.Discard),
	}
}

func TestServer(t *testing.T) {
	lb := fakeboard.New(chip.CBC.Codec())
	srv := New(
		"testdata/setup.yaml",
		WithLogger(log.New(io.Discard, "", 0)),
		WithLinkOpener(func(*hwdesc.Setup, *board.AddrTable, *log.Logger) (board.Link, error) {
			return lb, nil
		}),
	)

	var (
		ctx  = newTestContext(context.Background())
		resp tdaq.Frame
		req  tdaq.Frame
	)

	err := srv.OnStart(ctx, &resp, req)
	if err == nil {
		t.Fatalf("expected an error starting an uninitialized server")
	}

	err = srv.OnConfig(ctx, &resp, req)
	if err != nil {
		t.Fatalf("could not configure server: %+v", err)
	}

	err = srv.OnInit(ctx, &resp, req)
	if err != nil {
		t.Fatalf("could not initialize server: %+v", err)
	}

	for _, tc := range []struct {
		addr reg.Address
		want uint32
	}{
		{reg.Address{Board: 1, FrontEnd: 0, Chip: 0}, 0x40},
		{reg.Address{Board: 1, FrontEnd: 0, Chip: 1}, 0x7f},
	} {
		v, ok := lb.Value(tc.addr, 0, 0x4f)
		if !ok {
			t.Fatalf("%v: VCth1 not configured", tc.addr)
		}
		if v != tc.want {
			t.Fatalf("%v: invalid VCth1: got=0x%x, want=0x%x", tc.addr, v, tc.want)
		}
	}
	if got, want := len(srv.Chips().Chips()), 3; got != want {
		t.Fatalf("invalid number of chips: got=%d, want=%d", got, want)
	}

	err = srv.OnStart(ctx, &resp, req)
	if err != nil {
		t.Fatalf("could not start run: %+v", err)
	}
	if v, _ := lb.ReadReg(context.Background(), board.RegReadoutOn); v != 1 {
		t.Fatalf("readout not enabled")
	}

	lb.Push(board.RegReadout, frames(2)...)

	run, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Run(newTestContext(run))
	}()

	var (
		dst tdaq.Frame
		out = make(chan error, 1)
	)
	go func() {
		out <- srv.Events(newTestContext(run), &dst)
	}()
	select {
	case err := <-out:
		if err != nil {
			t.Fatalf("could not publish events: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for events")
	}

	r := event.NewReader(bytes.NewReader(dst.Body), event.NewDecoder(1, nil))
	n := 0
	for {
		evt, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("could not decode published event: %+v", err)
		}
		if got, want := evt.Counter, uint32(7); got != want {
			t.Fatalf("invalid event counter: got=%d, want=%d", got, want)
		}
		n++
	}
	if got, want := n, 2; got != want {
		t.Fatalf("invalid number of published events: got=%d, want=%d", got, want)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run failed: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for run to stop")
	}
	if got, want := srv.NumEvents(), int64(2); got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}

	err = srv.OnStop(ctx, &resp, req)
	if err != nil {
		t.Fatalf("could not stop run: %+v", err)
	}
	if v, _ := lb.ReadReg(context.Background(), board.RegReadoutOn); v != 0 {
		t.Fatalf("readout not disabled")
	}

	err = srv.OnReset(ctx, &resp, req)
	if err != nil {
		t.Fatalf("could not reset server: %+v", err)
	}
	if srv.Chips() != nil {
		t.Fatalf("chip interface not released")
	}

	err = srv.OnQuit(ctx, &resp, req)
	if err != nil {
		t.Fatalf("could not quit server: %+v", err)
	}
}

func TestServerConfigureFailure(t *testing.T) {
	lb := fakeboard.New(chip.CBC.Codec())
	lb.NACK(reg.Address{Board: 1, FrontEnd: 0, Chip: 1}, true)

	srv := New(
		"testdata/setup.yaml",
		WithLogger(log.New(io.Discard, "", 0)),
		WithLinkOpener(func(*hwdesc.Setup, *board.AddrTable, *log.Logger) (board.Link, error) {
			return lb, nil
		}),
	)

	var (
		ctx  = newTestContext(context.Background())
		resp tdaq.Frame
		req  tdaq.Frame
	)

	err := srv.OnInit(ctx, &resp, req)
	if err == nil {
		t.Fatalf("expected an error initializing an unconfigured server")
	}

	err = srv.OnConfig(ctx, &resp, req)
	if err != nil {
		t.Fatalf("could not configure server: %+v", err)
	}

	err = srv.OnInit(ctx, &resp, req)
	if err == nil {
		t.Fatalf("expected an error configuring a NACKing chip")
	}
}

func TestServerMissingConfig(t *testing.T) {
	srv := New("testdata/not-there.yaml")

	var (
		ctx  = newTestContext(context.Background())
		resp tdaq.Frame
		req  tdaq.Frame
	)

	err := srv.OnConfig(ctx, &resp, req)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestOpenLinks(t *testing.T) {
	setup, err := hwdesc.Load("testdata/setup.yaml")
	if err != nil {
		t.Fatalf("could not load setup: %+v", err)
	}

	_, err = OpenLinks(setup, nil, nil)
	if err == nil {
		t.Fatalf("expected an error without address table")
	}

	_, err = OpenLinks(setup, new(board.AddrTable), nil)
	if err == nil {
		t.Fatalf("expected an error without device")
	}
}

func TestDryRunLink(t *testing.T) {
	setup, err := hwdesc.Load("testdata/setup.yaml")
	if err != nil {
		t.Fatalf("could not load setup: %+v", err)
	}

	link, err := DryRunLink(setup, nil, nil)
	if err != nil {
		t.Fatalf("could not open dry-run link: %+v", err)
	}

	ci := chip.New(link, nil)
	err = setup.Install(ci)
	if err != nil {
		t.Fatalf("could not install chips: %+v", err)
	}
	for _, a := range ci.Chips() {
		err = ci.Configure(context.Background(), a)
		if err != nil {
			t.Fatalf("could not configure chip %v: %+v", a, err)
		}
	}

	setup.Boards[0].FrontEnds[0].Chips = append(
		setup.Boards[0].FrontEnds[0].Chips,
		hwdesc.Chip{ID: 2, Family: "SSA", RegFile: "cbc.txt"},
	)
	_, err = DryRunLink(setup, nil, nil)
	if err == nil {
		t.Fatalf("expected an error with mixed codecs")
	}
}
