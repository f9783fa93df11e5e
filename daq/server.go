// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/go-daq/tdaq"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/chip"
	"github.com/go-lpc/ph2/codec"
	"github.com/go-lpc/ph2/event"
	"github.com/go-lpc/ph2/hwdesc"
	"github.com/go-lpc/ph2/internal/fakeboard"
)

// LinkOpener opens the link to the boards of a setup.
type LinkOpener func(setup *hwdesc.Setup, tbl *board.AddrTable, msg *log.Logger) (board.Link, error)

// Option configures a Server.
type Option func(srv *Server)

// WithLinkOpener sets the function used to open the link to the boards.
func WithLinkOpener(f LinkOpener) Option {
	return func(srv *Server) {
		srv.open = f
	}
}

// WithLogger sets the logger of the hardware and decoding layers.
func WithLogger(msg *log.Logger) Option {
	return func(srv *Server) {
		srv.msg = msg
	}
}

// Server is a TDAQ process reading out the boards of a setup.
//
// The frames of each decoded data block are published, as
// little-endian 32-bit words, on the /events output.
type Server struct {
	fname string // hardware description file
	msg   *log.Logger
	open  LinkOpener

	setup *hwdesc.Setup
	tbl   *board.AddrTable
	link  board.Link
	ci    *chip.Interface
	rdo   *Readout

	data  chan []byte
	nevts atomic.Int64
}

// New returns a readout server for the setup described in fname.
func New(fname string, opts ...Option) *Server {
	srv := &Server{
		fname: fname,
		msg:   log.New(os.Stdout, "ph2-daq: ", 0),
		open:  OpenLinks,
		data:  make(chan []byte, 1024),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// OpenLinks memory-maps the register window of every board of setup.
func OpenLinks(setup *hwdesc.Setup, tbl *board.AddrTable, msg *log.Logger) (board.Link, error) {
	if tbl == nil {
		return nil, fmt.Errorf("daq: no address table")
	}

	links := make(map[uint16]board.Link, len(setup.Boards))
	for _, brd := range setup.Boards {
		if brd.Device == "" {
			_ = board.NewMux(links).Close()
			return nil, fmt.Errorf("daq: no device for board %d", brd.ID)
		}
		bus, err := board.OpenBus(brd.Device, brd.Offset, brd.Size, tbl, msg)
		if err != nil {
			_ = board.NewMux(links).Close()
			return nil, fmt.Errorf("daq: could not open board %d: %w", brd.ID, err)
		}
		links[brd.ID] = bus
	}
	return board.NewMux(links), nil
}

// DryRunLink returns an in-memory link emulating the chips of setup.
// All the chips of the setup must be reachable with the same codec.
func DryRunLink(setup *hwdesc.Setup, tbl *board.AddrTable, msg *log.Logger) (board.Link, error) {
	var c codec.Codec
	for _, brd := range setup.Boards {
		for _, fe := range brd.FrontEnds {
			for _, cfg := range fe.Chips {
				fam, err := chip.ParseFamily(cfg.Family)
				if err != nil {
					return nil, fmt.Errorf("daq: could not emulate board %d: %w", brd.ID, err)
				}
				switch {
				case c == nil:
					c = fam.Codec()
				case c != fam.Codec():
					return nil, fmt.Errorf("daq: could not emulate board %d: mixed codecs", brd.ID)
				}
			}
		}
	}
	if c == nil {
		c = codec.D19C{}
	}
	return fakeboard.New(c), nil
}

func (srv *Server) boards() []uint16 {
	ids := make([]uint16, len(srv.setup.Boards))
	for i, brd := range srv.setup.Boards {
		ids[i] = brd.ID
	}
	return ids
}

func (srv *Server) close() error {
	if srv.link == nil {
		return nil
	}
	var err error
	if c, ok := srv.link.(io.Closer); ok {
		err = c.Close()
	}
	srv.link = nil
	srv.ci = nil
	srv.rdo = nil
	return err
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	setup, err := hwdesc.Load(srv.fname)
	if err != nil {
		ctx.Msg.Errorf("could not load hardware description: %+v", err)
		return fmt.Errorf("could not load hardware description %q: %w", srv.fname, err)
	}

	var tbl *board.AddrTable
	if setup.AddrTable != "" {
		tbl, err = setup.ReadAddrTable()
		if err != nil {
			ctx.Msg.Errorf("could not read address table: %+v", err)
			return fmt.Errorf("could not read address table: %w", err)
		}
	}

	srv.setup = setup
	srv.tbl = tbl
	ctx.Msg.Infof("setup: %d board(s), %d chip(s)", len(setup.Boards), len(setup.Addresses()))
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if srv.setup == nil {
		return fmt.Errorf("could not initialize: no configuration")
	}

	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close previous link: %+v", err)
	}

	link, err := srv.open(srv.setup, srv.tbl, srv.msg)
	if err != nil {
		ctx.Msg.Errorf("could not open link to boards: %+v", err)
		return fmt.Errorf("could not open link to boards: %w", err)
	}
	srv.link = link
	srv.ci = chip.New(link, srv.msg)

	err = srv.setup.Install(srv.ci)
	if err != nil {
		ctx.Msg.Errorf("could not install chips: %+v", err)
		return fmt.Errorf("could not install chips: %w", err)
	}

	for _, a := range srv.ci.Chips() {
		err = srv.ci.Configure(ctx.Ctx, a)
		if err != nil {
			ctx.Msg.Errorf("could not configure chip %v: %+v", a, err)
			return fmt.Errorf("could not configure chip %v: %w", a, err)
		}
	}
	ctx.Msg.Infof("configured %d chip(s)", len(srv.ci.Chips()))

	srv.rdo = NewReadout(
		link, srv.boards(),
		srv.setup.Readout.Poll, srv.setup.Readout.MaxBlock,
		srv.msg,
	)
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close link: %+v", err)
		return fmt.Errorf("could not close link: %w", err)
	}
	srv.data = make(chan []byte, 1024)
	srv.nevts.Store(0)
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.rdo == nil {
		return fmt.Errorf("could not start run: readout not initialized")
	}
	srv.nevts.Store(0)

	err := srv.rdo.Enable(ctx.Ctx, true)
	if err != nil {
		ctx.Msg.Errorf("could not enable readout: %+v", err)
		return fmt.Errorf("could not enable readout: %w", err)
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	n := srv.nevts.Load()
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	if srv.rdo == nil {
		return nil
	}

	// the readout loop selected other boards behind the back of the
	// chip interface.
	defer srv.ci.ResetSelection()

	err := srv.rdo.Enable(ctx.Ctx, false)
	if err != nil {
		ctx.Msg.Errorf("could not disable readout: %+v", err)
		return fmt.Errorf("could not disable readout: %w", err)
	}
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return srv.close()
}

// Events publishes the frames of the next decoded data block.
func (srv *Server) Events(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

// Run runs the readout loop until the end of the run.
func (srv *Server) Run(ctx tdaq.Context) error {
	if srv.rdo == nil {
		return fmt.Errorf("could not run: readout not initialized")
	}

	var (
		blocks   = make(chan Block, 16)
		grp, gtx = errgroup.WithContext(ctx.Ctx)
	)

	grp.Go(func() error {
		defer close(blocks)
		return srv.rdo.Run(gtx, blocks)
	})

	grp.Go(func() error {
		for blk := range blocks {
			buf, err := encode(blk)
			if err != nil {
				ctx.Msg.Errorf("could not encode block from board %d: %+v", blk.Board, err)
				return fmt.Errorf("could not encode block from board %d: %w", blk.Board, err)
			}
			srv.nevts.Add(int64(len(blk.Events)))
			select {
			case srv.data <- buf:
			default:
				ctx.Msg.Warnf("output queue full: dropping %d event(s) from board %d", len(blk.Events), blk.Board)
			}
		}
		return nil
	})

	err := grp.Wait()
	if err != nil {
		ctx.Msg.Errorf("readout loop failed: %+v", err)
		return err
	}
	return nil
}

func encode(blk Block) ([]byte, error) {
	var (
		buf = new(bytes.Buffer)
		enc = event.NewEncoder(buf)
	)
	for _, frame := range blk.Frames {
		err := enc.Write(frame)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// NumEvents returns the number of events decoded since the start of
// the current run.
func (srv *Server) NumEvents() int64 {
	return srv.nevts.Load()
}

// Chips returns the chip interface of the initialized server, or nil.
func (srv *Server) Chips() *chip.Interface {
	return srv.ci
}
