// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package board defines the operations needed from an FPGA board link
// to drive front-end chips and read out event data, and provides a
// register-window implementation of that link.
package board // import "github.com/go-lpc/ph2/board"

import (
	"context"
)

// Link is a connection to one or more FPGA boards.
//
// Implementations report transport failures (unreachable board, time
// out, ...) as errors. Callers do not expect a Link to retry.
type Link interface {
	// Select selects the board with the given id as the target of
	// the following operations.
	Select(ctx context.Context, id uint16) error

	// Send sends a block of command words and returns the words sent
	// back by the board, as echoes or acknowledgements.
	Send(ctx context.Context, words []uint32) ([]uint32, error)

	// ReadBlock reads n words from the named board register.
	ReadBlock(ctx context.Context, name string, n int) ([]uint32, error)

	// ReadReg reads the named board register.
	ReadReg(ctx context.Context, name string) (uint32, error)

	// WriteReg writes v to the named board register.
	WriteReg(ctx context.Context, name string, v uint32) error
}

// Well-known board registers.
const (
	RegBoardID   = "ctrl.board_id"       // id of the selected board
	RegCommand   = "command.fifo"        // command FIFO
	RegReply     = "command.reply"       // reply FIFO
	RegNReplies  = "command.nreplies"    // number of words in the reply FIFO
	RegReadout   = "readout.fifo"        // event data FIFO
	RegNWords    = "readout.nwords"      // number of words in the event data FIFO
	RegReadoutOn = "readout.ctrl.enable" // readout enable flag
)
