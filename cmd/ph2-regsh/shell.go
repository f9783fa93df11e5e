// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/ph2/board"
	"github.com/go-lpc/ph2/chip"
	"github.com/go-lpc/ph2/hwdesc"
	"github.com/go-lpc/ph2/reg"
)

var errQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	run   func(sh *shell, ctx context.Context, w io.Writer, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"chips": {
			usage: "chips",
			help:  "list the chips of the setup",
			run:   (*shell).cmdChips,
		},
		"regs": {
			usage: "regs ADDR",
			help:  "list the shadow registers of a chip",
			run:   (*shell).cmdRegs,
		},
		"read": {
			usage: "read ADDR REG",
			help:  "read a register from the hardware",
			run:   (*shell).cmdRead,
		},
		"write": {
			usage: "write ADDR REG VALUE [verify]",
			help:  "write a register, optionally reading it back",
			run:   (*shell).cmdWrite,
		},
		"field": {
			usage: "field ADDR NAME [VALUE]",
			help:  "get or set a multi-register field",
			run:   (*shell).cmdField,
		},
		"bcast": {
			usage: "bcast BOARD FE NCHIPS FAMILY REG VALUE",
			help:  "write a register of all the chips of a front-end",
			run:   (*shell).cmdBroadcast,
		},
		"configure": {
			usage: "configure [ADDR]",
			help:  "write the shadow registers of one or all chips to the hardware",
			run:   (*shell).cmdConfigure,
		},
		"board": {
			usage: "board ID REG [VALUE]",
			help:  "read or write a board register",
			run:   (*shell).cmdBoard,
		},
		"help": {
			usage: "help",
			help:  "print this help message",
			run:   (*shell).cmdHelp,
		},
		"quit": {
			usage: "quit",
			help:  "leave the shell",
			run: func(*shell, context.Context, io.Writer, []string) error {
				return errQuit
			},
		},
	}
}

type shell struct {
	setup *hwdesc.Setup
	link  board.Link
	ci    *chip.Interface
}

func (sh *shell) Close() error {
	if c, ok := sh.link.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (sh *shell) exec(ctx context.Context, w io.Writer, line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}
	cmd, ok := commands[toks[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", toks[0])
	}
	return cmd.run(sh, ctx, w, toks[1:])
}

func (sh *shell) complete(line string) []string {
	var out []string
	for name := range commands {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// parseAddr parses a chip address of the form board/fe/chip.
func parseAddr(s string) (reg.Address, error) {
	toks := strings.Split(s, "/")
	if len(toks) != 3 {
		return reg.Address{}, fmt.Errorf("invalid chip address %q (want board/fe/chip)", s)
	}
	brd, err := strconv.ParseUint(toks[0], 0, 16)
	if err != nil {
		return reg.Address{}, fmt.Errorf("invalid board id %q: %w", toks[0], err)
	}
	fe, err := strconv.ParseUint(toks[1], 0, 8)
	if err != nil {
		return reg.Address{}, fmt.Errorf("invalid front-end id %q: %w", toks[1], err)
	}
	id, err := strconv.ParseUint(toks[2], 0, 8)
	if err != nil {
		return reg.Address{}, fmt.Errorf("invalid chip id %q: %w", toks[2], err)
	}
	return reg.Address{Board: uint16(brd), FrontEnd: uint8(fe), Chip: uint8(id)}, nil
}

func parseValue(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return uint32(v), nil
}

func nargs(args []string, min, max int, usage string) error {
	if len(args) < min || len(args) > max {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (sh *shell) cmdChips(ctx context.Context, w io.Writer, args []string) error {
	if err := nargs(args, 0, 0, commands["chips"].usage); err != nil {
		return err
	}
	for _, brd := range sh.setup.Boards {
		for _, fe := range brd.FrontEnds {
			for _, c := range fe.Chips {
				a := reg.Address{Board: brd.ID, FrontEnd: fe.ID, Chip: c.ID}
				fmt.Fprintf(w, "%v %s\n", a, strings.ToUpper(c.Family))
			}
		}
	}
	return nil
}

func (sh *shell) cmdRegs(ctx context.Context, w io.Writer, args []string) error {
	if err := nargs(args, 1, 1, commands["regs"].usage); err != nil {
		return err
	}
	a, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	m, ok := sh.ci.Map(a)
	if !ok {
		return fmt.Errorf("unknown chip %v", a)
	}
	return reg.WriteMap(w, m)
}

func (sh *shell) cmdRead(ctx context.Context, w io.Writer, args []string) error {
	if err := nargs(args, 2, 2, commands["read"].usage); err != nil {
		return err
	}
	a, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	v, err := sh.ci.ReadRegister(ctx, a, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = 0x%02x\n", args[1], v)
	return nil
}

func (sh *shell) cmdWrite(ctx context.Context, w io.Writer, args []string) error {
	if err := nargs(args, 3, 4, commands["write"].usage); err != nil {
		return err
	}
	a, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	v, err := parseValue(args[2])
	if err != nil {
		return err
	}
	verify := false
	if len(args) == 4 {
		if args[3] != "verify" {
			return fmt.Errorf("usage: %s", commands["write"].usage)
		}
		verify = true
	}
	return sh.ci.WriteRegister(ctx, a, args[1], v, verify)
}

func (sh *shell) cmdField(ctx context.Context, w io.Writer, args []string) error {
	if err := nargs(args, 2, 3, commands["field"].usage); err != nil {
		return err
	}
	a, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	if len(args) == 3 {
		v, err := parseValue(args[2])
		if err != nil {
			return err
		}
		return sh.ci.WriteComposite(ctx, a, args[1], v, true)
	}
	v, err := sh.ci.Composite(a, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = %d (0x%x)\n", args[1], v, v)
	return nil
}

func (sh *shell) cmdBroadcast(ctx context.Context, w io.Writer, args []string) error {
	usage := commands["bcast"].usage
	if err := nargs(args, 6, 6, usage); err != nil {
		return err
	}
	brd, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid board id %q: %w", args[0], err)
	}
	fe, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid front-end id %q: %w", args[1], err)
	}
	n, err := strconv.ParseUint(args[2], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid number of chips %q: %w", args[2], err)
	}
	fam, err := chip.ParseFamily(args[3])
	if err != nil {
		return err
	}
	v, err := parseValue(args[5])
	if err != nil {
		return err
	}
	return sh.ci.BroadcastWrite(ctx, uint16(brd), uint8(fe), uint8(n), fam, args[4], v)
}

func (sh *shell) cmdConfigure(ctx context.Context, w io.Writer, args []string) error {
	if err := nargs(args, 0, 1, commands["configure"].usage); err != nil {
		return err
	}
	addrs := sh.ci.Chips()
	if len(args) == 1 {
		a, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		addrs = []reg.Address{a}
	}
	for _, a := range addrs {
		err := sh.ci.Configure(ctx, a)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%v: configured\n", a)
	}
	return nil
}

func (sh *shell) cmdBoard(ctx context.Context, w io.Writer, args []string) error {
	if err := nargs(args, 2, 3, commands["board"].usage); err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid board id %q: %w", args[0], err)
	}
	// board registers bypass the chip interface selection cache.
	defer sh.ci.ResetSelection()

	err = sh.link.Select(ctx, uint16(id))
	if err != nil {
		return fmt.Errorf("could not select board %d: %w", id, err)
	}
	if len(args) == 3 {
		v, err := parseValue(args[2])
		if err != nil {
			return err
		}
		return sh.link.WriteReg(ctx, args[1], v)
	}
	v, err := sh.link.ReadReg(ctx, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = 0x%08x\n", args[1], v)
	return nil
}

func (sh *shell) cmdHelp(ctx context.Context, w io.Writer, args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(w, "%-40s %s\n", cmd.usage, cmd.help)
	}
	return nil
}
