// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ph2-sql inspects the setups and chip configurations stored
// in the conditions database.
package main // import "github.com/go-lpc/ph2/cmd/ph2-sql"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/go-lpc/ph2/conddb"
	"github.com/go-lpc/ph2/reg"
)

const (
	dbname = "ph2"
)

func main() {
	log.SetPrefix("ph2-sql: ")
	log.SetFlags(0)

	var (
		setup = flag.String("setup", "", "setup to inspect (default: last declared setup)")
		odir  = flag.String("dump", "", "directory where to write register maps")
	)

	flag.Parse()

	log.Printf("setup: %q", *setup)

	db, err := conddb.Open(dbname)
	if err != nil {
		log.Fatalf("could not open PH2 db: %+v", err)
	}
	defer db.Close()

	err = doQuery(db, *setup, *odir)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(db *conddb.DB, setup, odir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if setup == "" {
		v, err := db.LastSetup(ctx)
		if err != nil {
			return fmt.Errorf("could not get last setup: %w", err)
		}
		setup = v
		log.Printf("setup: %q", setup)
	}

	chips, err := db.Chips(ctx, setup)
	if err != nil {
		return fmt.Errorf("could not get chips of setup %q: %w", setup, err)
	}
	log.Printf("chips: %d", len(chips))
	for _, chip := range chips {
		log.Printf(">>> %v: family=%s, config=%q", chip.Address(), chip.Family, chip.Config)
	}

	for _, cfg := range configs(chips) {
		m, err := db.RegisterMap(ctx, cfg)
		if err != nil {
			return fmt.Errorf("could not get register map %q: %w", cfg, err)
		}
		log.Printf("config %q: %d registers", cfg, len(m))
		if odir == "" {
			continue
		}
		err = writeMap(filepath.Join(odir, cfg+".txt"), m)
		if err != nil {
			return fmt.Errorf("could not dump register map %q: %w", cfg, err)
		}
	}

	daqstates, err := db.DAQStates(ctx)
	if err != nil {
		return fmt.Errorf("could not retrieve daqstates: %w", err)
	}
	log.Printf("daqstates: %d", len(daqstates))
	for i, daq := range daqstates {
		log.Printf("row[%d]: %#v", i, daq)
	}

	return nil
}

// configs returns the sorted set of configurations used by chips.
func configs(chips []conddb.Chip) []string {
	set := make(map[string]struct{}, len(chips))
	for _, chip := range chips {
		set[chip.Config] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeMap(fname string, m reg.Map) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create register file: %w", err)
	}
	defer f.Close()

	err = reg.WriteMap(f, m)
	if err != nil {
		return fmt.Errorf("could not write register file: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close register file: %w", err)
	}
	return nil
}
