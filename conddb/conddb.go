// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the configuration database
// of the front-end chips: setups, chip layouts and register maps.
package conddb // import "github.com/go-lpc/ph2/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/go-lpc/ph2/reg"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve configuration data
// from the chips database.
type DB struct {
	db   *sql.DB
	name string // name of the database
}

// Chip describes a chip of a setup, as stored in the database.
type Chip struct {
	Board    uint16
	FrontEnd uint8
	ID       uint8
	Family   string // chip family (CBC, CIC, SSA, MPA)
	Config   string // name of the register configuration
}

// Address returns the routing address of the chip.
func (c Chip) Address() reg.Address {
	return reg.Address{Board: c.Board, FrontEnd: c.FrontEnd, Chip: c.ID}
}

// DAQState describes the readout settings of a setup.
type DAQState struct {
	ID          uint64
	Setup       string
	TriggerMode uint16
	Latency     uint16 // trigger latency, in bunch crossings
}

// Open opens a connection to the chips database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastSetup returns the name of the most recently declared setup.
func (db *DB) LastSetup(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	setup := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM setups ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return setup, fmt.Errorf("conddb: could not query setup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&setup)
		if err != nil {
			return setup, fmt.Errorf("conddb: could not get setup value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return setup, fmt.Errorf("conddb: could not scan db for setup: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return setup, fmt.Errorf("conddb: context error while retrieving setup: %w", err)
	}

	return setup, nil
}

// Chips returns the chips declared for the provided setup.
func (db *DB) Chips(ctx context.Context, setup string) ([]Chip, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var chips []Chip
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT chips.board, chips.fe, chips.chip, chips.family, chips.config FROM chips
JOIN setups ON setups.identifier=chips.setup
WHERE setups.name=?
ORDER BY chips.board, chips.fe, chips.chip
`,
		setup,
	)
	if err != nil {
		return chips, fmt.Errorf("conddb: could not run chips query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var chip Chip
		err = rows.Scan(&chip.Board, &chip.FrontEnd, &chip.ID, &chip.Family, &chip.Config)
		if err != nil {
			return chips, fmt.Errorf("conddb: could not scan row %d for chips: %w", i, err)
		}
		i++
		chips = append(chips, chip)
	}

	if err := rows.Err(); err != nil {
		return chips, fmt.Errorf("conddb: could not scan db for chips: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return chips, fmt.Errorf("conddb: context error while retrieving chips: %w", err)
	}

	return chips, nil
}

// RegisterMap returns the register map stored under the provided
// configuration name.
func (db *DB) RegisterMap(ctx context.Context, config string) (reg.Map, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m := make(reg.Map)
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT registers.name, registers.page, registers.addr, registers.width, registers.value
FROM registers
JOIN configs ON configs.identifier=registers.config
WHERE configs.name=?
`,
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not run register map query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var (
			name string
			desc reg.Descriptor
		)
		err = rows.Scan(&name, &desc.Page, &desc.Addr, &desc.Width, &desc.Value)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan row %d for register map: %w", i, err)
		}
		i++
		if _, dup := m[name]; dup {
			return nil, fmt.Errorf("conddb: duplicate register %q in config %q", name, config)
		}
		if !desc.Fits(desc.Value) {
			return nil, fmt.Errorf(
				"conddb: register %q value 0x%x overflows %d bits",
				name, desc.Value, desc.Width,
			)
		}
		m[name] = desc
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for register map: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving register map: %w", err)
	}

	return m, nil
}

func (db *DB) DAQStates(ctx context.Context) ([]DAQState, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cfg []DAQState
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT daqstates.identifier, setups.name, daqstates.trigger_mode, daqstates.latency
FROM daqstates
JOIN setups ON setups.identifier=daqstates.setup
`,
	)
	if err != nil {
		return cfg, fmt.Errorf(
			"conddb: could not run daqstates query: %w",
			err,
		)
	}
	defer rows.Close()

	for rows.Next() {
		var daq DAQState
		err = rows.Scan(&daq.ID, &daq.Setup, &daq.TriggerMode, &daq.Latency)
		if err != nil {
			return cfg, fmt.Errorf(
				"conddb: could not scan daqstates: %w",
				err,
			)
		}
		cfg = append(cfg, daq)
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf(
			"conddb: could not scan db for daqstates: %w",
			err,
		)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf(
			"conddb: context error while retrieving daqstates: %w",
			err,
		)
	}

	return cfg, nil
}
