// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb is an in-memory database/sql driver, registered as
// "fakedb", used to test the condition DB queries.
//
// Every query issued within Run returns a fresh copy of the canned rows
// and is recorded, with its arguments, for later inspection.
package fakedb // import "github.com/go-lpc/ph2/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Query is a query issued against the fake database.
type Query struct {
	SQL  string
	Args []driver.Value
}

var db struct {
	mu   sync.Mutex
	rows Rows
	log  []Query
}

// Run runs f with the fake database answering every query with rows.
// Run returns the queries issued by f, in order.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) ([]Query, error) {
	db.mu.Lock()
	db.rows = rows
	db.log = nil
	db.mu.Unlock()

	err := f(ctx)

	db.mu.Lock()
	defer db.mu.Unlock()
	log := db.log
	db.rows = Rows{}
	db.log = nil
	return log, err
}

func query(q string, args []driver.NamedValue) *Rows {
	db.mu.Lock()
	defer db.mu.Unlock()

	vs := make([]driver.Value, len(args))
	for i, a := range args {
		vs[i] = a.Value
	}
	db.log = append(db.log, Query{SQL: strings.TrimSpace(q), Args: vs})

	rows := &Rows{
		Names:  db.rows.Names,
		Values: make([][]driver.Value, len(db.rows.Values)),
	}
	copy(rows.Values, db.rows.Values)
	return rows
}

func init() {
	sql.Register("fakedb", Driver{})
}

type Driver struct{}

func (Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a statement for the queries that do not go through
// QueryContext.
func (c *Conn) Prepare(q string) (driver.Stmt, error) {
	return &Stmt{sql: q}, nil
}

func (c *Conn) Close() error { return nil }

func (c *Conn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("fakedb: transactions not supported")
}

func (c *Conn) QueryContext(ctx context.Context, q string, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return query(q, args), nil
}

type Stmt struct {
	sql string
}

func (stmt *Stmt) Close() error  { return nil }
func (stmt *Stmt) NumInput() int { return -1 }

func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, fmt.Errorf("fakedb: read-only database")
}

func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	nv := make([]driver.NamedValue, len(args))
	for i, v := range args {
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return query(stmt.sql, nv), nil
}

// Rows is a canned result set.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string { return rows.Names }
func (rows *Rows) Close() error      { return nil }

func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver         = Driver{}
	_ driver.Conn           = (*Conn)(nil)
	_ driver.QueryerContext = (*Conn)(nil)
	_ driver.Stmt           = (*Stmt)(nil)
	_ driver.Rows           = (*Rows)(nil)
)
