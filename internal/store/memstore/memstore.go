//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package memstore provides an in-memory relational store for tests and
// dry runs.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

var (
	_ warehouse.Store         = (*Store)(nil)
	_ warehouse.BlockIssuer   = (*Store)(nil)
	_ warehouse.SnapshotStore = (*Store)(nil)
)

type table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

func newTable(columns []string) *table {
	t := &table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		t.index[c] = i
	}
	return t
}

func (t *table) project(name string, columns []string) ([][]any, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		pos, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("column %q does not exist in %s", c, name)
		}
		idx[i] = pos
	}
	out := make([][]any, len(t.rows))
	for r, row := range t.rows {
		proj := make([]any, len(idx))
		for i, pos := range idx {
			proj[i] = row[pos]
		}
		out[r] = proj
	}
	return out, nil
}

func (t *table) clone() *table {
	c := &table{columns: t.columns, index: t.index, rows: make([][]any, len(t.rows))}
	copy(c.rows, t.rows)
	return c
}

// Store is a mutex-guarded set of tables and sequences.
type Store struct {
	mu        sync.RWMutex
	tables    map[string]*table
	sequences map[string]int64
	faults    map[string]error

	scans   int
	appends int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tables:    make(map[string]*table),
		sequences: make(map[string]int64),
		faults:    make(map[string]error),
	}
}

// CreateTable adds an empty table. Creating an existing table is a no-op.
func (s *Store) CreateTable(name string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return
	}
	s.tables[name] = newTable(columns)
}

// CreateSequence adds a sequence whose first value is start.
func (s *Store) CreateSequence(name string, start int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[name] = start - 1
}

// Fail makes every operation of kind op ("scan", "append" or "issue") on
// target return err. A nil err clears the fault.
func (s *Store) Fail(op, target string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + ":" + target
	if err == nil {
		delete(s.faults, key)
		return
	}
	s.faults[key] = err
}

func (s *Store) fault(op, target string) error {
	return s.faults[op+":"+target]
}

// Scan implements warehouse.Scanner.
func (s *Store) Scan(ctx context.Context, name string, columns []string) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("scan", name); err != nil {
		return nil, err
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	s.scans++
	return t.project(name, columns)
}

// Append implements warehouse.Store. Columns not named are left NULL.
func (s *Store) Append(ctx context.Context, name string, columns []string, rows [][]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("append", name); err != nil {
		return 0, err
	}
	t, ok := s.tables[name]
	if !ok {
		return 0, fmt.Errorf("relation %q does not exist", name)
	}

	idx := make([]int, len(columns))
	for i, c := range columns {
		pos, ok := t.index[c]
		if !ok {
			return 0, fmt.Errorf("column %q does not exist in %s", c, name)
		}
		idx[i] = pos
	}

	staged := make([][]any, 0, len(rows))
	for n, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d has %d values, expected %d", n+1, len(row), len(columns))
		}
		full := make([]any, len(t.columns))
		for i, pos := range idx {
			full[pos] = row[i]
		}
		staged = append(staged, full)
	}
	t.rows = append(t.rows, staged...)
	s.appends++
	return int64(len(staged)), nil
}

// IssueNext implements warehouse.Store. Unknown sequences start at 1.
func (s *Store) IssueNext(ctx context.Context, sequence string) (int64, error) {
	keys, err := s.IssueBlock(ctx, sequence, 1)
	if err != nil {
		return 0, err
	}
	return keys[0], nil
}

// IssueBlock implements warehouse.BlockIssuer.
func (s *Store) IssueBlock(ctx context.Context, sequence string, n int) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("issue", sequence); err != nil {
		return nil, err
	}
	last := s.sequences[sequence]
	keys := make([]int64, n)
	for i := range keys {
		last++
		keys[i] = last
	}
	s.sequences[sequence] = last
	return keys, nil
}

// WithSnapshot implements warehouse.SnapshotStore by running fn over a copy
// of every table taken under one lock.
func (s *Store) WithSnapshot(ctx context.Context, fn func(warehouse.Scanner) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	frozen := &snapshot{tables: make(map[string]*table, len(s.tables)), faults: make(map[string]error, len(s.faults))}
	for name, t := range s.tables {
		frozen.tables[name] = t.clone()
	}
	for k, err := range s.faults {
		frozen.faults[k] = err
	}
	s.mu.RUnlock()
	return fn(frozen)
}

// Rows returns a copy of every row of a table with all its columns.
func (s *Store) Rows(name string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	out := make([]map[string]any, len(t.rows))
	for r, row := range t.rows {
		m := make(map[string]any, len(t.columns))
		for i, c := range t.columns {
			m[c] = row[i]
		}
		out[r] = m
	}
	return out, nil
}

// Count returns the number of rows in a table, or -1 if it does not exist.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return -1
	}
	return len(t.rows)
}

// Stats returns the number of scans and appends served.
func (s *Store) Stats() (scans, appends int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scans, s.appends
}

type snapshot struct {
	tables map[string]*table
	faults map[string]error
}

func (f *snapshot) Scan(ctx context.Context, name string, columns []string) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.faults["scan:"+name]; err != nil {
		return nil, err
	}
	t, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	return t.project(name, columns)
}
