//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package memstore

import (
	"context"

	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

// NewStarSchema creates a store holding the given sales feed tables, every
// dimension table and the fact table, all empty.
func NewStarSchema(feeds ...string) *Store {
	s := New()
	for _, f := range feeds {
		s.CreateTable(f, warehouse.SalesColumns...)
	}
	for _, d := range warehouse.Dimensions() {
		s.CreateTable(d.Table, d.InsertColumns()...)
		s.CreateSequence(d.Sequence, 1)
	}
	s.CreateTable(warehouse.FactTable, warehouse.FactColumns...)
	s.CreateSequence(warehouse.FactSequence, 1)
	return s
}

// LoadRecords appends sales records to a feed table, creating it if
// needed.
func (s *Store) LoadRecords(feed string, records ...warehouse.SalesRecord) error {
	rows := make([][]any, len(records))
	for i := range records {
		rows[i] = records[i].Values()
	}
	s.CreateTable(feed, warehouse.SalesColumns...)
	_, err := s.Append(context.Background(), feed, warehouse.SalesColumns, rows)
	return err
}
