//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse implements the dimensional upsert and fact assembly
// engine that loads the sales star schema.
package warehouse

import (
	"context"
)

// Scanner reads whole-table projections from the relational store.
type Scanner interface {
	// Scan returns every row of table projected onto columns, in column
	// order. NULL values are returned as nil.
	Scan(ctx context.Context, table string, columns []string) ([][]any, error)
}

// Store is the relational store the engine reads from and appends to.
// Implementations must be safe for concurrent use.
type Store interface {
	Scanner

	// Append inserts rows into table. Each row holds one value per column.
	// It returns the number of rows written.
	Append(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// IssueNext returns the next value of the named sequence. Values are
	// strictly increasing and never reused; gaps are allowed.
	IssueNext(ctx context.Context, sequence string) (int64, error)
}

// BlockIssuer is implemented by stores that can hand out several sequence
// values in one round trip.
type BlockIssuer interface {
	IssueBlock(ctx context.Context, sequence string, n int) ([]int64, error)
}

// SnapshotStore is implemented by stores that can serve several scans from
// one consistent read snapshot.
type SnapshotStore interface {
	WithSnapshot(ctx context.Context, fn func(Scanner) error) error
}
