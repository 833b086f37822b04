//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pgstore implements the warehouse store on PostgreSQL.
package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pgEdge/pgedge-starload/internal/logging"
	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

var (
	_ warehouse.Store         = (*Store)(nil)
	_ warehouse.BlockIssuer   = (*Store)(nil)
	_ warehouse.SnapshotStore = (*Store)(nil)
)

// DB is satisfied by *pgxpool.Pool and *pgx.Conn.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store reads with SELECT, appends with COPY and issues keys from
// sequences.
type Store struct {
	db DB
}

// New creates a store over db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Identifier splits a possibly schema-qualified name.
func Identifier(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

func selectSQL(table string, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), Identifier(table).Sanitize())
}

func scan(ctx context.Context, q querier, table string, columns []string) ([][]any, error) {
	rows, err := q.Query(ctx, selectSQL(table, columns))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s row: %w", table, err)
		}
		for i, v := range vals {
			if vals[i], err = normalize(v); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", table, columns[i], err)
			}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return out, nil
}

// normalize maps driver values onto the plain Go types the engine
// compares: int64, float64, string and time.Time.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case pgtype.Numeric:
		if !t.Valid {
			return nil, nil
		}
		f, err := t.Float64Value()
		if err != nil {
			return nil, err
		}
		return f.Float64, nil
	default:
		return v, nil
	}
}

// Scan implements warehouse.Scanner.
func (s *Store) Scan(ctx context.Context, table string, columns []string) ([][]any, error) {
	return scan(ctx, s.db, table, columns)
}

// Append implements warehouse.Store using COPY.
func (s *Store) Append(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := s.db.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy into %s: %w", table, err)
	}

	logging.Debug().
		Str("table", table).
		Int64("rows", n).
		Msg("Appended rows")
	return n, nil
}

// IssueNext implements warehouse.Store.
func (s *Store) IssueNext(ctx context.Context, sequence string) (int64, error) {
	var v int64
	if err := s.db.QueryRow(ctx, `SELECT nextval($1::regclass)`, sequence).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to advance %s: %w", sequence, err)
	}
	return v, nil
}

// IssueBlock implements warehouse.BlockIssuer with one round trip.
func (s *Store) IssueBlock(ctx context.Context, sequence string, n int) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT nextval($1::regclass) FROM generate_series(1, $2::int)`, sequence, n)
	if err != nil {
		return nil, fmt.Errorf("failed to advance %s: %w", sequence, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to advance %s: %w", sequence, err)
	}
	return keys, nil
}

// WithSnapshot implements warehouse.SnapshotStore with a read-only
// REPEATABLE READ transaction.
func (s *Store) WithSnapshot(ctx context.Context, fn func(warehouse.Scanner) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(txScanner{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txScanner struct {
	tx pgx.Tx
}

func (t txScanner) Scan(ctx context.Context, table string, columns []string) ([][]any, error) {
	return scan(ctx, t.tx, table, columns)
}
