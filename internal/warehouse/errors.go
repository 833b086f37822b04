//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps any failure talking to the relational store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmptyRange is returned when the date dimension is built from a
	// stream with no order dates.
	ErrEmptyRange = errors.New("no order date range in sales stream")

	// ErrDuplicateNaturalKey means persisted dimension state holds the same
	// natural key twice. The anti-join should make this impossible, so it
	// points at a concurrent load or a logic error.
	ErrDuplicateNaturalKey = errors.New("duplicate natural key")

	// ErrDuplicateSurrogateKey means the key issuer returned a value that
	// was already handed out.
	ErrDuplicateSurrogateKey = errors.New("duplicate surrogate key")
)

func storeError(op, target string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, target, err)
}
