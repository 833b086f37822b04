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
	"context"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-starload/internal/logging"
)

// ActiveFlag is written to is_active on every inserted dimension row.
// Nothing deactivates rows.
const ActiveFlag = "Y"

// Dimension describes one dimension table and how its rows are derived
// from the sales stream.
type Dimension struct {
	// Name is the stage name used in reports and metrics.
	Name string

	// Table is the dimension table.
	Table string

	// IDColumn holds the surrogate key.
	IDColumn string

	// FactColumn is the foreign key column in the fact table.
	FactColumn string

	// Sequence issues surrogate keys for Table.
	Sequence string

	// KeyColumns form the natural key.
	KeyColumns []string

	// AttrColumns are descriptive columns outside the natural key.
	AttrColumns []string

	// project returns the natural key values of a sales record, in
	// KeyColumns order.
	project func(r *SalesRecord) []any

	// generate, when set, derives candidates from the whole snapshot
	// instead of projecting each record.
	generate func(s *Snapshot) ([]Candidate, error)
}

// Candidate is a dimension row that has not been assigned a surrogate key.
type Candidate struct {
	Key NaturalKey

	// Values holds KeyColumns followed by AttrColumns.
	Values []any

	// Occurrences counts the sales records that produced this candidate.
	Occurrences int
}

// Columns returns the natural key columns followed by the attribute
// columns.
func (d *Dimension) Columns() []string {
	cols := make([]string, 0, len(d.KeyColumns)+len(d.AttrColumns))
	cols = append(cols, d.KeyColumns...)
	return append(cols, d.AttrColumns...)
}

// InsertColumns returns the full column list written on append.
func (d *Dimension) InsertColumns() []string {
	cols := make([]string, 0, len(d.KeyColumns)+len(d.AttrColumns)+2)
	cols = append(cols, d.IDColumn)
	cols = append(cols, d.Columns()...)
	return append(cols, "is_active")
}

// RecordKey returns the natural key a sales record resolves to in this
// dimension.
func (d *Dimension) RecordKey(r *SalesRecord) NaturalKey {
	return MakeKey(d.project(r)...)
}

// Candidates derives the deduplicated candidate rows for this dimension.
// The first occurrence of each natural key wins and order of first
// appearance is preserved.
func (d *Dimension) Candidates(s *Snapshot) ([]Candidate, error) {
	var raw []Candidate
	if d.generate != nil {
		var err error
		if raw, err = d.generate(s); err != nil {
			return nil, err
		}
	} else {
		raw = make([]Candidate, 0, len(s.Records))
		for i := range s.Records {
			vals := d.project(&s.Records[i])
			raw = append(raw, Candidate{Key: MakeKey(vals...), Values: vals, Occurrences: 1})
		}
	}

	index := make(map[NaturalKey]int, len(raw))
	out := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		if c.Occurrences == 0 {
			c.Occurrences = 1
		}
		if i, ok := index[c.Key]; ok {
			out[i].Occurrences += c.Occurrences
			continue
		}
		index[c.Key] = len(out)
		out = append(out, c)
	}
	return out, nil
}

// existingKeys reads the natural keys already persisted in the dimension.
func (d *Dimension) existingKeys(ctx context.Context, sc Scanner) (map[NaturalKey]struct{}, error) {
	rows, err := sc.Scan(ctx, d.Table, d.KeyColumns)
	if err != nil {
		return nil, storeError("scan", d.Table, err)
	}
	keys := make(map[NaturalKey]struct{}, len(rows))
	for _, row := range rows {
		k := MakeKey(normalizeKeyValues(row)...)
		if _, dup := keys[k]; dup {
			return nil, fmt.Errorf("%w: %s holds %s more than once", ErrDuplicateNaturalKey, d.Table, k)
		}
		keys[k] = struct{}{}
	}
	return keys, nil
}

// surrogateKeys reads the natural key to surrogate key mapping of the
// dimension.
func (d *Dimension) surrogateKeys(ctx context.Context, sc Scanner) (map[NaturalKey]int64, error) {
	cols := append([]string{d.IDColumn}, d.KeyColumns...)
	rows, err := sc.Scan(ctx, d.Table, cols)
	if err != nil {
		return nil, storeError("scan", d.Table, err)
	}
	ids := make(map[NaturalKey]int64, len(rows))
	for _, row := range rows {
		id, err := asInt64(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Table, d.IDColumn, err)
		}
		k := MakeKey(normalizeKeyValues(row[1:])...)
		if _, dup := ids[k]; dup {
			return nil, fmt.Errorf("%w: %s holds %s more than once", ErrDuplicateNaturalKey, d.Table, k)
		}
		ids[k] = id
	}
	return ids, nil
}

// normalizeKeyValues maps dates read back from the store onto calendar
// days so they compare equal to stream values.
func normalizeKeyValues(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		if t, ok := v.(time.Time); ok {
			out[i] = truncateDay(t)
			continue
		}
		out[i] = v
	}
	return out
}

// Builder applies the anti-join upsert for dimensions.
type Builder struct {
	store  Store
	issuer *KeyIssuer
}

// NewBuilder creates a dimension builder.
func NewBuilder(store Store, issuer *KeyIssuer) *Builder {
	return &Builder{store: store, issuer: issuer}
}

// Build derives candidates for d, drops those whose natural key is already
// persisted, assigns surrogate keys to the rest and appends them. Errors
// are returned in the result as well as directly.
func (b *Builder) Build(ctx context.Context, d *Dimension, snap *Snapshot) (res StageResult) {
	start := time.Now()
	res = StageResult{Stage: d.Name, Table: d.Table}
	defer func() {
		res.Duration = time.Since(start)
	}()

	log := logging.With("dimension").With().Str("stage", d.Name).Logger()
	log.Info().Str("table", d.Table).Msg("Building dimension")

	candidates, err := d.Candidates(snap)
	if err != nil {
		res.Err = fmt.Errorf("failed to derive %s candidates: %w", d.Name, err)
		return res
	}
	res.Candidates = len(candidates)

	existing, err := d.existingKeys(ctx, b.store)
	if err != nil {
		res.Err = err
		return res
	}
	res.Existing = len(existing)

	fresh := candidates[:0:0]
	for _, c := range candidates {
		if _, ok := existing[c.Key]; ok {
			continue
		}
		fresh = append(fresh, c)
	}

	log.Debug().
		Int("candidates", len(candidates)).
		Int("existing", len(existing)).
		Int("new", len(fresh)).
		Msg("Anti-join complete")

	if len(fresh) == 0 {
		log.Info().Msg("No new records")
		return res
	}

	keys, err := b.issuer.Issue(ctx, d.Sequence, len(fresh))
	if err != nil {
		res.Err = err
		return res
	}

	rows := make([][]any, len(fresh))
	for i, c := range fresh {
		row := make([]any, 0, len(c.Values)+2)
		row = append(row, keys[i])
		row = append(row, c.Values...)
		rows[i] = append(row, ActiveFlag)
	}

	n, err := b.store.Append(ctx, d.Table, d.InsertColumns(), rows)
	if err != nil {
		res.Err = storeError("append", d.Table, err)
		return res
	}
	res.Inserted = int(n)

	log.Info().
		Int("inserted", res.Inserted).
		Msg("Dimension updated")
	return res
}
