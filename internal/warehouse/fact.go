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
	"slices"
	"time"

	"github.com/pgEdge/pgedge-starload/internal/logging"
)

const (
	// FactStage is the stage name of the fact assembler.
	FactStage = "fact"

	// FactTable is the sales fact table.
	FactTable = "sales_fact"

	// FactSequence issues order_id_pk values.
	FactSequence = "sales_fact_seq"
)

// FactColumns is the column layout of the fact table.
var FactColumns = []string{
	"order_id_pk",
	"order_code",
	"date_id_fk",
	"region_id_fk",
	"customer_id_fk",
	"payment_id_fk",
	"product_id_fk",
	"promo_code_id_fk",
	"order_quantity",
	"local_total_order_amt",
	"local_tax_amt",
	"exchange_rate",
	"us_total_order_amt",
	"usd_tax_amt",
}

// JoinOrder is the order in which sales records are resolved against the
// dimensions. A record is charged to the first dimension it misses.
func JoinOrder() []*Dimension {
	return []*Dimension{Date, Customer, Payment, Product, PromoCode, Region}
}

// Assembler resolves sales records to dimension surrogate keys and appends
// fact rows.
type Assembler struct {
	store  Store
	issuer *KeyIssuer

	// SkipLoaded skips records whose (order_code, region) is already in
	// the fact table.
	SkipLoaded bool
}

// NewAssembler creates a fact assembler.
func NewAssembler(store Store, issuer *KeyIssuer) *Assembler {
	return &Assembler{store: store, issuer: issuer, SkipLoaded: true}
}

type factState struct {
	lookups map[string]map[NaturalKey]int64
	loaded  map[NaturalKey]struct{}
}

func (a *Assembler) readState(ctx context.Context, sc Scanner) (*factState, error) {
	st := &factState{lookups: make(map[string]map[NaturalKey]int64)}
	for _, d := range JoinOrder() {
		ids, err := d.surrogateKeys(ctx, sc)
		if err != nil {
			return nil, err
		}
		st.lookups[d.Name] = ids
	}
	if !a.SkipLoaded {
		return st, nil
	}

	rows, err := sc.Scan(ctx, FactTable, []string{"order_code", Region.FactColumn})
	if err != nil {
		return nil, storeError("scan", FactTable, err)
	}
	st.loaded = make(map[NaturalKey]struct{}, len(rows))
	for _, row := range rows {
		st.loaded[loadedKey(asString(row[0]), row[1])] = struct{}{}
	}
	return st, nil
}

// loadState reads every dimension mapping, from one consistent snapshot
// when the store supports it.
func (a *Assembler) loadState(ctx context.Context) (*factState, error) {
	ss, ok := a.store.(SnapshotStore)
	if !ok {
		return a.readState(ctx, a.store)
	}

	var (
		st      *factState
		readErr error
	)
	err := ss.WithSnapshot(ctx, func(sc Scanner) error {
		st, readErr = a.readState(ctx, sc)
		return readErr
	})
	if err != nil {
		if readErr != nil {
			return nil, readErr
		}
		return nil, storeError("snapshot", "dimensions", err)
	}
	return st, nil
}

func loadedKey(orderCode string, regionID any) NaturalKey {
	id, err := asInt64(regionID)
	if err != nil {
		return MakeKey(orderCode, regionID)
	}
	return MakeKey(orderCode, id)
}

// Assemble resolves every record of snap and appends the matched rows to
// the fact table. Records that miss any dimension are dropped and counted.
func (a *Assembler) Assemble(ctx context.Context, snap *Snapshot) (res StageResult) {
	start := time.Now()
	res = StageResult{Stage: FactStage, Table: FactTable, Misses: make(map[string]int)}
	defer func() {
		res.Duration = time.Since(start)
	}()

	log := logging.With("fact")
	log.Info().Int("records", len(snap.Records)).Msg("Assembling facts")

	st, err := a.loadState(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.Candidates = len(snap.Records)
	res.Existing = len(st.loaded)

	joins := JoinOrder()
	pos := make(map[string]int, len(joins))
	for _, d := range joins {
		pos[d.Name] = slices.Index(FactColumns, d.FactColumn)
	}

	var rows [][]any
	for i := range snap.Records {
		rec := &snap.Records[i]
		row := make([]any, len(FactColumns))

		matched := true
		for _, d := range joins {
			id, ok := st.lookups[d.Name][d.RecordKey(rec)]
			if !ok {
				res.Misses[d.Name]++
				matched = false
				break
			}
			row[pos[d.Name]] = id
		}
		if !matched {
			res.Dropped++
			continue
		}

		if st.loaded != nil {
			k := loadedKey(rec.OrderID, row[pos[Region.Name]])
			if _, seen := st.loaded[k]; seen {
				res.Skipped++
				continue
			}
			st.loaded[k] = struct{}{}
		}

		row[1] = rec.OrderID
		row[8] = rec.OrderQuantity
		row[9] = rec.LocalTotalOrderAmt
		row[10] = rec.LocalTaxAmt
		row[11] = rec.ExchangeRate
		row[12] = rec.USTotalOrderAmt
		row[13] = rec.USDTaxAmt
		rows = append(rows, row)
	}

	if res.Dropped > 0 {
		ev := log.Warn().Int("dropped", res.Dropped)
		for name, n := range res.Misses {
			ev = ev.Int("missing_"+name, n)
		}
		ev.Msg("Dropped sales records with unresolved dimensions")
	}
	if res.Skipped > 0 {
		log.Info().Int("skipped", res.Skipped).Msg("Skipped orders already loaded")
	}
	if len(rows) == 0 {
		log.Info().Msg("No new facts")
		return res
	}

	keys, err := a.issuer.Issue(ctx, FactSequence, len(rows))
	if err != nil {
		res.Err = err
		return res
	}
	for i := range rows {
		rows[i][0] = keys[i]
	}

	n, err := a.store.Append(ctx, FactTable, FactColumns, rows)
	if err != nil {
		res.Err = storeError("append", FactTable, err)
		return res
	}
	if int(n) != len(rows) {
		res.Err = fmt.Errorf("appended %d of %d fact rows", n, len(rows))
	}
	res.Inserted = int(n)

	log.Info().Int("inserted", res.Inserted).Msg("Facts appended")
	return res
}
