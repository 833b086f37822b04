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
	"strconv"
	"time"

	"github.com/pgEdge/pgedge-starload/internal/logging"
)

// NoPromotion is the promotion code used for orders placed without one.
const NoPromotion = "NA"

// SalesRecord is one row of the unified sales stream.
type SalesRecord struct {
	OrderID            string
	OrderDate          time.Time
	CustomerName       string
	ContactNo          string
	ShippingAddress    string
	MobileKey          string
	Country            string
	Region             string
	OrderQuantity      int64
	LocalCurrency      string
	LocalUnitPrice     float64
	PromotionCode      *string
	LocalTotalOrderAmt float64
	LocalTaxAmt        float64
	ExchangeRate       float64
	USTotalOrderAmt    float64
	USDTaxAmt          float64
	PaymentStatus      string
	ShippingStatus     string
	PaymentMethod      string
	PaymentProvider    string
}

// SalesColumns is the column layout shared by every regional feed table.
// The union of feeds is taken over exactly these columns.
var SalesColumns = []string{
	"order_id",
	"order_dt",
	"customer_name",
	"contact_no",
	"shipping_address",
	"mobile_key",
	"country",
	"region",
	"order_quantity",
	"local_currency",
	"local_unit_price",
	"promotion_code",
	"local_total_order_amt",
	"local_tax_amt",
	"exchange_rate",
	"us_total_order_amt",
	"usd_tax_amt",
	"payment_status",
	"shipping_status",
	"payment_method",
	"payment_provider",
}

// NormalizedPromotionCode returns the promotion code with NULL mapped to
// NoPromotion. The PromoCode dimension and the fact join both go through
// this so a NULL code always resolves to the "NA" row.
func (r *SalesRecord) NormalizedPromotionCode() string {
	if r.PromotionCode == nil {
		return NoPromotion
	}
	return *r.PromotionCode
}

// Values returns the record laid out in SalesColumns order.
func (r *SalesRecord) Values() []any {
	var promo any
	if r.PromotionCode != nil {
		promo = *r.PromotionCode
	}
	return []any{
		r.OrderID,
		r.OrderDate,
		r.CustomerName,
		r.ContactNo,
		r.ShippingAddress,
		r.MobileKey,
		r.Country,
		r.Region,
		r.OrderQuantity,
		r.LocalCurrency,
		r.LocalUnitPrice,
		promo,
		r.LocalTotalOrderAmt,
		r.LocalTaxAmt,
		r.ExchangeRate,
		r.USTotalOrderAmt,
		r.USDTaxAmt,
		r.PaymentStatus,
		r.ShippingStatus,
		r.PaymentMethod,
		r.PaymentProvider,
	}
}

// recordFromRow converts a row scanned with SalesColumns.
func recordFromRow(row []any) (SalesRecord, error) {
	if len(row) != len(SalesColumns) {
		return SalesRecord{}, fmt.Errorf("expected %d columns, got %d", len(SalesColumns), len(row))
	}

	var (
		rec SalesRecord
		err error
	)
	rec.OrderID = asString(row[0])
	if rec.OrderDate, err = asDate(row[1]); err != nil {
		return rec, fmt.Errorf("order_dt: %w", err)
	}
	rec.CustomerName = asString(row[2])
	rec.ContactNo = asString(row[3])
	rec.ShippingAddress = asString(row[4])
	rec.MobileKey = asString(row[5])
	rec.Country = asString(row[6])
	rec.Region = asString(row[7])
	if rec.OrderQuantity, err = asInt64(row[8]); err != nil {
		return rec, fmt.Errorf("order_quantity: %w", err)
	}
	rec.LocalCurrency = asString(row[9])

	if row[11] != nil {
		code := asString(row[11])
		rec.PromotionCode = &code
	}
	amounts := []struct {
		col int
		dst *float64
	}{
		{10, &rec.LocalUnitPrice},
		{12, &rec.LocalTotalOrderAmt},
		{13, &rec.LocalTaxAmt},
		{14, &rec.ExchangeRate},
		{15, &rec.USTotalOrderAmt},
		{16, &rec.USDTaxAmt},
	}
	for _, a := range amounts {
		if *a.dst, err = asFloat64(row[a.col]); err != nil {
			return rec, fmt.Errorf("%s: %w", SalesColumns[a.col], err)
		}
	}
	rec.PaymentStatus = asString(row[17])
	rec.ShippingStatus = asString(row[18])
	rec.PaymentMethod = asString(row[19])
	rec.PaymentProvider = asString(row[20])
	return rec, nil
}

// Snapshot is the unified sales stream of one pipeline run. It is computed
// once and shared read-only by every builder and the fact assembler.
type Snapshot struct {
	Records []SalesRecord

	// Sources holds the number of records read from each feed table.
	Sources map[string]int

	minDate time.Time
	maxDate time.Time
}

// NewSnapshot builds a snapshot over records. Records with no order date
// do not contribute to the date range.
func NewSnapshot(records []SalesRecord) *Snapshot {
	s := &Snapshot{Records: records, Sources: make(map[string]int)}
	for i := range records {
		d := records[i].OrderDate
		if d.IsZero() {
			continue
		}
		if s.minDate.IsZero() || d.Before(s.minDate) {
			s.minDate = d
		}
		if s.maxDate.IsZero() || d.After(s.maxDate) {
			s.maxDate = d
		}
	}
	return s
}

// DateRange returns the minimum and maximum order date in the stream.
func (s *Snapshot) DateRange() (time.Time, time.Time, error) {
	if s.minDate.IsZero() || s.maxDate.IsZero() {
		return time.Time{}, time.Time{}, ErrEmptyRange
	}
	return s.minDate, s.maxDate, nil
}

// LoadSnapshot reads and unions the given feed tables. When the store
// supports it all feeds are read from one consistent snapshot.
func LoadSnapshot(ctx context.Context, store Store, tables []string) (*Snapshot, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("no source tables configured")
	}

	var (
		records []SalesRecord
		counts  = make(map[string]int, len(tables))
		readErr error
	)
	read := func(sc Scanner) error {
		readErr = readFeeds(ctx, sc, tables, &records, counts)
		return readErr
	}

	var err error
	if ss, ok := store.(SnapshotStore); ok {
		err = ss.WithSnapshot(ctx, read)
		if err != nil && readErr == nil {
			err = storeError("snapshot", "sales feeds", err)
		}
	} else {
		err = read(store)
	}
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot(records)
	snap.Sources = counts
	return snap, nil
}

func readFeeds(ctx context.Context, sc Scanner, tables []string, records *[]SalesRecord, counts map[string]int) error {
	*records = (*records)[:0]
	for _, table := range tables {
		rows, err := sc.Scan(ctx, table, SalesColumns)
		if err != nil {
			return storeError("scan", table, err)
		}
		for i, row := range rows {
			rec, err := recordFromRow(row)
			if err != nil {
				return fmt.Errorf("failed to read %s row %d: %w", table, i+1, err)
			}
			*records = append(*records, rec)
		}
		counts[table] = len(rows)
		logging.Debug().
			Str("table", table).
			Int("rows", len(rows)).
			Msg("Read sales feed")
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported integer value %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric value %T", v)
	}
}

func asDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return truncateDay(t), nil
	case string:
		return time.Parse(DateLayout, t)
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %T", v)
	}
}
