//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-starload/internal/feeds"
	"github.com/pgEdge/pgedge-starload/internal/logging"
	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

// Default anomaly rates. Real feeds carry orders without a promotion code
// and the occasional truncated mobile key.
const (
	DefaultNullPromoRate    = 0.15
	DefaultMalformedKeyRate = 0.02
)

// Tax is applied to the local order total.
const taxRate = 0.18

var (
	brands  = []string{"Apple", "Samsung", "OnePlus", "Google", "Xiaomi", "Motorola"}
	models  = []string{"Pro", "Max", "Lite", "Ultra", "Mini", "Plus", "Neo"}
	colors  = []string{"Black", "White", "Blue", "Green", "Silver", "Gold"}
	memory  = []string{"64GB", "128GB", "256GB", "512GB"}
	promos  = []string{"NEWYEAR", "SUMMER10", "FESTIVE", "WELCOME5", "BLACKFRIDAY"}
	methods = []string{"Credit Card", "Debit Card", "UPI", "PayPal", "Bank Transfer"}
	vendors = []string{"Visa", "Mastercard", "Amex", "PayPal", "Razorpay", "Stripe"}

	paymentStatuses  = []string{"Paid", "Pending", "Refunded", "Failed"}
	paymentWeights   = []int{80, 10, 6, 4}
	shippingStatuses = []string{"Delivered", "Shipped", "Processing", "Returned"}
	shippingWeights  = []int{60, 20, 15, 5}
)

// BatchInsertConfig configures batch insert behavior.
type BatchInsertConfig struct {
	// BatchSize is the number of rows per batch insert.
	BatchSize int

	// ProgressInterval is how often to log progress (in rows).
	ProgressInterval int64
}

// DefaultBatchConfig returns default batch insert configuration.
func DefaultBatchConfig() BatchInsertConfig {
	return BatchInsertConfig{
		BatchSize:        1000,
		ProgressInterval: 10000,
	}
}

// ProgressReporter tracks and reports data generation progress.
type ProgressReporter struct {
	tableName        string
	totalRows        int64
	currentRow       int64
	progressInterval int64
}

// NewProgressReporter creates a new progress reporter.
func NewProgressReporter(tableName string, totalRows int64, interval int64) *ProgressReporter {
	if interval < 1 {
		interval = 1
	}
	return &ProgressReporter{
		tableName:        tableName,
		totalRows:        totalRows,
		progressInterval: interval,
	}
}

// Update updates the progress and logs if necessary.
func (p *ProgressReporter) Update(rowsInserted int64) {
	oldRow := p.currentRow
	p.currentRow += rowsInserted

	// Check if we crossed a progress interval
	if p.currentRow/p.progressInterval > oldRow/p.progressInterval {
		pct := float64(p.currentRow) / float64(p.totalRows) * 100
		logging.Info().
			Str("table", p.tableName).
			Int64("rows", p.currentRow).
			Int64("total", p.totalRows).
			Float64("percent", pct).
			Msg("Generating orders")
	}
}

// Rows returns the number of rows reported so far.
func (p *ProgressReporter) Rows() int64 {
	return p.currentRow
}

// Done logs completion.
func (p *ProgressReporter) Done() {
	logging.Info().
		Str("table", p.tableName).
		Int64("rows", p.currentRow).
		Msg("Feed complete")
}

// SeedOptions controls synthetic order generation.
type SeedOptions struct {
	OrdersPerSource  int
	StartDate        time.Time
	Days             int
	NullPromoRate    float64
	MalformedKeyRate float64
	Batch            BatchInsertConfig
}

// DefaultSeedOptions returns options generating 1000 orders per feed over
// the 90 days before today.
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		OrdersPerSource:  1000,
		StartDate:        time.Now().UTC().AddDate(0, 0, -90),
		Days:             90,
		NullPromoRate:    DefaultNullPromoRate,
		MalformedKeyRate: DefaultMalformedKeyRate,
		Batch:            DefaultBatchConfig(),
	}
}

// customer is a repeat buyer; orders draw from a small pool so the
// customer dimension sees duplicates.
type customer struct {
	name, contact, address string
}

// Seeder writes synthetic orders into the regional feed tables.
type Seeder struct {
	store warehouse.Store
	faker *Faker
	opts  SeedOptions
}

// NewSeeder creates a seeder writing through store.
func NewSeeder(store warehouse.Store, faker *Faker, opts SeedOptions) *Seeder {
	if opts.Batch.BatchSize < 1 {
		opts.Batch = DefaultBatchConfig()
	}
	return &Seeder{store: store, faker: faker, opts: opts}
}

// Orders generates n orders for feed without writing them.
func (s *Seeder) Orders(feed feeds.Feed, n int) []warehouse.SalesRecord {
	pool := make([]customer, n/4+1)
	for i := range pool {
		pool[i] = customer{
			name:    s.faker.Name(),
			contact: s.faker.Phone(),
			address: s.faker.ShippingAddress(),
		}
	}

	records := make([]warehouse.SalesRecord, n)
	for i := range records {
		records[i] = s.order(feed, Choose(s.faker, pool))
	}
	return records
}

func (s *Seeder) order(feed feeds.Feed, c customer) warehouse.SalesRecord {
	f := s.faker
	qty := int64(f.Int(1, 3))
	unitUSD := f.Price(150, 1500)
	unit := Round2(unitUSD / feed.USDRate)
	total := Round2(unit * float64(qty))
	tax := Round2(total * taxRate)

	mobileKey := fmt.Sprintf("%s/%s/%s/%s",
		Choose(f, brands), Choose(f, models), Choose(f, colors), Choose(f, memory))
	if f.Chance(s.opts.MalformedKeyRate) {
		mobileKey = fmt.Sprintf("%s/%s", Choose(f, brands), Choose(f, models))
	}

	var promo *string
	if !f.Chance(s.opts.NullPromoRate) {
		code := Choose(f, promos)
		promo = &code
	}

	return warehouse.SalesRecord{
		OrderID:            f.OrderCode(feed.Name),
		OrderDate:          f.DayInRange(s.opts.StartDate, s.opts.Days),
		CustomerName:       c.name,
		ContactNo:          c.contact,
		ShippingAddress:    c.address,
		MobileKey:          mobileKey,
		Country:            feed.Country,
		Region:             feed.Region,
		OrderQuantity:      qty,
		LocalCurrency:      feed.Currency,
		LocalUnitPrice:     unit,
		PromotionCode:      promo,
		LocalTotalOrderAmt: total,
		LocalTaxAmt:        tax,
		ExchangeRate:       feed.USDRate,
		USTotalOrderAmt:    Round2(total * feed.USDRate),
		USDTaxAmt:          Round2(tax * feed.USDRate),
		PaymentStatus:      ChooseWeighted(f, paymentStatuses, paymentWeights),
		ShippingStatus:     ChooseWeighted(f, shippingStatuses, shippingWeights),
		PaymentMethod:      Choose(f, methods),
		PaymentProvider:    Choose(f, vendors),
	}
}

// SeedFeed generates and appends OrdersPerSource orders to the feed table.
func (s *Seeder) SeedFeed(ctx context.Context, feed feeds.Feed) (int64, error) {
	if feed.USDRate <= 0 {
		return 0, fmt.Errorf("feed %s: usd rate must be positive", feed.Name)
	}

	records := s.Orders(feed, s.opts.OrdersPerSource)
	progress := NewProgressReporter(feed.Table, int64(len(records)), s.opts.Batch.ProgressInterval)

	for start := 0; start < len(records); start += s.opts.Batch.BatchSize {
		end := min(start+s.opts.Batch.BatchSize, len(records))
		rows := make([][]any, 0, end-start)
		for i := start; i < end; i++ {
			rows = append(rows, records[i].Values())
		}
		n, err := s.store.Append(ctx, feed.Table, warehouse.SalesColumns, rows)
		if err != nil {
			return progress.Rows(), fmt.Errorf("failed to insert orders into %s: %w", feed.Table, err)
		}
		progress.Update(n)
	}

	progress.Done()
	return progress.Rows(), nil
}

// Seed fills every feed in turn and returns the rows written per table.
func (s *Seeder) Seed(ctx context.Context, targets []feeds.Feed) (map[string]int64, error) {
	written := make(map[string]int64, len(targets))
	for _, feed := range targets {
		n, err := s.SeedFeed(ctx, feed)
		written[feed.Table] = n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
