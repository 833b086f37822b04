package warehouse_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-starload/internal/store/memstore"
	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

var feeds = []string{"in_sales_order", "us_sales_order", "fr_sales_order"}

func order(id, customer, region, country, mobile, day string, promo *string) warehouse.SalesRecord {
	d, err := time.Parse(warehouse.DateLayout, day)
	if err != nil {
		panic(err)
	}
	return warehouse.SalesRecord{
		OrderID:            id,
		OrderDate:          d,
		CustomerName:       customer,
		ContactNo:          "555-0100",
		ShippingAddress:    "1 Main St",
		MobileKey:          mobile,
		Country:            country,
		Region:             region,
		OrderQuantity:      2,
		LocalCurrency:      "USD",
		LocalUnitPrice:     100,
		PromotionCode:      promo,
		LocalTotalOrderAmt: 200,
		LocalTaxAmt:        20,
		ExchangeRate:       1,
		USTotalOrderAmt:    200,
		USDTaxAmt:          20,
		PaymentStatus:      "Paid",
		ShippingStatus:     "Delivered",
		PaymentMethod:      "Card",
		PaymentProvider:    "Visa",
	}
}

func promo(code string) *string { return &code }

func seededStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.NewStarSchema(feeds...)
	require.NoError(t, s.LoadRecords("in_sales_order",
		order("IN-1", "Asha", "APAC", "IN", "Acme/X1/Black/128GB", "2024-01-01", nil),
		order("IN-2", "Asha", "APAC", "IN", "Acme/X1/Black/128GB", "2024-01-03", promo("DIWALI")),
	))
	require.NoError(t, s.LoadRecords("us_sales_order",
		order("US-1", "Bob", "NA", "US", "Zeta/Z9/Blue/256GB", "2024-01-02", promo("NA")),
		order("US-2", "Bob", "NA", "US", "Zeta/Z9", "2024-01-02", nil),
	))
	require.NoError(t, s.LoadRecords("fr_sales_order",
		order("FR-1", "Claire", "EU", "FR", "Acme/X1/Black/128GB", "2024-01-02", promo("SOLDES")),
	))
	return s
}

func run(t *testing.T, s warehouse.Store) *warehouse.Report {
	t.Helper()
	report, err := warehouse.NewPipeline(s, warehouse.DefaultOptions()).LoadAndRun(context.Background(), feeds)
	require.NoError(t, err)
	return report
}

func TestPipelinePopulatesStarSchema(t *testing.T) {
	s := seededStore(t)
	report := run(t, s)
	require.NoError(t, report.Err())
	assert.Equal(t, "success", report.Status())
	assert.Equal(t, 5, report.SourceRecords)
	assert.Len(t, report.Stages, 7)

	assert.Equal(t, 3, s.Count("region_dim"))
	assert.Equal(t, 3, s.Count("product_dim"))
	assert.Equal(t, 3, s.Count("customer_dim"))
	assert.Equal(t, 3, s.Count("payment_dim"))
	assert.Equal(t, 3, s.Count("date_dim"))
	// IN: NA, DIWALI; US: NA (null and literal collapse); FR: SOLDES.
	assert.Equal(t, 4, s.Count("promo_code_dim"))
	assert.Equal(t, 5, s.Count(warehouse.FactTable))

	fact, ok := report.Stage(warehouse.FactStage)
	require.True(t, ok)
	assert.Equal(t, 5, fact.Inserted)
	assert.Zero(t, fact.Dropped)
}

func TestPipelineIdempotent(t *testing.T) {
	s := seededStore(t)
	run(t, s)

	before := make(map[string]int)
	for _, d := range warehouse.Dimensions() {
		before[d.Table] = s.Count(d.Table)
	}

	second := run(t, s)
	require.NoError(t, second.Err())
	for _, st := range second.Stages {
		assert.Zero(t, st.Inserted, "stage %s inserted on rerun", st.Stage)
	}
	for _, d := range warehouse.Dimensions() {
		assert.Equal(t, before[d.Table], s.Count(d.Table), d.Table)
	}

	fact, _ := second.Stage(warehouse.FactStage)
	assert.Equal(t, 5, fact.Skipped)
	assert.Equal(t, 5, s.Count(warehouse.FactTable))
}

func TestSurrogateAndNaturalKeysUnique(t *testing.T) {
	s := seededStore(t)
	run(t, s)
	require.NoError(t, s.LoadRecords("fr_sales_order",
		order("FR-2", "Denis", "EU", "FR", "Nova/N1/Red/64GB", "2024-01-06", nil),
	))
	run(t, s)

	for _, d := range warehouse.Dimensions() {
		rows, err := s.Rows(d.Table)
		require.NoError(t, err)

		ids := make(map[any]bool)
		keys := make(map[warehouse.NaturalKey]bool)
		for _, r := range rows {
			assert.False(t, ids[r[d.IDColumn]], "%s: surrogate key %v reused", d.Table, r[d.IDColumn])
			ids[r[d.IDColumn]] = true

			parts := make([]any, len(d.KeyColumns))
			for i, c := range d.KeyColumns {
				parts[i] = r[c]
			}
			k := warehouse.MakeKey(parts...)
			assert.False(t, keys[k], "%s: natural key %s duplicated", d.Table, k)
			keys[k] = true
			assert.Equal(t, warehouse.ActiveFlag, r["is_active"])
		}
	}

	// 2024-01-01 .. 2024-01-06 after the second run.
	assert.Equal(t, 6, s.Count("date_dim"))
}

func TestReferentialCompleteness(t *testing.T) {
	s := seededStore(t)
	run(t, s)

	facts, err := s.Rows(warehouse.FactTable)
	require.NoError(t, err)
	require.NotEmpty(t, facts)

	for _, d := range warehouse.Dimensions() {
		rows, err := s.Rows(d.Table)
		require.NoError(t, err)
		ids := make(map[any]int)
		for _, r := range rows {
			ids[r[d.IDColumn]]++
		}
		for _, f := range facts {
			assert.Equal(t, 1, ids[f[d.FactColumn]], "fact %v: %s does not resolve", f["order_code"], d.FactColumn)
		}
	}
}

func TestRegionAntiJoin(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewStarSchema()
	_, err := s.Append(ctx, "region_dim", warehouse.Region.InsertColumns(), [][]any{
		{int64(1), "APAC", "IN", warehouse.ActiveFlag},
	})
	require.NoError(t, err)
	s.CreateSequence(warehouse.Region.Sequence, 2)

	snap := warehouse.NewSnapshot([]warehouse.SalesRecord{
		{Region: "APAC", Country: "IN"},
		{Region: "EMEA", Country: "FR"},
	})
	b := warehouse.NewBuilder(s, warehouse.NewKeyIssuer(s))
	res := b.Build(ctx, warehouse.Region, snap)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, 1, res.Inserted)

	rows, err := s.Rows("region_dim")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "EMEA", rows[1]["region"])
	assert.Equal(t, "FR", rows[1]["country"])
	assert.Equal(t, int64(2), rows[1]["region_id_pk"])
}

func TestNullPromotionResolvesToNA(t *testing.T) {
	s := memstore.NewStarSchema("us_sales_order")
	require.NoError(t, s.LoadRecords("us_sales_order",
		order("US-9", "Eve", "NA", "US", "Zeta/Z9/Blue/256GB", "2024-02-01", nil),
	))
	report, err := warehouse.NewPipeline(s, warehouse.DefaultOptions()).
		LoadAndRun(context.Background(), []string{"us_sales_order"})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	promos, err := s.Rows("promo_code_dim")
	require.NoError(t, err)
	require.Len(t, promos, 1)
	assert.Equal(t, warehouse.NoPromotion, promos[0]["promotion_code"])

	facts, err := s.Rows(warehouse.FactTable)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, promos[0]["promo_code_id_pk"], facts[0]["promo_code_id_fk"])
}

func TestDimensionFailureIsolated(t *testing.T) {
	s := seededStore(t)
	s.Fail("append", "customer_dim", errors.New("disk full"))

	report := run(t, s)
	assert.True(t, report.Failed())
	assert.Equal(t, "failed", report.Status())

	cust, ok := report.Stage("customer")
	require.True(t, ok)
	assert.ErrorIs(t, cust.Err, warehouse.ErrStoreUnavailable)
	assert.ErrorIs(t, report.Err(), warehouse.ErrStoreUnavailable)

	for _, name := range []string{"region", "product", "promo_code", "payment", "date"} {
		st, ok := report.Stage(name)
		require.True(t, ok)
		assert.NoError(t, st.Err, name)
		assert.Positive(t, st.Inserted, name)
	}

	// Facts still run; every record misses the empty customer dimension.
	fact, _ := report.Stage(warehouse.FactStage)
	assert.NoError(t, fact.Err)
	assert.Equal(t, 5, fact.Dropped)
	assert.Equal(t, 5, fact.Misses["customer"])
	assert.Equal(t, 0, s.Count(warehouse.FactTable))

	// Once the fault clears a rerun completes the load.
	s.Fail("append", "customer_dim", nil)
	again := run(t, s)
	require.NoError(t, again.Err())
	assert.Equal(t, 5, s.Count(warehouse.FactTable))
}

func TestEmptyStreamFailsDateOnly(t *testing.T) {
	s := memstore.NewStarSchema(feeds...)
	report := run(t, s)

	date, _ := report.Stage("date")
	assert.ErrorIs(t, date.Err, warehouse.ErrEmptyRange)

	region, _ := report.Stage("region")
	assert.NoError(t, region.Err)
	assert.Zero(t, region.Inserted)
}

func TestDuplicateNaturalKeyFailsLoud(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	_, err := s.Append(ctx, "region_dim", warehouse.Region.InsertColumns(), [][]any{
		{int64(100), "APAC", "IN", warehouse.ActiveFlag},
		{int64(101), "APAC", "IN", warehouse.ActiveFlag},
	})
	require.NoError(t, err)

	report := run(t, s)
	region, _ := report.Stage("region")
	assert.ErrorIs(t, region.Err, warehouse.ErrDuplicateNaturalKey)

	fact, _ := report.Stage(warehouse.FactStage)
	assert.ErrorIs(t, fact.Err, warehouse.ErrDuplicateNaturalKey)
}

func TestUnmatchedRecordsDropped(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	run(t, s)

	// A record whose product has never been built.
	snap := warehouse.NewSnapshot([]warehouse.SalesRecord{
		order("IN-3", "Asha", "APAC", "IN", "Ghost/G0/Grey/1TB", "2024-01-02", nil),
		order("IN-4", "Asha", "APAC", "IN", "Acme/X1/Black/128GB", "2024-01-02", nil),
	})
	res := warehouse.NewAssembler(s, warehouse.NewKeyIssuer(s)).Assemble(ctx, snap)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, res.Misses["product"])
	assert.Equal(t, 1, res.Inserted)
}

func TestSkipLoadedOrdersDisabled(t *testing.T) {
	s := seededStore(t)
	opts := warehouse.DefaultOptions()
	opts.SkipLoadedOrders = false
	p := warehouse.NewPipeline(s, opts)

	_, err := p.LoadAndRun(context.Background(), feeds)
	require.NoError(t, err)
	_, err = p.LoadAndRun(context.Background(), feeds)
	require.NoError(t, err)

	assert.Equal(t, 10, s.Count(warehouse.FactTable))
}

func TestSameOrderCodeAcrossRegions(t *testing.T) {
	s := memstore.NewStarSchema("in_sales_order", "fr_sales_order")
	require.NoError(t, s.LoadRecords("in_sales_order",
		order("1001", "Asha", "APAC", "IN", "Acme/X1/Black/128GB", "2024-01-01", nil)))
	require.NoError(t, s.LoadRecords("fr_sales_order",
		order("1001", "Claire", "EU", "FR", "Acme/X1/Black/128GB", "2024-01-01", nil)))

	report, err := warehouse.NewPipeline(s, warehouse.DefaultOptions()).
		LoadAndRun(context.Background(), []string{"in_sales_order", "fr_sales_order"})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, s.Count(warehouse.FactTable))
}

type recorder struct {
	mu     sync.Mutex
	stages []string
}

func (r *recorder) ObserveStage(res warehouse.StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, res.Stage)
}

func TestObserverSeesEveryStage(t *testing.T) {
	s := seededStore(t)
	rec := &recorder{}
	opts := warehouse.DefaultOptions()
	opts.MaxParallel = 1

	_, err := warehouse.NewPipeline(s, opts).WithObserver(rec).LoadAndRun(context.Background(), feeds)
	require.NoError(t, err)

	require.Len(t, rec.stages, 7)
	assert.Equal(t, warehouse.FactStage, rec.stages[6])
	assert.ElementsMatch(t,
		[]string{"region", "product", "promo_code", "customer", "payment", "date"},
		rec.stages[:6])
}

func TestLoadSnapshotErrors(t *testing.T) {
	s := memstore.New()
	_, err := warehouse.LoadSnapshot(context.Background(), s, nil)
	assert.Error(t, err)

	_, err = warehouse.LoadSnapshot(context.Background(), s, []string{"missing"})
	assert.ErrorIs(t, err, warehouse.ErrStoreUnavailable)

	rec := &recorder{}
	report, err := warehouse.NewPipeline(s, warehouse.Options{}).WithObserver(rec).
		LoadAndRun(context.Background(), []string{"missing"})
	assert.ErrorIs(t, err, warehouse.ErrStoreUnavailable)

	// The failed read still yields a report for the run history.
	require.NotNil(t, report)
	assert.True(t, report.Failed())
	assert.Equal(t, "failed", report.Status())
	assert.NotEqual(t, uuid.Nil, report.RunID)
	require.Len(t, report.Stages, 1)
	assert.Equal(t, warehouse.SourceStage, report.Stages[0].Stage)
	assert.ErrorIs(t, report.Err(), warehouse.ErrStoreUnavailable)
	assert.Equal(t, []string{warehouse.SourceStage}, rec.stages)
}

func TestReportSummary(t *testing.T) {
	s := seededStore(t)
	report := run(t, s)

	data, err := report.Summary()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"fact"`)
	assert.Contains(t, string(data), `"inserted":5`)
	assert.Equal(t, 5, report.Sources["in_sales_order"]+report.Sources["us_sales_order"]+report.Sources["fr_sales_order"])
}
