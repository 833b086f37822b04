package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-starload/internal/datagen"
	"github.com/pgEdge/pgedge-starload/internal/db"
	"github.com/pgEdge/pgedge-starload/internal/feeds"
	"github.com/pgEdge/pgedge-starload/internal/logging"
	"github.com/pgEdge/pgedge-starload/internal/store/pgstore"
)

var (
	seedOrders    int
	seedStartDate string
	seedDays      int
	seedSeed      int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the regional feed tables with synthetic orders",
	Long: `Generate synthetic curated sales orders for every configured feed
and append them to the feed tables. Orders draw from a pool of repeat
customers, and a small share carry no promotion code or a truncated
mobile key, as real feeds do.

Example:
  pgedge-starload seed --orders 5000 --days 30
  pgedge-starload seed --start-date 2024-01-01 --seed 42`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedOrders, "orders", 0,
		"orders generated per feed")
	seedCmd.Flags().StringVar(&seedStartDate, "start-date", "",
		"first order date, YYYY-MM-DD (default: days before today)")
	seedCmd.Flags().IntVar(&seedDays, "days", 0,
		"span of order dates in days")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0,
		"random seed for reproducible data (0 = random)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if seedOrders > 0 {
		cfg.Seed.OrdersPerSource = seedOrders
	}
	if seedStartDate != "" {
		cfg.Seed.StartDate = seedStartDate
	}
	if seedDays > 0 {
		cfg.Seed.Days = seedDays
	}
	if seedSeed != 0 {
		cfg.Seed.Seed = seedSeed
	}

	// Validate configuration
	if err := cfg.ValidateSeed(); err != nil {
		return err
	}

	opts := datagen.DefaultSeedOptions()
	opts.OrdersPerSource = cfg.Seed.OrdersPerSource
	opts.Days = cfg.Seed.Days
	opts.StartDate = time.Now().UTC().AddDate(0, 0, -cfg.Seed.Days)
	if cfg.Seed.StartDate != "" {
		start, err := time.Parse("2006-01-02", cfg.Seed.StartDate)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		opts.StartDate = start
	}

	faker := datagen.NewFaker()
	if cfg.Seed.Seed != 0 {
		faker = datagen.NewFakerWithSeed(uint64(cfg.Seed.Seed))
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := db.EnsureFeedTables(ctx, pool, feeds.Tables()); err != nil {
		return fmt.Errorf("failed to create feed tables: %w", err)
	}

	logging.Info().
		Int("orders_per_feed", opts.OrdersPerSource).
		Str("start_date", opts.StartDate.Format("2006-01-02")).
		Int("days", opts.Days).
		Msg("Seeding regional feeds")

	seeder := datagen.NewSeeder(pgstore.New(pool), faker, opts)
	written, err := seeder.Seed(ctx, feeds.All())
	if err != nil {
		return err
	}

	var total int64
	for _, n := range written {
		total += n
	}
	logging.Info().
		Int64("orders", total).
		Int("feeds", len(written)).
		Msg("Seeding complete")

	return nil
}
