package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-starload/internal/db"
	"github.com/pgEdge/pgedge-starload/internal/feeds"
	"github.com/pgEdge/pgedge-starload/internal/logging"
	"github.com/pgEdge/pgedge-starload/internal/metrics"
	"github.com/pgEdge/pgedge-starload/internal/store/pgstore"
	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

var (
	runMaxParallel    int
	runTimeout        int
	runReloadOrders   bool
	runNoRecord       bool
	runPushgatewayURL string
	runTextfilePath   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load the star schema from the regional feeds",
	Long: `Run one pipeline pass: union the regional feeds, insert the
dimension rows whose natural keys are new, then append a fact row for
every order whose dimension keys all resolve.

Dimension builds run concurrently. A failed build does not stop the
others; the fact stage always runs and the command exits non-zero when
any stage failed. Ctrl+C cancels the run.

Example:
  pgedge-starload run --connection "postgres://..."
  pgedge-starload run --max-parallel 2 --timeout 600
  pgedge-starload run --pushgateway-url http://localhost:9091`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0,
		"dimension builds run at once")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0,
		"run timeout in seconds (0 = none)")
	runCmd.Flags().BoolVar(&runReloadOrders, "reload-orders", false,
		"append fact rows for orders already loaded")
	runCmd.Flags().BoolVar(&runNoRecord, "no-record", false,
		"do not record the run in the run history table")
	runCmd.Flags().StringVar(&runPushgatewayURL, "pushgateway-url", "",
		"Prometheus pushgateway to push run metrics to")
	runCmd.Flags().StringVar(&runTextfilePath, "textfile-path", "",
		"file to write run metrics to for the node exporter textfile collector")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if runMaxParallel > 0 {
		cfg.Pipeline.MaxParallel = runMaxParallel
	}
	if runTimeout > 0 {
		cfg.Pipeline.Timeout = runTimeout
	}
	if runReloadOrders {
		cfg.Pipeline.SkipLoadedOrders = false
	}
	if runNoRecord {
		cfg.Pipeline.RecordRuns = false
	}
	if runPushgatewayURL != "" {
		cfg.Metrics.PushgatewayURL = runPushgatewayURL
	}
	if runTextfilePath != "" {
		cfg.Metrics.TextfilePath = runTextfilePath
	}

	// Validate configuration
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if timeout := cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// One connection per concurrent build plus the fact stage and the
	// run history write.
	pool, err := db.Connect(ctx, cfg.Connection, int32(cfg.Pipeline.MaxParallel+2))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	reg := metrics.New()
	pipeline := warehouse.NewPipeline(pgstore.New(pool), warehouse.Options{
		MaxParallel:      cfg.Pipeline.MaxParallel,
		SkipLoadedOrders: cfg.Pipeline.SkipLoadedOrders,
	}).WithObserver(reg)

	tables := feeds.Tables()
	logging.Info().
		Strs("feeds", tables).
		Int("max_parallel", cfg.Pipeline.MaxParallel).
		Bool("skip_loaded_orders", cfg.Pipeline.SkipLoadedOrders).
		Msg("Starting pipeline run")

	report, err := pipeline.LoadAndRun(ctx, tables)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		logging.Info().Msg("Pipeline run canceled")
	}

	// Bookkeeping uses a fresh context so a canceled run is still recorded.
	finishCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return finishRun(finishCtx, cmd.OutOrStdout(), pool, reg, report)
}

// finishRun prints the report, records the run, publishes metrics and
// returns an error when any stage failed, including the stream read.
func finishRun(ctx context.Context, out io.Writer, execer db.Execer, reg *metrics.Registry, report *warehouse.Report) error {
	reg.ObserveRun(report)
	printReport(out, report)

	if cfg.Pipeline.RecordRuns {
		if err := recordRun(ctx, execer, report); err != nil {
			logging.Error().Err(err).Msg("Failed to record run")
		}
	}
	publishMetrics(ctx, reg)

	logging.Info().
		Str("run_id", report.RunID.String()).
		Str("status", report.Status()).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Int("source_records", report.SourceRecords).
		Msg("Pipeline run complete")

	if report.Failed() {
		return fmt.Errorf("pipeline run %s failed: %w", report.RunID, report.Err())
	}
	return nil
}

func recordRun(ctx context.Context, execer db.Execer, report *warehouse.Report) error {
	rec, err := db.NewRunRecord(report)
	if err != nil {
		return err
	}
	return db.SaveRun(ctx, execer, rec)
}

func publishMetrics(ctx context.Context, reg *metrics.Registry) {
	if cfg.Metrics.PushgatewayURL != "" {
		if err := reg.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			logging.Error().Err(err).Msg("Failed to push metrics")
		}
	}
	if cfg.Metrics.TextfilePath != "" {
		if err := reg.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logging.Error().Err(err).Msg("Failed to write metrics textfile")
		}
	}
}

// printReport writes one line per stage followed by the fact stage's
// per-dimension drop counts.
func printReport(out io.Writer, report *warehouse.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run %s (%s)\n\n", report.RunID, report.Status())
	fmt.Fprintln(w, "STAGE\tTABLE\tCANDIDATES\tEXISTING\tINSERTED\tDURATION\tERROR")
	for _, s := range report.Stages {
		errText := "-"
		if s.Err != nil {
			errText = s.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.Stage, s.Table, s.Candidates, s.Existing, s.Inserted,
			s.Duration.Round(time.Millisecond), errText)
	}
	w.Flush()

	fact, ok := report.Stage(warehouse.FactStage)
	if !ok || (fact.Dropped == 0 && fact.Skipped == 0) {
		return
	}
	fmt.Fprintln(out)
	if fact.Skipped > 0 {
		fmt.Fprintf(out, "Skipped %d orders already loaded.\n", fact.Skipped)
	}
	if fact.Dropped > 0 {
		dims := make([]string, 0, len(fact.Misses))
		for d := range fact.Misses {
			dims = append(dims, d)
		}
		sort.Strings(dims)
		parts := make([]string, len(dims))
		for i, d := range dims {
			parts[i] = fmt.Sprintf("%s=%d", d, fact.Misses[d])
		}
		fmt.Fprintf(out, "Dropped %d records with unresolved dimensions (%s).\n",
			fact.Dropped, strings.Join(parts, ", "))
	}
}
