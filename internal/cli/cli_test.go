package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgEdge/pgedge-starload/internal/config"
	"github.com/pgEdge/pgedge-starload/internal/feeds"
	"github.com/pgEdge/pgedge-starload/internal/metrics"
	"github.com/pgEdge/pgedge-starload/internal/store/memstore"
	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

// historyRecorder captures run history inserts.
type historyRecorder struct {
	statuses []string
}

func (h *historyRecorder) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	h.statuses = append(h.statuses, args[3].(string))
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (h *historyRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func TestPrintReport(t *testing.T) {
	report := &warehouse.Report{
		RunID: uuid.New(),
		Stages: []warehouse.StageResult{
			{Stage: "region", Table: "region_dim", Candidates: 3, Existing: 1, Inserted: 2, Duration: 1500 * time.Microsecond},
			{Stage: "customer", Table: "customer_dim", Err: errors.New("disk full")},
			{Stage: warehouse.FactStage, Table: warehouse.FactTable, Candidates: 9, Inserted: 4, Dropped: 3, Skipped: 2,
				Misses: map[string]int{"product": 1, "customer": 2}},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	for _, want := range []string{
		"Run " + report.RunID.String() + " (failed)",
		"region_dim",
		"disk full",
		"Skipped 2 orders already loaded.",
		"Dropped 3 records with unresolved dimensions (customer=2, product=1).",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestPrintReportClean(t *testing.T) {
	report := &warehouse.Report{
		RunID:  uuid.New(),
		Stages: []warehouse.StageResult{{Stage: warehouse.FactStage, Table: warehouse.FactTable, Inserted: 5}},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	if !strings.Contains(out, "(success)") {
		t.Errorf("Expected success status, got:\n%s", out)
	}
	if strings.Contains(out, "Dropped") || strings.Contains(out, "Skipped") {
		t.Errorf("Expected no drop or skip lines, got:\n%s", out)
	}
}

func TestSourcesCommand(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.Sources = config.DefaultSources()
	feeds.Load(cfg.Sources)

	var buf bytes.Buffer
	sourcesCmd.SetOut(&buf)
	if err := sourcesCmd.RunE(sourcesCmd, nil); err != nil {
		t.Fatalf("sources failed: %v", err)
	}

	out := buf.String()
	for _, table := range []string{"in_sales_order", "us_sales_order", "fr_sales_order"} {
		if !strings.Contains(out, table) {
			t.Errorf("Expected %s in sources output, got:\n%s", table, out)
		}
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"version": false, "sources": false, "init": false, "seed": false, "run": false, "runs": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("Expected subcommand %s to be registered", name)
		}
	}
}

func TestFinishRunRecordsUnreadableFeeds(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.Pipeline.RecordRuns = true
	cfg.Metrics.TextfilePath = filepath.Join(t.TempDir(), "starload.prom")

	reg := metrics.New()
	pipeline := warehouse.NewPipeline(memstore.New(), warehouse.DefaultOptions()).WithObserver(reg)
	report, loadErr := pipeline.LoadAndRun(context.Background(), []string{"missing_sales_order"})
	if loadErr == nil {
		t.Fatal("Expected reading a missing feed to fail")
	}

	history := &historyRecorder{}
	var buf bytes.Buffer
	err := finishRun(context.Background(), &buf, history, reg, report)
	if !errors.Is(err, warehouse.ErrStoreUnavailable) {
		t.Errorf("Expected store unavailable error, got %v", err)
	}

	if len(history.statuses) != 1 || history.statuses[0] != "failed" {
		t.Errorf("Expected one failed run recorded, got %v", history.statuses)
	}
	if !strings.Contains(buf.String(), warehouse.SourceStage) {
		t.Errorf("Expected source stage in report, got:\n%s", buf.String())
	}

	data, err := os.ReadFile(cfg.Metrics.TextfilePath)
	if err != nil {
		t.Fatalf("Failed to read metrics textfile: %v", err)
	}
	for _, want := range []string{
		`starload_runs_total{status="failed"} 1`,
		`starload_stage_failures_total{reason="store_unavailable",stage="source"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected %q in metrics, got:\n%s", want, data)
		}
	}
}

func TestFinishRunSuccess(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.Pipeline.RecordRuns = false

	report := &warehouse.Report{
		RunID:  uuid.New(),
		Stages: []warehouse.StageResult{{Stage: warehouse.FactStage, Inserted: 1}},
	}
	history := &historyRecorder{}
	var buf bytes.Buffer
	if err := finishRun(context.Background(), &buf, history, metrics.New(), report); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(history.statuses) != 0 {
		t.Errorf("Expected no run recorded, got %v", history.statuses)
	}
}
