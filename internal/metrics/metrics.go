//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package metrics records pipeline run metrics in a Prometheus registry and
// publishes them to a pushgateway or a node exporter textfile.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

// Failure reasons are kept low-cardinality.
const (
	ReasonCanceled            = "canceled"
	ReasonStoreUnavailable    = "store_unavailable"
	ReasonEmptyRange          = "empty_range"
	ReasonDuplicateKey        = "duplicate_key"
	ReasonUniqueViolation     = "unique_violation"
	ReasonForeignKeyViolation = "foreign_key_violation"
	ReasonUnknown             = "unknown"
)

const defaultPushTimeout = 10 * time.Second

// Registry holds the pipeline metrics. It implements
// warehouse.StageObserver.
type Registry struct {
	reg *prometheus.Registry

	stageInserted   *prometheus.CounterVec
	stageCandidates *prometheus.GaugeVec
	stageDuration   *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	factDropped     *prometheus.CounterVec
	factSkipped     prometheus.Counter
	runs            *prometheus.CounterVec
	sourceRecords   prometheus.Gauge
	lastRun         prometheus.Gauge
	lastSuccess     prometheus.Gauge
}

var _ warehouse.StageObserver = (*Registry)(nil)

// New creates a registry with every pipeline metric registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		stageInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starload_stage_rows_inserted_total",
			Help: "Rows appended by each pipeline stage.",
		}, []string{"stage"}),
		stageCandidates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "starload_stage_candidates",
			Help: "Distinct candidate rows derived by each stage in the last run.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "starload_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starload_stage_failures_total",
			Help: "Pipeline stage failures by reason.",
		}, []string{"stage", "reason"}),
		factDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starload_fact_dropped_records_total",
			Help: "Sales records dropped because a dimension key did not resolve, by the first dimension missed.",
		}, []string{"dimension"}),
		factSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "starload_fact_skipped_records_total",
			Help: "Sales records skipped because the order is already in the fact table.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starload_runs_total",
			Help: "Pipeline runs by status.",
		}, []string{"status"}),
		sourceRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "starload_source_records",
			Help: "Records in the unified sales stream of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "starload_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "starload_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished.",
		}),
	}

	r.reg.MustRegister(
		r.stageInserted,
		r.stageCandidates,
		r.stageDuration,
		r.stageFailures,
		r.factDropped,
		r.factSkipped,
		r.runs,
		r.sourceRecords,
		r.lastRun,
		r.lastSuccess,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveStage implements warehouse.StageObserver.
func (r *Registry) ObserveStage(res warehouse.StageResult) {
	r.stageInserted.WithLabelValues(res.Stage).Add(float64(res.Inserted))
	r.stageCandidates.WithLabelValues(res.Stage).Set(float64(res.Candidates))
	r.stageDuration.WithLabelValues(res.Stage).Observe(res.Duration.Seconds())
	if res.Err != nil {
		r.stageFailures.WithLabelValues(res.Stage, Classify(res.Err)).Inc()
	}
	for dim, n := range res.Misses {
		r.factDropped.WithLabelValues(dim).Add(float64(n))
	}
	if res.Skipped > 0 {
		r.factSkipped.Add(float64(res.Skipped))
	}
}

// ObserveRun records the outcome of a whole run.
func (r *Registry) ObserveRun(report *warehouse.Report) {
	r.runs.WithLabelValues(report.Status()).Inc()
	r.sourceRecords.Set(float64(report.SourceRecords))
	finished := float64(report.FinishedAt.Unix())
	r.lastRun.Set(finished)
	if !report.Failed() {
		r.lastSuccess.Set(finished)
	}
}

// Push sends every metric to a pushgateway under job, replacing the
// previous push for that job.
func (r *Registry) Push(ctx context.Context, url, job string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPushTimeout)
		defer cancel()
	}
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Classify maps a stage error onto a low-cardinality reason.
func Classify(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	if errors.Is(err, warehouse.ErrEmptyRange) {
		return ReasonEmptyRange
	}
	if errors.Is(err, warehouse.ErrDuplicateNaturalKey) || errors.Is(err, warehouse.ErrDuplicateSurrogateKey) {
		return ReasonDuplicateKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ReasonUniqueViolation
		case "23503":
			return ReasonForeignKeyViolation
		}
	}
	if errors.Is(err, warehouse.ErrStoreUnavailable) {
		return ReasonStoreUnavailable
	}
	return ReasonUnknown
}
