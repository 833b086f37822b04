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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/pgedge-starload/internal/logging"
)

// SourceStage names the read of the unified sales stream in a report.
const SourceStage = "source"

// StageResult reports the outcome of one dimension build or the fact
// assembly.
type StageResult struct {
	Stage      string
	Table      string
	Candidates int
	Existing   int
	Inserted   int

	// Dropped and Skipped are only set by the fact stage. Misses holds the
	// dropped count per dimension.
	Dropped int
	Skipped int
	Misses  map[string]int

	Duration time.Duration
	Err      error
}

// OK reports whether the stage succeeded.
func (r StageResult) OK() bool {
	return r.Err == nil
}

// StageObserver is notified as each stage finishes. Dimension stages
// finish concurrently, so implementations must be safe for concurrent use.
type StageObserver interface {
	ObserveStage(result StageResult)
}

// Options controls a pipeline run.
type Options struct {
	// MaxParallel bounds concurrent dimension builds. Zero or less means
	// one build per dimension.
	MaxParallel int

	// SkipLoadedOrders enables the fact-level anti-join.
	SkipLoadedOrders bool
}

// DefaultOptions returns the default pipeline options.
func DefaultOptions() Options {
	return Options{
		MaxParallel:      len(Dimensions()),
		SkipLoadedOrders: true,
	}
}

// Report is the outcome of one pipeline run.
type Report struct {
	RunID         uuid.UUID
	StartedAt     time.Time
	FinishedAt    time.Time
	SourceRecords int
	Sources       map[string]int
	Stages        []StageResult
}

// Failed reports whether any stage failed.
func (r *Report) Failed() bool {
	for _, s := range r.Stages {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Err joins the errors of every failed stage.
func (r *Report) Err() error {
	var errs []error
	for _, s := range r.Stages {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Stage, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Stage returns the result of the named stage.
func (r *Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Status is "success" or "failed".
func (r *Report) Status() string {
	if r.Failed() {
		return "failed"
	}
	return "success"
}

type stageSummary struct {
	Stage      string         `json:"stage"`
	Table      string         `json:"table"`
	Candidates int            `json:"candidates"`
	Existing   int            `json:"existing"`
	Inserted   int            `json:"inserted"`
	Dropped    int            `json:"dropped,omitempty"`
	Skipped    int            `json:"skipped,omitempty"`
	Misses     map[string]int `json:"misses,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// Summary renders the per-stage results as JSON for the run history.
func (r *Report) Summary() ([]byte, error) {
	out := make([]stageSummary, len(r.Stages))
	for i, s := range r.Stages {
		out[i] = stageSummary{
			Stage:      s.Stage,
			Table:      s.Table,
			Candidates: s.Candidates,
			Existing:   s.Existing,
			Inserted:   s.Inserted,
			Dropped:    s.Dropped,
			Skipped:    s.Skipped,
			Misses:     s.Misses,
			DurationMS: s.Duration.Milliseconds(),
		}
		if len(out[i].Misses) == 0 {
			out[i].Misses = nil
		}
		if s.Err != nil {
			out[i].Error = s.Err.Error()
		}
	}
	return json.Marshal(out)
}

// Pipeline runs every dimension build and then the fact assembly against
// one store.
type Pipeline struct {
	store     Store
	opts      Options
	issuer    *KeyIssuer
	observers []StageObserver
}

// NewPipeline creates a pipeline over store.
func NewPipeline(store Store, opts Options) *Pipeline {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = len(Dimensions())
	}
	return &Pipeline{
		store:  store,
		opts:   opts,
		issuer: NewKeyIssuer(store),
	}
}

// WithObserver registers an observer for stage results.
func (p *Pipeline) WithObserver(o StageObserver) *Pipeline {
	p.observers = append(p.observers, o)
	return p
}

// Issuer returns the pipeline's key issuer.
func (p *Pipeline) Issuer() *KeyIssuer {
	return p.issuer
}

// LoadAndRun reads the unified sales stream from the given feed tables and
// runs the pipeline over it. When the stream cannot be read no other stage
// runs; the error is returned together with a failed report holding a
// single SourceStage result, so the run can still be recorded.
func (p *Pipeline) LoadAndRun(ctx context.Context, tables []string) (*Report, error) {
	started := time.Now()
	snap, err := LoadSnapshot(ctx, p.store, tables)
	if err != nil {
		err = fmt.Errorf("failed to load sales stream: %w", err)
		res := StageResult{Stage: SourceStage, Duration: time.Since(started), Err: err}
		p.notify(res)
		return &Report{
			RunID:      uuid.New(),
			StartedAt:  started,
			FinishedAt: time.Now(),
			Stages:     []StageResult{res},
		}, err
	}
	return p.Run(ctx, snap), nil
}

// Run builds every dimension concurrently and then assembles facts. Stage
// failures are recorded in the report and never stop sibling stages; the
// fact stage runs even if a dimension failed.
func (p *Pipeline) Run(ctx context.Context, snap *Snapshot) *Report {
	report := &Report{
		RunID:         uuid.New(),
		StartedAt:     time.Now(),
		SourceRecords: len(snap.Records),
		Sources:       snap.Sources,
	}

	log := logging.With("pipeline").With().Str("run_id", report.RunID.String()).Logger()
	log.Info().
		Int("records", len(snap.Records)).
		Int("max_parallel", p.opts.MaxParallel).
		Msg("Starting pipeline run")

	dims := Dimensions()
	results := make([]StageResult, len(dims))
	builder := NewBuilder(p.store, p.issuer)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxParallel)
	for i, d := range dims {
		g.Go(func() error {
			res := builder.Build(gctx, d, snap)
			if res.Err != nil {
				log.Error().Err(res.Err).Str("stage", d.Name).Msg("Dimension build failed")
			}
			results[i] = res
			p.notify(res)
			return nil
		})
	}
	_ = g.Wait()
	report.Stages = append(report.Stages, results...)

	assembler := NewAssembler(p.store, p.issuer)
	assembler.SkipLoaded = p.opts.SkipLoadedOrders
	fact := assembler.Assemble(ctx, snap)
	if fact.Err != nil {
		log.Error().Err(fact.Err).Msg("Fact assembly failed")
	}
	p.notify(fact)
	report.Stages = append(report.Stages, fact)

	report.FinishedAt = time.Now()
	log.Info().
		Str("status", report.Status()).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Pipeline run finished")
	return report
}

func (p *Pipeline) notify(res StageResult) {
	for _, o := range p.observers {
		o.ObserveStage(res)
	}
}
