// Package pipeline drives acquisition sources through sanitization, scoring
// and the merge/upsert engine, and records one run log per source.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/urbex/api/internal/acquisition"
	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/metrics"
	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/repository"
	"github.com/stwalsh4118/urbex/api/internal/sanitize"
	"github.com/stwalsh4118/urbex/api/internal/services"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of sources run at once.
const DefaultConcurrency = 2

// ErrStoreUnavailable is returned when the canonical store cannot be reached
// before a run starts.
var ErrStoreUnavailable = errors.New("canonical store unavailable")

// ItemResult is the outcome of one raw record.
type ItemResult struct {
	Index int
	// Outcome is one of the metrics.Outcome* values.
	Outcome    string
	PropertyID int64
	Warnings   []sanitize.Warning
	Err        error
}

// SourceReport is the outcome of running one source.
type SourceReport struct {
	Log   models.RunLog
	Items []ItemResult
	// Err is the acquisition or cancellation error that aborted the source.
	Err error
}

// Report is the outcome of one pipeline run over several sources.
type Report struct {
	RunID   string
	Sources []SourceReport
}

// Totals sums the counters of every source.
func (r *Report) Totals() (found, added, updated, errs int) {
	for _, s := range r.Sources {
		found += s.Log.Found
		added += s.Log.Added
		updated += s.Log.Updated
		errs += s.Log.Errors
	}
	return found, added, updated, errs
}

// Runner executes pipeline runs.
type Runner struct {
	store       repository.Store
	upserts     *services.UpsertService
	log         *logger.Logger
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithConcurrency sets how many sources run at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMetrics records run and record outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock replaces the wall clock used for run timing and sanitization.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner writing through upserts and logging runs to
// store.
func NewRunner(store repository.Store, upserts *services.UpsertService, log *logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		upserts:     upserts,
		log:         log.WithComponent("pipeline"),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run runs every source, at most the configured number at a time, under a
// single run id. A failing source does not stop the others. Run itself
// fails only when the store is unreachable.
func (r *Runner) Run(ctx context.Context, sources ...acquisition.Source) (*Report, error) {
	if err := r.store.Ping(ctx); err != nil {
		r.logUnavailable(sources, err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	report := &Report{
		RunID:   uuid.New().String(),
		Sources: make([]SourceReport, len(sources)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			report.Sources[i] = r.RunSource(gctx, report.RunID, src)
			return nil
		})
	}
	_ = g.Wait()

	found, added, updated, errs := report.Totals()
	r.log.Info("Pipeline run finished", map[string]interface{}{
		"run_id":  report.RunID,
		"sources": len(sources),
		"found":   found,
		"added":   added,
		"updated": updated,
		"errors":  errs,
	})

	return report, nil
}

// RunSource fetches src and feeds each record through sanitize and upsert.
// Cancellation is observed between records; the record in flight completes
// or rolls back as a unit. A run log is always written, even after
// cancellation.
func (r *Runner) RunSource(ctx context.Context, runID string, src acquisition.Source) SourceReport {
	start := r.now()
	log := r.log.With(map[string]interface{}{"run_id": runID, "source": src.Name()})

	rep := SourceReport{
		Log: models.RunLog{
			RunID:      runID,
			SourceName: src.Name(),
			StartedAt:  start,
		},
	}

	log.Info("Source run started", nil)

	// A failed fetch may still hand back the records acquired before the
	// failure; those are processed and the run keeps the fetch error.
	records, err := src.Fetch(ctx)
	rep.Err = err
	rep.Items = make([]ItemResult, 0, len(records))
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			if rep.Err == nil {
				rep.Err = err
			}
			r.metrics.RecordOutcome(src.Name(), metrics.OutcomeCancelled)
			break
		}
		rep.Items = append(rep.Items, r.processRecord(ctx, log, src.Name(), i, raw, &rep.Log))
	}

	r.finish(ctx, log, &rep, start)
	return rep
}

func (r *Runner) processRecord(ctx context.Context, log *logger.Logger, source string, index int, raw acquisition.RawRecord, rl *models.RunLog) ItemResult {
	rl.Found++
	item := ItemResult{Index: index}

	res := sanitize.SanitizeAt(raw.Fields, r.now())
	item.Warnings = res.Warnings
	for _, w := range res.Warnings {
		log.Debug("Field failed validation", map[string]interface{}{
			"index":  index,
			"field":  w.Field,
			"reason": w.Reason,
		})
	}

	if err := sanitize.Validate(res.Record); err != nil {
		item.Outcome = metrics.OutcomeRejected
		item.Err = err
		log.Warn("Record rejected", map[string]interface{}{"index": index, "error": err.Error()})
		r.metrics.RecordOutcome(source, item.Outcome)
		return item
	}

	out, err := r.upserts.Upsert(ctx, res.Record, services.Observation{
		Source:    source,
		SourceURL: raw.SourceURL,
		Payload:   raw.Payload,
	})
	switch {
	case err != nil:
		rl.Errors++
		item.Outcome = metrics.OutcomeError
		item.Err = err
		log.Error("Upsert failed", err, map[string]interface{}{"index": index})
	case out.Created:
		rl.Added++
		item.Outcome = metrics.OutcomeAdded
		item.PropertyID = out.Property.ID
	default:
		rl.Updated++
		item.Outcome = metrics.OutcomeUpdated
		item.PropertyID = out.Property.ID
	}

	r.metrics.RecordOutcome(source, item.Outcome)
	return item
}

func (r *Runner) finish(ctx context.Context, log *logger.Logger, rep *SourceReport, start time.Time) {
	elapsed := r.now().Sub(start)
	rep.Log.DurationSeconds = elapsed.Seconds()
	rep.Log.ResolveStatus(rep.Err != nil)
	if rep.Err != nil {
		text := rep.Err.Error()
		rep.Log.ErrorText = &text
	} else if rep.Log.Errors > 0 {
		text := fmt.Sprintf("%d of %d records failed to persist", rep.Log.Errors, rep.Log.Found)
		rep.Log.ErrorText = &text
	}

	// The run log outlives a cancelled run.
	if err := r.store.CreateRunLog(context.WithoutCancel(ctx), &rep.Log); err != nil {
		log.Error("Failed to write run log", err, nil)
	}

	r.metrics.RecordRun(rep.Log.SourceName, rep.Log.Status, elapsed)

	fields := map[string]interface{}{
		"status":   rep.Log.Status,
		"found":    rep.Log.Found,
		"added":    rep.Log.Added,
		"updated":  rep.Log.Updated,
		"errors":   rep.Log.Errors,
		"duration": rep.Log.DurationSeconds,
	}
	if rep.Err != nil {
		log.Error("Source run failed", rep.Err, fields)
		return
	}
	log.Info("Source run finished", fields)
}

// logUnavailable records a failed run that never started. The run log
// table lives in the unreachable store, so the summary goes to the logger.
func (r *Runner) logUnavailable(sources []acquisition.Source, err error) {
	now := r.now()
	for _, src := range sources {
		r.metrics.RecordRun(src.Name(), models.RunStatusFailure, 0)
		r.log.Error("Source run failed", err, map[string]interface{}{
			"source":     src.Name(),
			"status":     models.RunStatusFailure,
			"started_at": now,
			"found":      0,
			"added":      0,
			"updated":    0,
			"errors":     0,
			"error_text": ErrStoreUnavailable.Error(),
		})
	}
}
