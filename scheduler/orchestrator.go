/*
orchestrator.go - Ingestion and export cycles

PURPOSE:
  Runs the two units of work of the service:
    - Ingestion: fetch today's tariffs and upsert them in one transaction.
    - Export: read today's tariffs and mirror them into every configured
      spreadsheet.

SINGLE-FLIGHT:
  Each cycle kind owns a Guard. A cycle requested while the previous one of
  the same kind is still running returns Status=skipped without touching
  the source, the store or the spreadsheets. The guard is released by a
  defer, so failures and recovered panics leave it Idle.

FAILURE CONTAINMENT:
  Cycles never return errors or panic. Every failure ends in a CycleResult
  with Status=failed and Err set, is logged and counted, and is recorded in
  the run history when a RunStore is configured. Export target failures are
  isolated: the remaining targets are still attempted.

SEE ALSO:
  - schedule.go: aligned repeating loops and warm-up
  - tariff/run.go: run history records
*/
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/wb-tariffs/logging"
	"github.com/warp/wb-tariffs/metrics"
	"github.com/warp/wb-tariffs/tariff"
)

// Source fetches tariffs for a date.
type Source interface {
	FetchTariffs(ctx context.Context, date tariff.Date) ([]tariff.Record, error)
}

// Exporter writes a day's tariffs into one spreadsheet.
type Exporter interface {
	Export(ctx context.Context, spreadsheetID string, date tariff.Date, records []tariff.Record) error
}

// Options configures an Orchestrator. Source and Store are required.
type Options struct {
	Source Source
	Store  tariff.Store

	// Runs receives run records. Optional.
	Runs tariff.RunStore

	// Exporter is nil when spreadsheet export is disabled. Pass a nil
	// interface, not a typed nil pointer.
	Exporter Exporter
	Targets  []string

	// Location defines "today". Default UTC.
	Location *time.Location
	// Now is the clock. Default time.Now.
	Now func() time.Time

	Schedule Schedule
}

// CycleResult is the outcome of one cycle.
type CycleResult struct {
	RunID         string
	Kind          tariff.RunKind
	Date          tariff.Date
	Status        tariff.RunStatus
	Rows          int
	Targets       []string
	FailedTargets []string
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Run converts the result into a run history record.
func (r CycleResult) Run() tariff.Run {
	run := tariff.Run{
		ID:            r.RunID,
		Kind:          r.Kind,
		Date:          r.Date,
		Status:        r.Status,
		Rows:          r.Rows,
		Targets:       r.Targets,
		FailedTargets: r.FailedTargets,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}

// Orchestrator owns the cycle guards and runs cycles on demand or on a
// schedule (see Run).
type Orchestrator struct {
	source   Source
	store    tariff.Store
	runs     tariff.RunStore
	exporter Exporter
	targets  []string
	loc      *time.Location
	now      func() time.Time
	schedule Schedule
	log      zerolog.Logger

	ingestGuard Guard
	exportGuard Guard

	mu         sync.RWMutex
	nextIngest time.Time
	nextExport time.Time
}

// New builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Source == nil {
		return nil, errors.New("scheduler: source is required")
	}
	if opts.Store == nil {
		return nil, errors.New("scheduler: store is required")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Orchestrator{
		source:   opts.Source,
		store:    opts.Store,
		runs:     opts.Runs,
		exporter: opts.Exporter,
		targets:  append([]string(nil), opts.Targets...),
		loc:      opts.Location,
		now:      opts.Now,
		schedule: opts.Schedule.withDefaults(),
		log:      logging.WithComponent("scheduler"),
	}, nil
}

// Today returns the current calendar date in the configured location.
func (o *Orchestrator) Today() tariff.Date {
	return tariff.Today(o.now(), o.loc)
}

// =============================================================================
// INGESTION
// =============================================================================

// RunIngestionCycle fetches today's tariffs and upserts them.
func (o *Orchestrator) RunIngestionCycle(ctx context.Context) (res CycleResult) {
	res = o.begin(tariff.RunIngest)

	if !o.ingestGuard.TryAcquire() {
		o.log.Warn().Str("run_id", res.RunID).Msg("Previous ingestion still running, skipping")
		return o.skip(res)
	}
	defer o.ingestGuard.Release()
	defer o.finish(ctx, &res)

	log := o.log.With().Str("run_id", res.RunID).Str("date", res.Date.String()).Logger()
	log.Info().Msg("Starting ingestion cycle")

	records, err := o.source.FetchTariffs(ctx, res.Date)
	if err != nil {
		res.Status = tariff.RunFailed
		res.Err = fmt.Errorf("fetch tariffs: %w", err)
		return res
	}

	if len(records) == 0 {
		log.Warn().Msg("No tariff data received")
		res.Status = tariff.RunEmpty
		return res
	}

	if err := o.store.UpsertTariffs(ctx, res.Date, records); err != nil {
		res.Status = tariff.RunFailed
		res.Err = fmt.Errorf("save tariffs: %w", err)
		return res
	}

	metrics.RecordUpsert(len(records))
	res.Rows = len(records)
	res.Status = tariff.RunCompleted
	return res
}

// =============================================================================
// EXPORT
// =============================================================================

// RunExportCycle mirrors today's stored tariffs into every target.
func (o *Orchestrator) RunExportCycle(ctx context.Context) (res CycleResult) {
	res = o.begin(tariff.RunExport)
	res.Targets = append([]string(nil), o.targets...)

	if o.exporter == nil || len(o.targets) == 0 {
		if o.exporter == nil {
			o.log.Warn().Msg("Spreadsheet export disabled: service account not configured")
		} else {
			o.log.Warn().Msg("Spreadsheet export disabled: no spreadsheet IDs configured")
		}
		res.Status = tariff.RunDisabled
		o.finish(ctx, &res)
		return res
	}

	if !o.exportGuard.TryAcquire() {
		o.log.Warn().Str("run_id", res.RunID).Msg("Previous export still running, skipping")
		return o.skip(res)
	}
	defer o.exportGuard.Release()
	defer o.finish(ctx, &res)

	log := o.log.With().Str("run_id", res.RunID).Str("date", res.Date.String()).Logger()
	log.Info().Int("targets", len(o.targets)).Msg("Starting export cycle")

	records, err := o.store.GetTariffsByDate(ctx, res.Date)
	if err != nil {
		res.Status = tariff.RunFailed
		res.Err = fmt.Errorf("load tariffs: %w", err)
		return res
	}
	if len(records) == 0 {
		log.Warn().Msg("No tariffs stored for today, nothing to export")
		res.Status = tariff.RunEmpty
		return res
	}
	res.Rows = len(records)

	var targetErrs []error
	for _, id := range o.targets {
		err := o.exporter.Export(ctx, id, res.Date, records)
		metrics.RecordExportTarget(err)
		if err != nil {
			log.Error().Err(err).Str("spreadsheet_id", id).Msg("Spreadsheet export failed")
			res.FailedTargets = append(res.FailedTargets, id)
			targetErrs = append(targetErrs, fmt.Errorf("%s: %w", id, err))
		}
	}

	res.Status = tariff.RunCompleted
	if len(targetErrs) > 0 {
		res.Err = errors.Join(targetErrs...)
		if len(targetErrs) == len(o.targets) {
			res.Status = tariff.RunFailed
		}
	}
	return res
}

// =============================================================================
// HELPERS
// =============================================================================

func (o *Orchestrator) begin(kind tariff.RunKind) CycleResult {
	now := o.now()
	return CycleResult{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Date:      tariff.Today(now, o.loc),
		StartedAt: now.UTC(),
	}
}

func (o *Orchestrator) skip(res CycleResult) CycleResult {
	res.Status = tariff.RunSkipped
	res.FinishedAt = o.now().UTC()
	metrics.RecordCycle(string(res.Kind), string(res.Status), 0)
	return res
}

// finish is deferred by both cycles. It turns a panic into a failed result,
// then records metrics, the log line and the run record.
func (o *Orchestrator) finish(ctx context.Context, res *CycleResult) {
	if r := recover(); r != nil {
		res.Status = tariff.RunFailed
		res.Err = fmt.Errorf("panic: %v", r)
	}
	if res.Status == "" {
		res.Status = tariff.RunFailed
	}
	res.FinishedAt = o.now().UTC()
	elapsed := res.FinishedAt.Sub(res.StartedAt)

	metrics.RecordCycle(string(res.Kind), string(res.Status), elapsed)

	var ev *zerolog.Event
	switch {
	case res.Status == tariff.RunFailed:
		ev = o.log.Error().Err(res.Err)
	case res.Err != nil:
		ev = o.log.Warn().Err(res.Err).Strs("failed_targets", res.FailedTargets)
	default:
		ev = o.log.Info()
	}
	ev.Str("run_id", res.RunID).
		Str("kind", string(res.Kind)).
		Str("status", string(res.Status)).
		Int("rows", res.Rows).
		Dur("elapsed", elapsed).
		Msg("Cycle finished")

	if o.runs == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.runs.SaveRun(saveCtx, res.Run()); err != nil {
		o.log.Warn().Err(err).Str("run_id", res.RunID).Msg("Failed to record run")
	}
}
