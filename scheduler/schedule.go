package scheduler

import (
	"context"
	"sync"
	"time"
)

// Schedule configures the repeating cycles. Zero intervals mean 1h; start
// from DefaultSchedule for the usual offsets and delays.
type Schedule struct {
	IngestInterval time.Duration
	IngestOffset   time.Duration
	ExportInterval time.Duration
	ExportOffset   time.Duration

	// InitialDelay precedes the warm-up ingestion; InitialExportDelay
	// separates it from the warm-up export. Negative disables the warm-up.
	InitialDelay       time.Duration
	InitialExportDelay time.Duration
}

// DefaultSchedule matches hourly ingestion at :00 and export at :05.
func DefaultSchedule() Schedule {
	return Schedule{
		IngestInterval:     time.Hour,
		ExportInterval:     time.Hour,
		ExportOffset:       5 * time.Minute,
		InitialDelay:       5 * time.Second,
		InitialExportDelay: 3 * time.Second,
	}
}

func (s Schedule) withDefaults() Schedule {
	if s.IngestInterval <= 0 {
		s.IngestInterval = time.Hour
	}
	if s.ExportInterval <= 0 {
		s.ExportInterval = time.Hour
	}
	return s
}

// NextAligned returns the first instant strictly after now that sits at
// offset past a multiple of interval, measured on now's wall clock. With a
// 1h interval and 5m offset that is the next hh:05.
func NextAligned(now time.Time, interval, offset time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	_, zone := now.Zone()
	shift := time.Duration(zone) * time.Second

	wall := now.Add(shift)
	next := wall.Truncate(interval).Add(offset % interval)
	for !next.After(wall) {
		next = next.Add(interval)
	}
	return next.Add(-shift)
}

// Status describes the schedule for the API.
type Status struct {
	NextIngest    time.Time `json:"next_ingest"`
	NextExport    time.Time `json:"next_export"`
	IngestRunning bool      `json:"ingest_running"`
	ExportRunning bool      `json:"export_running"`
	ExportEnabled bool      `json:"export_enabled"`
	Targets       int       `json:"targets"`
}

// Status reports the next fire times and whether cycles are in flight.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	nextIngest, nextExport := o.nextIngest, o.nextExport
	o.mu.RUnlock()

	now := o.now().In(o.loc)
	if nextIngest.IsZero() {
		nextIngest = NextAligned(now, o.schedule.IngestInterval, o.schedule.IngestOffset)
	}
	if nextExport.IsZero() {
		nextExport = NextAligned(now, o.schedule.ExportInterval, o.schedule.ExportOffset)
	}

	return Status{
		NextIngest:    nextIngest,
		NextExport:    nextExport,
		IngestRunning: o.ingestGuard.Running(),
		ExportRunning: o.exportGuard.Running(),
		ExportEnabled: o.exporter != nil && len(o.targets) > 0,
		Targets:       len(o.targets),
	}
}

// Run drives both cycles until ctx is cancelled: a warm-up ingestion and
// export shortly after start, then the two aligned loops. Each loop
// computes its next fire time after the previous cycle returns, so missed
// ticks are dropped. Run returns ctx.Err() once every loop has stopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	s := o.schedule
	o.log.Info().
		Dur("ingest_interval", s.IngestInterval).Dur("ingest_offset", s.IngestOffset).
		Dur("export_interval", s.ExportInterval).Dur("export_offset", s.ExportOffset).
		Msg("Scheduler started")

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		o.warmUp(ctx)
	}()
	go func() {
		defer wg.Done()
		o.loop(ctx, s.IngestInterval, s.IngestOffset, &o.nextIngest, func(ctx context.Context) {
			o.RunIngestionCycle(ctx)
		})
	}()
	go func() {
		defer wg.Done()
		o.loop(ctx, s.ExportInterval, s.ExportOffset, &o.nextExport, func(ctx context.Context) {
			o.RunExportCycle(ctx)
		})
	}()

	wg.Wait()
	o.log.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

func (o *Orchestrator) warmUp(ctx context.Context) {
	if o.schedule.InitialDelay < 0 {
		return
	}
	if !sleep(ctx, o.schedule.InitialDelay) {
		return
	}
	o.log.Info().Msg("Running initial ingestion")
	o.RunIngestionCycle(ctx)

	if !sleep(ctx, o.schedule.InitialExportDelay) {
		return
	}
	o.RunExportCycle(ctx)
}

func (o *Orchestrator) loop(ctx context.Context, interval, offset time.Duration, next *time.Time, cycle func(context.Context)) {
	for {
		at := NextAligned(o.now().In(o.loc), interval, offset)
		o.mu.Lock()
		*next = at
		o.mu.Unlock()

		if !sleep(ctx, at.Sub(o.now())) {
			return
		}
		cycle(ctx)
	}
}

// sleep waits for d or ctx. It reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
