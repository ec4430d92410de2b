package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wb-tariffs/tariff"
	"github.com/warp/wb-tariffs/tariff/store"
)

func TestNextAligned(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	at := func(h, m, s int) time.Time { return time.Date(2024, 3, 1, h, m, s, 0, time.UTC) }

	tests := []struct {
		name     string
		now      time.Time
		interval time.Duration
		offset   time.Duration
		want     time.Time
	}{
		{"top of hour moves to next hour", at(10, 0, 0), time.Hour, 0, at(11, 0, 0)},
		{"mid hour", at(10, 30, 15), time.Hour, 0, at(11, 0, 0)},
		{"before offset", at(10, 2, 0), time.Hour, 5 * time.Minute, at(10, 5, 0)},
		{"exactly at offset", at(10, 5, 0), time.Hour, 5 * time.Minute, at(11, 5, 0)},
		{"after offset", at(10, 6, 0), time.Hour, 5 * time.Minute, at(11, 5, 0)},
		{"offset larger than interval wraps", at(10, 2, 0), time.Hour, 65 * time.Minute, at(10, 5, 0)},
		{"short interval", at(10, 7, 30), 15 * time.Minute, 0, at(10, 15, 0)},
		{"daily at local midnight", time.Date(2024, 3, 1, 22, 0, 0, 0, msk), 24 * time.Hour, 0, time.Date(2024, 3, 2, 0, 0, 0, 0, msk)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextAligned(tt.now, tt.interval, tt.offset)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.True(t, got.After(tt.now))
		})
	}
}

func TestNextAligned_ZeroIntervalReturnsNow(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now, NextAligned(now, 0, 0))
}

func TestSchedule_WithDefaults(t *testing.T) {
	s := Schedule{ExportOffset: 5 * time.Minute}.withDefaults()
	assert.Equal(t, time.Hour, s.IngestInterval)
	assert.Equal(t, time.Hour, s.ExportInterval)
	assert.Equal(t, 5*time.Minute, s.ExportOffset)
}

func TestStatus_BeforeRun(t *testing.T) {
	o := newOrchestrator(t, Options{
		Source:   &fakeSource{},
		Store:    store.NewMemory(),
		Exporter: &fakeExporter{},
		Targets:  []string{"a", "b"},
		Schedule: DefaultSchedule(),
	})

	s := o.Status()
	assert.Equal(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), s.NextIngest.UTC())
	assert.Equal(t, time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC), s.NextExport.UTC())
	assert.True(t, s.ExportEnabled)
	assert.Equal(t, 2, s.Targets)
	assert.False(t, s.IngestRunning)
}

func TestRun_WarmUpThenStopsOnCancel(t *testing.T) {
	// GIVEN: A schedule whose aligned ticks are far away and a short warm-up
	mem := store.NewMemory()
	src := &fakeSource{records: moscow()}
	exp := &fakeExporter{}
	o, err := New(Options{
		Source:   src,
		Store:    mem,
		Runs:     mem,
		Exporter: exp,
		Targets:  []string{"sheet-a"},
		Schedule: Schedule{
			IngestInterval:     24 * time.Hour,
			ExportInterval:     24 * time.Hour,
			InitialDelay:       time.Millisecond,
			InitialExportDelay: time.Millisecond,
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// WHEN: The warm-up export has happened
	require.Eventually(t, func() bool {
		runs, _ := mem.ListRuns(context.Background(), tariff.RunFilter{Kind: tariff.RunExport})
		return len(runs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	// THEN: Run returns the context error and both cycles ran once
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, []string{"sheet-a"}, exp.calls)
	assert.Equal(t, 1, mem.Len())
}

func TestRun_NegativeDelaySkipsWarmUp(t *testing.T) {
	var calls atomic.Int32
	src := &countingSource{calls: &calls}
	o, err := New(Options{
		Source:   src,
		Store:    store.NewMemory(),
		Schedule: Schedule{IngestInterval: 24 * time.Hour, ExportInterval: 24 * time.Hour, InitialDelay: -1},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = o.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(0), calls.Load())
}

type countingSource struct{ calls *atomic.Int32 }

func (c *countingSource) FetchTariffs(context.Context, tariff.Date) ([]tariff.Record, error) {
	c.calls.Add(1)
	return nil, nil
}

func TestSleep(t *testing.T) {
	assert.True(t, sleep(context.Background(), 0))
	assert.True(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.False(t, sleep(ctx, 0))
}
