// Package store provides an in-memory tariff.Backend.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/wb-tariffs/tariff"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type key struct {
	Date      tariff.Date
	Warehouse string
}

// Memory keeps tariffs and runs in maps. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	tariffs map[key]tariff.Record
	runs    []tariff.Run

	// Now is the write clock; defaults to time.Now.
	Now func() time.Time

	upserts  int
	failNext error
}

func NewMemory() *Memory {
	return &Memory{
		tariffs: make(map[key]tariff.Record),
		Now:     time.Now,
	}
}

// UpsertTariffs writes all records or none.
func (m *Memory) UpsertTariffs(_ context.Context, date tariff.Date, records []tariff.Record) error {
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return fmt.Errorf("%w: %w", tariff.ErrUpsertFailed, err)
	}

	for _, r := range tariff.Stamp(date, records, m.Now()) {
		m.tariffs[key{Date: r.Date, Warehouse: r.Warehouse}] = r
	}
	return nil
}

func (m *Memory) GetTariffsByDate(_ context.Context, date tariff.Date) ([]tariff.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []tariff.Record
	for k, r := range m.tariffs {
		if k.Date == date {
			result = append(result, r)
		}
	}
	tariff.SortForPresentation(result)
	return result, nil
}

func (m *Memory) GetAvailableDates(_ context.Context) ([]tariff.Date, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[tariff.Date]struct{})
	var dates []tariff.Date
	for k := range m.tariffs {
		if _, ok := seen[k.Date]; ok {
			continue
		}
		seen[k.Date] = struct{}{}
		dates = append(dates, k.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run tariff.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

// ListRuns returns runs newest first.
func (m *Memory) ListRuns(_ context.Context, filter tariff.RunFilter) ([]tariff.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []tariff.Run
	for i := len(m.runs) - 1; i >= 0; i-- {
		r := m.runs[i]
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		result = append(result, r)
		if len(result) == filter.EffectiveLimit() {
			break
		}
	}
	return result, nil
}

func (m *Memory) Migrate(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// =============================================================================
// TEST HOOKS
// =============================================================================

// UpsertCalls returns how many non-empty upserts were attempted.
func (m *Memory) UpsertCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}

// FailNextUpsert makes the next non-empty upsert roll back with err.
func (m *Memory) FailNextUpsert(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Len returns the number of stored tariff rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tariffs)
}
