package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCycle(t *testing.T) {
	before := testutil.ToFloat64(CyclesTotal.WithLabelValues("ingest", "completed"))
	RecordCycle("ingest", "completed", 150*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(CyclesTotal.WithLabelValues("ingest", "completed")))
	assert.Greater(t, testutil.ToFloat64(LastSuccess.WithLabelValues("ingest")), 0.0)
}

func TestRecordExportTarget(t *testing.T) {
	ok := testutil.ToFloat64(ExportTargets.WithLabelValues("success"))
	failed := testutil.ToFloat64(ExportTargets.WithLabelValues("failure"))

	RecordExportTarget(nil)
	RecordExportTarget(errors.New("quota exceeded"))
	RecordExportTarget(errors.New("not found"))

	assert.Equal(t, ok+1, testutil.ToFloat64(ExportTargets.WithLabelValues("success")))
	assert.Equal(t, failed+2, testutil.ToFloat64(ExportTargets.WithLabelValues("failure")))
}

func TestRecordUpsertAndBreaker(t *testing.T) {
	before := testutil.ToFloat64(TariffsUpserted)
	RecordUpsert(42)
	assert.Equal(t, before+42, testutil.ToFloat64(TariffsUpserted))

	SetCircuitBreakerState("wb-tariffs", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("wb-tariffs")))
}
