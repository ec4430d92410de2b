package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wb-tariffs/tariff"
)

func TestMemory_UpsertIsIdempotentAndMerges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	date := tariff.MustParseDate("2024-03-01")

	r1 := tariff.Record{Warehouse: "Moscow", BoxDeliveryBase: decimal.RequireFromString("40.5")}
	require.NoError(t, m.UpsertTariffs(ctx, date, []tariff.Record{r1}))
	require.NoError(t, m.UpsertTariffs(ctx, date, []tariff.Record{r1}))
	assert.Equal(t, 1, m.Len())

	r2 := tariff.Record{Warehouse: "Moscow", BoxDeliveryBase: decimal.RequireFromString("55")}
	require.NoError(t, m.UpsertTariffs(ctx, date, []tariff.Record{r2}))

	got, err := m.GetTariffsByDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "55", got[0].BoxDeliveryBase.String())
}

func TestMemory_FailedUpsertWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	date := tariff.MustParseDate("2024-03-01")

	m.FailNextUpsert(errors.New("boom"))
	err := m.UpsertTariffs(ctx, date, []tariff.Record{{Warehouse: "Kazan"}, {Warehouse: "Moscow"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tariff.ErrUpsertFailed))
	assert.Equal(t, 0, m.Len())

	assert.NoError(t, m.UpsertTariffs(ctx, date, []tariff.Record{{Warehouse: "Kazan"}}))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, m.UpsertCalls())
}

func TestMemory_KeepsBlankWarehouseName(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	date := tariff.MustParseDate("2024-03-01")

	require.NoError(t, m.UpsertTariffs(ctx, date, []tariff.Record{
		{Warehouse: "Kazan"},
		{Warehouse: ""},
		{Warehouse: " Kazan "},
	}))
	assert.Equal(t, 3, m.Len())

	got, err := m.GetTariffsByDate(ctx, date)
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, r := range got {
		names = append(names, r.Warehouse)
	}
	assert.ElementsMatch(t, []string{"Kazan", "", " Kazan "}, names)
}

func TestMemory_AvailableDatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, d := range []string{"2024-03-01", "2024-03-03", "2024-03-02"} {
		require.NoError(t, m.UpsertTariffs(ctx, tariff.MustParseDate(d), []tariff.Record{{Warehouse: "A"}, {Warehouse: "B"}}))
	}

	dates, err := m.GetAvailableDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "2024-03-03", dates[0].String())
	assert.Equal(t, "2024-03-01", dates[2].String())
}

func TestMemory_ListRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveRun(ctx, tariff.Run{ID: "1", Kind: tariff.RunIngest}))
	require.NoError(t, m.SaveRun(ctx, tariff.Run{ID: "2", Kind: tariff.RunExport}))
	require.NoError(t, m.SaveRun(ctx, tariff.Run{ID: "3", Kind: tariff.RunIngest}))

	runs, err := m.ListRuns(ctx, tariff.RunFilter{Kind: tariff.RunIngest})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "3", runs[0].ID)

	runs, err = m.ListRuns(ctx, tariff.RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
