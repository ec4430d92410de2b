package tariff

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.March, Day: 1}, d)
	assert.Equal(t, "2024-03-01", d.String())

	_, err = ParseDate("01.03.2024")
	assert.True(t, errors.Is(err, ErrInvalidDate))

	_, err = ParseDate("2024-02-30")
	assert.Error(t, err)
}

func TestToday_IgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 1, 23, 55, 0, 0, time.UTC)
	assert.Equal(t, Today(morning, nil), Today(evening, nil))

	// 23:30 UTC is already the next day in Moscow.
	moscow := time.FixedZone("MSK", 3*60*60)
	assert.Equal(t, "2024-03-02", Today(evening, moscow).String())
}

func TestDate_Arithmetic(t *testing.T) {
	d := MustParseDate("2024-02-28")
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.False(t, d.IsZero())
	assert.True(t, Date{}.IsZero())
}

func TestDate_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Date Date `json:"date"`
	}{MustParseDate("2024-03-01")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-01"}`, string(b))

	var out struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-12-31"}`), &out))
	assert.Equal(t, "2025-12-31", out.Date.String())
}

func TestRecord_Normalized(t *testing.T) {
	r := Record{
		Warehouse:        "  Коледино ",
		BoxDeliveryBase:  decimal.RequireFromString("40.555"),
		BoxStorageLiter:  decimal.RequireFromString("0.134"),
		BoxDeliveryLiter: decimal.RequireFromString("11"),
	}
	n := r.Normalized()
	assert.Equal(t, "  Коледино ", n.Warehouse)
	assert.Equal(t, "40.56", n.BoxDeliveryBase.StringFixed(2))
	assert.Equal(t, "0.13", n.BoxStorageLiter.StringFixed(2))
	assert.True(t, n.BoxDeliveryLiter.Equal(decimal.NewFromInt(11)))
}

func TestStamp(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*60*60))
	date := MustParseDate("2024-03-01")

	out := Stamp(date, []Record{{Warehouse: "Moscow", Date: MustParseDate("1999-01-01")}}, now)
	require.Len(t, out, 1)
	assert.Equal(t, date, out[0].Date)
	assert.Equal(t, time.UTC, out[0].UpdatedAt.Location())
	assert.True(t, out[0].UpdatedAt.Equal(now))
}

func TestSortForPresentation(t *testing.T) {
	records := []Record{
		{Warehouse: "C", BoxDeliveryCoefExpr: decimal.NewFromInt(200)},
		{Warehouse: "B", BoxDeliveryCoefExpr: decimal.NewFromInt(100)},
		{Warehouse: "A", BoxDeliveryCoefExpr: decimal.NewFromInt(100)},
		{Warehouse: "D", BoxDeliveryCoefExpr: decimal.RequireFromString("99.5")},
	}
	SortForPresentation(records)

	var names []string
	for _, r := range records {
		names = append(names, r.Warehouse)
	}
	assert.Equal(t, []string{"D", "A", "B", "C"}, names)
}

func TestRecord_SameValues(t *testing.T) {
	a := Record{Date: MustParseDate("2024-03-01"), Warehouse: "Moscow", BoxDeliveryBase: decimal.RequireFromString("40.50")}
	b := a
	b.BoxDeliveryBase = decimal.RequireFromString("40.5")
	b.UpdatedAt = time.Now()
	assert.True(t, a.SameValues(b))

	b.BoxStorageBase = decimal.NewFromInt(1)
	assert.False(t, a.SameValues(b))
}

func TestRunFilter_EffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultRunLimit, RunFilter{}.EffectiveLimit())
	assert.Equal(t, 5, RunFilter{Limit: 5}.EffectiveLimit())
}
