/*
types.go - Core domain types for box tariff persistence

PURPOSE:
  Defines the tariff record shape shared by the source client, the stores,
  the exporter and the orchestrator. A Record is one warehouse's box
  delivery/storage pricing for one calendar day.

IDENTITY:
  (Date, Warehouse) is the key. A later write for the same key replaces all
  non-key fields and refreshes UpdatedAt. Records are never deleted.

AMOUNTS:
  The six tariff amounts use shopspring/decimal. Stored precision is two
  decimal places (numeric(10,2) in the schema), applied by Normalized().

SEE ALSO:
  - date.go: Date type
  - store.go: persistence interfaces
  - run.go: cycle run records
*/
package tariff

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places persisted for tariff amounts.
const AmountScale = 2

// Record is a single warehouse's box tariffs for one day.
type Record struct {
	Date      Date
	Warehouse string

	BoxDeliveryBase     decimal.Decimal
	BoxDeliveryCoefExpr decimal.Decimal
	BoxDeliveryLiter    decimal.Decimal
	BoxStorageBase      decimal.Decimal
	BoxStorageCoefExpr  decimal.Decimal
	BoxStorageLiter     decimal.Decimal

	UpdatedAt time.Time
}

// Normalized returns a copy with every amount rounded to AmountScale places.
// The warehouse name is kept as received.
func (r Record) Normalized() Record {
	r.BoxDeliveryBase = r.BoxDeliveryBase.Round(AmountScale)
	r.BoxDeliveryCoefExpr = r.BoxDeliveryCoefExpr.Round(AmountScale)
	r.BoxDeliveryLiter = r.BoxDeliveryLiter.Round(AmountScale)
	r.BoxStorageBase = r.BoxStorageBase.Round(AmountScale)
	r.BoxStorageCoefExpr = r.BoxStorageCoefExpr.Round(AmountScale)
	r.BoxStorageLiter = r.BoxStorageLiter.Round(AmountScale)
	return r
}

// Amounts returns the six tariff amounts in column order.
func (r Record) Amounts() [6]decimal.Decimal {
	return [6]decimal.Decimal{
		r.BoxDeliveryBase,
		r.BoxDeliveryCoefExpr,
		r.BoxDeliveryLiter,
		r.BoxStorageBase,
		r.BoxStorageCoefExpr,
		r.BoxStorageLiter,
	}
}

// SameValues reports whether two records carry equal key and amounts.
// UpdatedAt is ignored.
func (r Record) SameValues(other Record) bool {
	if r.Date != other.Date || r.Warehouse != other.Warehouse {
		return false
	}
	a, b := r.Amounts(), other.Amounts()
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Stamp assigns date and write time to every record and normalizes it.
// Stores call this before writing so all backends persist identical values.
func Stamp(date Date, records []Record, now time.Time) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r = r.Normalized()
		r.Date = date
		r.UpdatedAt = now.UTC()
		out[i] = r
	}
	return out
}
