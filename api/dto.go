/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures returned by the API. These types decouple
  the stored records and run history from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Wrappers around lists or cycle outcomes

AMOUNTS:
  Tariff amounts are rendered as JSON numbers. They are stored with two
  decimal places, so the float conversion is exact for display purposes.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/wb-tariffs/scheduler"
	"github.com/warp/wb-tariffs/tariff"
)

// =============================================================================
// TARIFF TYPES
// =============================================================================

// TariffDTO represents one warehouse tariff row.
type TariffDTO struct {
	Date                string  `json:"date"`
	Warehouse           string  `json:"warehouse"`
	BoxDeliveryBase     float64 `json:"box_delivery_base"`
	BoxDeliveryCoefExpr float64 `json:"box_delivery_coef_expr"`
	BoxDeliveryLiter    float64 `json:"box_delivery_liter"`
	BoxStorageBase      float64 `json:"box_storage_base"`
	BoxStorageCoefExpr  float64 `json:"box_storage_coef_expr"`
	BoxStorageLiter     float64 `json:"box_storage_liter"`
	UpdatedAt           string  `json:"updated_at,omitempty"`
}

// TariffsResponse wraps a day's tariffs.
type TariffsResponse struct {
	Date    string      `json:"date"`
	Count   int         `json:"count"`
	Tariffs []TariffDTO `json:"tariffs"`
}

// DatesResponse lists dates with stored tariffs, newest first.
type DatesResponse struct {
	Dates []string `json:"dates"`
}

// =============================================================================
// RUN TYPES
// =============================================================================

// RunDTO represents one recorded cycle.
type RunDTO struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Date          string   `json:"date"`
	Status        string   `json:"status"`
	Rows          int      `json:"rows"`
	Targets       []string `json:"targets,omitempty"`
	FailedTargets []string `json:"failed_targets,omitempty"`
	Error         string   `json:"error,omitempty"`
	StartedAt     string   `json:"started_at"`
	FinishedAt    string   `json:"finished_at,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
}

// RunsResponse wraps the run history.
type RunsResponse struct {
	Runs []RunDTO `json:"runs"`
}

// StatusResponse describes the scheduler.
type StatusResponse struct {
	Today string `json:"today"`
	scheduler.Status
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toTariffDTO(r tariff.Record) TariffDTO {
	dto := TariffDTO{
		Date:                r.Date.String(),
		Warehouse:           r.Warehouse,
		BoxDeliveryBase:     r.BoxDeliveryBase.InexactFloat64(),
		BoxDeliveryCoefExpr: r.BoxDeliveryCoefExpr.InexactFloat64(),
		BoxDeliveryLiter:    r.BoxDeliveryLiter.InexactFloat64(),
		BoxStorageBase:      r.BoxStorageBase.InexactFloat64(),
		BoxStorageCoefExpr:  r.BoxStorageCoefExpr.InexactFloat64(),
		BoxStorageLiter:     r.BoxStorageLiter.InexactFloat64(),
	}
	if !r.UpdatedAt.IsZero() {
		dto.UpdatedAt = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toRunDTO(r tariff.Run) RunDTO {
	dto := RunDTO{
		ID:            r.ID,
		Kind:          string(r.Kind),
		Date:          r.Date.String(),
		Status:        string(r.Status),
		Rows:          r.Rows,
		Targets:       r.Targets,
		FailedTargets: r.FailedTargets,
		Error:         r.Error,
		StartedAt:     r.StartedAt.UTC().Format(time.RFC3339),
		DurationMS:    r.Duration().Milliseconds(),
	}
	if !r.FinishedAt.IsZero() {
		dto.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toCycleDTO(res scheduler.CycleResult) RunDTO {
	return toRunDTO(res.Run())
}
