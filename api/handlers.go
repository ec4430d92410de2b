/*
handlers.go - HTTP API handlers for the tariff sync service

PURPOSE:
  Exposes stored tariffs, the run history and the scheduler over REST,
  and lets an operator trigger a cycle by hand. Handlers only read the
  store; every write goes through the orchestrator's cycles so the
  single-flight guards stay authoritative.

ENDPOINTS:
  Health:
    GET    /healthz                    Liveness probe

  Tariffs:
    GET    /api/tariffs?date=          Tariffs for a day (default today)
    GET    /api/tariffs/dates          Dates with stored tariffs

  Runs:
    GET    /api/runs?kind=&limit=      Recent cycle runs
    GET    /api/status                 Next scheduled cycles

  Admin:
    POST   /api/admin/ingest           Run one ingestion cycle now
    POST   /api/admin/export           Run one export cycle now

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with HTTP status:
  - 400: Invalid date, kind or limit
  - 409: A cycle of the same kind is already running
  - 500: Store errors
  - 502: The cycle ran and failed (details carry the run record)

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/warp/wb-tariffs/logging"
	"github.com/warp/wb-tariffs/scheduler"
	"github.com/warp/wb-tariffs/tariff"
)

// maxRunLimit caps ?limit= on /api/runs.
const maxRunLimit = 500

// Cycles is the orchestrator surface the API drives.
type Cycles interface {
	RunIngestionCycle(ctx context.Context) scheduler.CycleResult
	RunExportCycle(ctx context.Context) scheduler.CycleResult
	Status() scheduler.Status
	Today() tariff.Date
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  tariff.Store
	Runs   tariff.RunStore
	Cycles Cycles
}

// NewHandler creates a handler. runs may be nil when run history is not kept.
func NewHandler(store tariff.Store, runs tariff.RunStore, cycles Cycles) *Handler {
	return &Handler{Store: store, Runs: runs, Cycles: cycles}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// TARIFF HANDLERS
// =============================================================================

// GetTariffs returns the tariffs for ?date= (default today).
func (h *Handler) GetTariffs(w http.ResponseWriter, r *http.Request) {
	date := h.Cycles.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := tariff.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		date = d
	}

	records, err := h.Store.GetTariffsByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tariffs", err)
		return
	}

	dtos := make([]TariffDTO, len(records))
	for i, rec := range records {
		dtos[i] = toTariffDTO(rec)
	}

	writeJSON(w, http.StatusOK, TariffsResponse{
		Date:    date.String(),
		Count:   len(dtos),
		Tariffs: dtos,
	})
}

// ListDates returns the dates that have stored tariffs, newest first.
func (h *Handler) ListDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.Store.GetAvailableDates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list dates", err)
		return
	}

	resp := DatesResponse{Dates: make([]string, len(dates))}
	for i, d := range dates {
		resp.Dates[i] = d.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns recent cycle runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, RunsResponse{Runs: []RunDTO{}})
		return
	}

	filter, err := parseRunFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run filter", err)
		return
	}

	runs, err := h.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	resp := RunsResponse{Runs: make([]RunDTO, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseRunFilter(r *http.Request) (tariff.RunFilter, error) {
	var filter tariff.RunFilter
	q := r.URL.Query()

	switch kind := tariff.RunKind(q.Get("kind")); kind {
	case "", tariff.RunIngest, tariff.RunExport:
		filter.Kind = kind
	default:
		return filter, fmt.Errorf("kind must be %q or %q", tariff.RunIngest, tariff.RunExport)
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = min(n, maxRunLimit)
	}
	return filter, nil
}

// GetStatus returns the scheduler state.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Today:  h.Cycles.Today().String(),
		Status: h.Cycles.Status(),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerIngest runs one ingestion cycle and returns its run record.
func (h *Handler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	logging.Info().Str("component", "api").Msg("Manual ingestion requested")
	writeCycle(w, h.Cycles.RunIngestionCycle(r.Context()))
}

// TriggerExport runs one export cycle and returns its run record.
func (h *Handler) TriggerExport(w http.ResponseWriter, r *http.Request) {
	logging.Info().Str("component", "api").Msg("Manual export requested")
	writeCycle(w, h.Cycles.RunExportCycle(r.Context()))
}

func writeCycle(w http.ResponseWriter, res scheduler.CycleResult) {
	dto := toCycleDTO(res)
	switch res.Status {
	case tariff.RunSkipped:
		writeError(w, http.StatusConflict, "A cycle of this kind is already running", dto)
	case tariff.RunFailed:
		writeError(w, http.StatusBadGateway, "Cycle failed", dto)
	default:
		writeJSON(w, http.StatusOK, dto)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes an ErrorResponse. details may be an error or any
// JSON-encodable value.
func writeError(w http.ResponseWriter, status int, message string, details any) {
	resp := ErrorResponse{Error: message}
	switch d := details.(type) {
	case nil:
	case error:
		resp.Details = d.Error()
	default:
		resp.Details = d
	}
	writeJSON(w, status, resp)
}
