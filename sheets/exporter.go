/*
Package sheets mirrors a day's tariffs into Google spreadsheets.

PURPOSE:
  Each export replaces the contents of the "stocks_coefs" sheet of one
  spreadsheet with a header row plus one row per tariff record, then
  applies header formatting.

CRITICAL VS BEST-EFFORT:
  Clearing the range and writing the values are the export; their errors
  are returned. Formatting runs afterwards and only logs on failure.

AUTH:
  A service-account JWT (email + PEM private key) with the spreadsheets
  scope. The Google API surface sits behind sheetsAPI so tests can swap in
  a fake.

SEE ALSO:
  - format.go: header formatting requests
  - scheduler/orchestrator.go: calls Export once per target
*/
package sheets

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/warp/wb-tariffs/logging"
	"github.com/warp/wb-tariffs/tariff"
)

const (
	// SheetTitle is the sheet (tab) every export writes to.
	SheetTitle = "stocks_coefs"

	clearRange  = SheetTitle + "!A:H"
	updateRange = SheetTitle + "!A1"

	tokenURL = "https://oauth2.googleapis.com/token"
)

// Header is the first row of every export.
var Header = []string{
	"Дата",
	"Склад",
	"Доставка база",
	"Доставка коэф",
	"Доставка литр",
	"Хранение база",
	"Хранение коэф",
	"Хранение литр",
}

// ErrMissingCredentials is returned by New when email or key is empty.
var ErrMissingCredentials = errors.New("sheets: service account email and private key are required")

// Credentials identify a Google service account.
type Credentials struct {
	Email      string
	PrivateKey string
}

// sheetsAPI is the subset of the Sheets API the exporter uses.
type sheetsAPI interface {
	ClearValues(ctx context.Context, spreadsheetID, rng string) error
	UpdateValues(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
	SheetID(ctx context.Context, spreadsheetID, title string) (int64, bool, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []*gsheets.Request) error
	Create(ctx context.Context, title, sheetTitle string) (string, error)
}

// Exporter writes tariff records to spreadsheets.
type Exporter struct {
	api sheetsAPI
	log zerolog.Logger
}

// New authenticates with a service account and returns an Exporter.
func New(ctx context.Context, creds Credentials) (*Exporter, error) {
	if creds.Email == "" || creds.PrivateKey == "" {
		return nil, ErrMissingCredentials
	}

	conf := &jwt.Config{
		Email:      creds.Email,
		PrivateKey: []byte(creds.PrivateKey),
		Scopes:     []string{gsheets.SpreadsheetsScope},
		TokenURL:   tokenURL,
	}

	svc, err := gsheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return newExporter(&googleAPI{svc: svc}), nil
}

func newExporter(api sheetsAPI) *Exporter {
	return &Exporter{api: api, log: logging.WithComponent("sheets")}
}

// Export replaces the tariff sheet of spreadsheetID with records.
func (e *Exporter) Export(ctx context.Context, spreadsheetID string, date tariff.Date, records []tariff.Record) error {
	if err := e.api.ClearValues(ctx, spreadsheetID, clearRange); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	if err := e.api.UpdateValues(ctx, spreadsheetID, updateRange, Rows(records)); err != nil {
		return fmt.Errorf("update %s: %w", updateRange, err)
	}

	e.ApplyFormatting(ctx, spreadsheetID)

	e.log.Info().Str("spreadsheet_id", spreadsheetID).Str("date", date.String()).
		Int("rows", len(records)).Msg("Spreadsheet updated")
	return nil
}

// CreateSpreadsheet creates a new document containing the tariff sheet and
// returns its ID.
func (e *Exporter) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	id, err := e.api.Create(ctx, title, SheetTitle)
	if err != nil {
		return "", fmt.Errorf("create spreadsheet %q: %w", title, err)
	}
	e.log.Info().Str("spreadsheet_id", id).Str("title", title).Msg("Spreadsheet created")
	return id, nil
}

// Rows renders the header plus one row per record. Amounts are written as
// numbers so the sheet can sort and sum them.
func Rows(records []tariff.Record) [][]interface{} {
	rows := make([][]interface{}, 0, len(records)+1)

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	rows = append(rows, header)

	for _, r := range records {
		row := []interface{}{r.Date.String(), r.Warehouse}
		for _, a := range r.Amounts() {
			row = append(row, a.InexactFloat64())
		}
		rows = append(rows, row)
	}
	return rows
}
