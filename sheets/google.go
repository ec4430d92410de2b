package sheets

import (
	"context"

	gsheets "google.golang.org/api/sheets/v4"
)

// googleAPI adapts *sheets.Service to sheetsAPI.
type googleAPI struct {
	svc *gsheets.Service
}

func (g *googleAPI) ClearValues(ctx context.Context, spreadsheetID, rng string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheets.ClearValuesRequest{}).
		Context(ctx).Do()
	return err
}

func (g *googleAPI) UpdateValues(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return err
}

func (g *googleAPI) SheetID(ctx context.Context, spreadsheetID, title string) (int64, bool, error) {
	doc, err := g.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, err
	}
	for _, s := range doc.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return s.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

func (g *googleAPI) BatchUpdate(ctx context.Context, spreadsheetID string, requests []*gsheets.Request) error {
	_, err := g.svc.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).Do()
	return err
}

func (g *googleAPI) Create(ctx context.Context, title, sheetTitle string) (string, error) {
	doc, err := g.svc.Spreadsheets.Create(&gsheets.Spreadsheet{
		Properties: &gsheets.SpreadsheetProperties{Title: title},
		Sheets: []*gsheets.Sheet{
			{Properties: &gsheets.SheetProperties{Title: sheetTitle}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return doc.SpreadsheetId, nil
}
