package sheets

import (
	"context"

	gsheets "google.golang.org/api/sheets/v4"
)

// ApplyFormatting styles the header row and resizes the tariff columns.
// Failures are logged and never returned.
func (e *Exporter) ApplyFormatting(ctx context.Context, spreadsheetID string) {
	sheetID, found, err := e.api.SheetID(ctx, spreadsheetID, SheetTitle)
	if err != nil {
		e.log.Warn().Err(err).Str("spreadsheet_id", spreadsheetID).Msg("Could not resolve sheet id, using 0")
	} else if !found {
		e.log.Warn().Str("spreadsheet_id", spreadsheetID).Str("sheet", SheetTitle).Msg("Sheet not found, using id 0")
	}

	if err := e.api.BatchUpdate(ctx, spreadsheetID, formatRequests(sheetID)); err != nil {
		e.log.Warn().Err(err).Str("spreadsheet_id", spreadsheetID).Msg("Failed to apply formatting")
	}
}

func formatRequests(sheetID int64) []*gsheets.Request {
	return []*gsheets.Request{
		{
			RepeatCell: &gsheets.RepeatCellRequest{
				Range: &gsheets.GridRange{
					SheetId:         sheetID,
					StartRowIndex:   0,
					EndRowIndex:     1,
					ForceSendFields: []string{"SheetId", "StartRowIndex"},
				},
				Cell: &gsheets.CellData{
					UserEnteredFormat: &gsheets.CellFormat{
						BackgroundColor: &gsheets.Color{Red: 0.2, Green: 0.2, Blue: 0.2},
						TextFormat: &gsheets.TextFormat{
							ForegroundColor: &gsheets.Color{Red: 1, Green: 1, Blue: 1},
							Bold:            true,
						},
						HorizontalAlignment: "CENTER",
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
		{
			AutoResizeDimensions: &gsheets.AutoResizeDimensionsRequest{
				Dimensions: &gsheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "COLUMNS",
					StartIndex:      0,
					EndIndex:        int64(len(Header)),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		},
	}
}
