package googlesheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ideamans/go-sheetsync"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Sink implements sheetsync.Sink on one tab of a Google spreadsheet
type Sink struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	sheetID       *int64
}

// NewSink creates a Google Sheets sink with provided options
func NewSink(ctx context.Context, config Config, opts ...option.ClientOption) (*Sink, error) {
	if config.SpreadsheetID == "" {
		return nil, fmt.Errorf("%w: spreadsheet id", sheetsync.ErrMissingConfig)
	}
	if config.SheetName == "" {
		config.SheetName = DefaultSheetName
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Sink{
		service:       service,
		spreadsheetID: config.SpreadsheetID,
		sheetName:     config.SheetName,
	}, nil
}

// SheetName returns the tab this sink writes to
func (s *Sink) SheetName() string {
	return s.sheetName
}

// ReadAll retrieves the header and every non-empty data row of the tab
func (s *Sink) ReadAll(ctx context.Context) ([]string, []sheetsync.SinkRow, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.a1(readColumns)).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sheet data: %w", err)
	}

	if len(resp.Values) == 0 {
		return []string{}, []sheetsync.SinkRow{}, nil
	}

	// First row is the header. Trailing blank cells are not columns.
	header := make([]string, 0, len(resp.Values[0]))
	for _, cell := range resp.Values[0] {
		header = append(header, strings.TrimSpace(cellText(cell)))
	}
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}

	rows := make([]sheetsync.SinkRow, 0, len(resp.Values)-1)
	for i := 1; i < len(resp.Values); i++ {
		row := resp.Values[i]
		if isBlankRow(row) {
			continue
		}

		values := make(map[string]string, len(header))
		for j, col := range header {
			if col == "" {
				continue
			}
			if j < len(row) {
				values[col] = cellText(row[j])
			} else {
				values[col] = ""
			}
		}
		// row 1 is header, so data starts at row 2
		rows = append(rows, sheetsync.SinkRow{Index: i + 1, Values: values})
	}

	return header, rows, nil
}

// AppendRows appends rows in one request. Sheets inserts them after the first
// table, which ends at the first blank row.
func (s *Sink) AppendRows(ctx context.Context, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	vr := &sheets.ValueRange{Values: rows}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.a1("A1"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}
	return nil
}

// BatchUpdate overwrites whole rows in one request
func (s *Sink) BatchUpdate(ctx context.Context, updates []sheetsync.RowValues) error {
	if len(updates) == 0 {
		return nil
	}

	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		if u.Row < 2 {
			return fmt.Errorf("invalid row %d: data rows start at 2", u.Row)
		}
		data = append(data, &sheets.ValueRange{
			Range:  s.a1(fmt.Sprintf("A%d", u.Row)),
			Values: [][]interface{}{u.Values},
		})
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	_, err := s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update rows: %w", err)
	}
	return nil
}

// DeleteRows removes rows with one batchUpdate. The requests run in the
// order given, so rows must be in descending order.
func (s *Sink) DeleteRows(ctx context.Context, rows []int) error {
	if len(rows) == 0 {
		return nil
	}

	sheetID, err := s.resolveSheetID(ctx)
	if err != nil {
		return err
	}

	requests := make([]*sheets.Request, 0, len(rows))
	for _, row := range rows {
		if row < 2 {
			return fmt.Errorf("invalid row %d: the header row cannot be deleted", row)
		}
		requests = append(requests, &sheets.Request{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
					// SheetId 0 is a valid tab id
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete rows: %w", err)
	}
	return nil
}

// Clear removes every value of the tab including the header
func (s *Sink) Clear(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.a1(readColumns), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}
	return nil
}

// EnsureSheet creates the tab when the spreadsheet does not have it yet.
// Returns true when the tab was created.
func (s *Sink) EnsureSheet(ctx context.Context) (bool, error) {
	if _, err := s.resolveSheetID(ctx); err == nil {
		return false, nil
	} else if !isSheetMissing(err) {
		return false, err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: s.sheetName,
					GridProperties: &sheets.GridProperties{
						RowCount:    1000,
						ColumnCount: 50,
					},
				},
			},
		}},
	}
	resp, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to create sheet %q: %w", s.sheetName, err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id := resp.Replies[0].AddSheet.Properties.SheetId
		s.sheetID = &id
	}
	return true, nil
}

type sheetMissingError struct {
	name string
}

func (e *sheetMissingError) Error() string {
	return fmt.Sprintf("sheet %q not found", e.name)
}

func isSheetMissing(err error) bool {
	var missing *sheetMissingError
	return errors.As(err, &missing)
}

// resolveSheetID looks up the numeric id of the tab by title
func (s *Sink) resolveSheetID(ctx context.Context) (int64, error) {
	if s.sheetID != nil {
		return *s.sheetID, nil
	}

	ss, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.sheetName {
			id := sh.Properties.SheetId
			s.sheetID = &id
			return id, nil
		}
	}
	return 0, &sheetMissingError{name: s.sheetName}
}

// a1 builds an A1 range on this tab, quoting the tab name when needed
func (s *Sink) a1(ref string) string {
	return quoteSheetName(s.sheetName) + "!" + ref
}

func quoteSheetName(name string) string {
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

// cellText converts an unformatted Google Sheets cell value to its text
func cellText(v interface{}) string {
	return sheetsync.CellValue(v)
}

func isBlankRow(row []interface{}) bool {
	for _, cell := range row {
		if strings.TrimSpace(cellText(cell)) != "" {
			return false
		}
	}
	return true
}
