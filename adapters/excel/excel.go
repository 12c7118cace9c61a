package excel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ideamans/go-sheetsync"
	"github.com/xuri/excelize/v2"
)

// Sink implements the sheetsync.Sink interface on one sheet of an .xlsx file
type Sink struct {
	config *Config
	mu     sync.RWMutex
}

// New creates a new Excel sink with the given configuration
func New(config *Config) (*Sink, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create a copy of config to avoid external modifications
	configCopy := *config

	return &Sink{
		config: &configCopy,
	}, nil
}

// ReadAll returns the header and every non-empty data row
func (s *Sink) ReadAll(ctx context.Context) ([]string, []sheetsync.SinkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Check if context is cancelled
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	f, err := excelize.OpenFile(s.config.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return empty data
			return []string{}, []sheetsync.SinkRow{}, nil
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
	}
	defer f.Close()

	rows, err := s.rows(f)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return []string{}, []sheetsync.SinkRow{}, nil
	}

	header := make([]string, 0, len(rows[0]))
	for _, col := range rows[0] {
		header = append(header, strings.TrimSpace(col))
	}
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}

	result := make([]sheetsync.SinkRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue // Skip empty rows
		}

		values := make(map[string]string, len(header))
		for j, col := range header {
			if col == "" {
				continue
			}
			if j < len(row) {
				values[col] = row[j]
			} else {
				values[col] = ""
			}
		}
		// Row number (1-based, data starts from row 2)
		result = append(result, sheetsync.SinkRow{Index: i + 1, Values: values})
	}

	return header, result, nil
}

// AppendRows writes rows after the last non-empty row
func (s *Sink) AppendRows(ctx context.Context, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	return s.update(ctx, func(f *excelize.File) error {
		existing, err := s.rows(f)
		if err != nil {
			return err
		}
		last := len(existing)
		for last > 0 && isBlank(existing[last-1]) {
			last--
		}

		for i, row := range rows {
			values := toCells(row)
			cell := cellName(1, last+i+1)
			if err := f.SetSheetRow(s.config.SheetName, cell, &values); err != nil {
				return fmt.Errorf("failed to write row %d: %w", last+i+1, err)
			}
		}
		return nil
	})
}

// BatchUpdate overwrites whole rows, blanking cells past the new width
func (s *Sink) BatchUpdate(ctx context.Context, updates []sheetsync.RowValues) error {
	if len(updates) == 0 {
		return nil
	}
	return s.update(ctx, func(f *excelize.File) error {
		existing, err := s.rows(f)
		if err != nil {
			return err
		}

		for _, u := range updates {
			if u.Row < 2 {
				return fmt.Errorf("invalid row %d: data rows start at 2", u.Row)
			}
			values := toCells(u.Values)
			if u.Row <= len(existing) {
				for len(values) < len(existing[u.Row-1]) {
					values = append(values, "")
				}
			}
			cell := cellName(1, u.Row)
			if err := f.SetSheetRow(s.config.SheetName, cell, &values); err != nil {
				return fmt.Errorf("failed to write row %d: %w", u.Row, err)
			}
		}
		return nil
	})
}

// DeleteRows removes rows one by one in the order given
func (s *Sink) DeleteRows(ctx context.Context, rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	return s.update(ctx, func(f *excelize.File) error {
		for _, row := range rows {
			if row < 2 {
				return fmt.Errorf("invalid row %d: the header row cannot be deleted", row)
			}
			if err := f.RemoveRow(s.config.SheetName, row); err != nil {
				return fmt.Errorf("failed to delete row %d: %w", row, err)
			}
		}
		return nil
	})
}

// Clear removes every row including the header
func (s *Sink) Clear(ctx context.Context) error {
	return s.update(ctx, func(f *excelize.File) error {
		existing, err := s.rows(f)
		if err != nil {
			return err
		}
		for row := len(existing); row >= 1; row-- {
			if err := f.RemoveRow(s.config.SheetName, row); err != nil {
				return fmt.Errorf("failed to clear row %d: %w", row, err)
			}
		}
		return nil
	})
}

// update opens or creates the workbook and sheet, applies fn and saves
func (s *Sink) update(ctx context.Context, fn func(f *excelize.File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check if context is cancelled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(s.config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var f *excelize.File
	if _, err := os.Stat(s.config.FilePath); err == nil {
		f, err = excelize.OpenFile(s.config.FilePath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
		}
	} else {
		f = excelize.NewFile()
	}
	defer f.Close()

	sheetIndex, err := f.GetSheetIndex(s.config.SheetName)
	if err != nil {
		return fmt.Errorf("failed to get sheet index: %w", err)
	}
	if sheetIndex == -1 {
		index, err := f.NewSheet(s.config.SheetName)
		if err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
		f.SetActiveSheet(index)

		// a fresh workbook carries a default sheet we don't want
		if defaultSheet := f.GetSheetName(0); defaultSheet != s.config.SheetName && f.SheetCount > 1 {
			if rows, _ := f.GetRows(defaultSheet); len(rows) == 0 {
				_ = f.DeleteSheet(defaultSheet)
			}
		}
	}

	if err := fn(f); err != nil {
		return err
	}

	if err := f.SaveAs(s.config.FilePath); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

func (s *Sink) rows(f *excelize.File) ([][]string, error) {
	sheetIndex, err := f.GetSheetIndex(s.config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get sheet index: %w", err)
	}
	if sheetIndex == -1 {
		// Sheet doesn't exist, treat as empty
		return nil, nil
	}
	rows, err := f.GetRows(s.config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func toCells(row []interface{}) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = sheetsync.CellValue(v)
	}
	return cells
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func cellName(col, row int) string {
	return fmt.Sprintf("%s%d", columnName(col), row)
}

// columnName converts a column number to Excel column name (1 -> A, 26 -> Z, 27 -> AA)
func columnName(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
