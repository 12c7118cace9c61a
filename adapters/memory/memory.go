// Package memory provides an in-memory Sink that behaves like a sheet tab:
// row 1 is the header, appends land after the last row and deletions shift
// the rows below them up. TableAppend switches appends to the Sheets
// behavior of inserting after the first block of data.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ideamans/go-sheetsync"
)

// Sink implements sheetsync.Sink on a grid of strings
type Sink struct {
	mu    sync.Mutex
	grid  [][]string
	calls map[string]int
	fail  map[string]error

	tableAppend bool
}

// New creates a sink holding header followed by rows. A nil header makes
// an empty sink.
func New(header []string, rows ...[]string) *Sink {
	s := &Sink{
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
	if header != nil {
		s.grid = append(s.grid, append([]string(nil), header...))
	}
	for _, row := range rows {
		s.grid = append(s.grid, append([]string(nil), row...))
	}
	return s
}

// FailOn makes every later call to method return err
func (s *Sink) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

// TableAppend makes AppendRows insert rows right after the first contiguous
// block of non-blank rows, pushing any rows below a blank gap down. This is
// what values.append with INSERT_ROWS does on a sheet with a gap.
func (s *Sink) TableAppend() *Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableAppend = true
	return s
}

// Calls returns how many times method was called
func (s *Sink) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Grid returns a copy of every row including the header
func (s *Sink) Grid() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.grid))
	for i, row := range s.grid {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func (s *Sink) enter(method string) error {
	s.mu.Lock()
	s.calls[method]++
	err := s.fail[method]
	if err != nil {
		s.mu.Unlock()
		return err
	}
	return nil
}

// ReadAll returns the header and all non-empty data rows
func (s *Sink) ReadAll(ctx context.Context) ([]string, []sheetsync.SinkRow, error) {
	if err := s.enter("ReadAll"); err != nil {
		return nil, nil, err
	}
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(s.grid) == 0 {
		return []string{}, []sheetsync.SinkRow{}, nil
	}

	header := append([]string(nil), s.grid[0]...)
	rows := make([]sheetsync.SinkRow, 0, len(s.grid)-1)
	for i := 1; i < len(s.grid); i++ {
		if isBlank(s.grid[i]) {
			continue
		}
		values := make(map[string]string, len(header))
		for j, col := range header {
			if j < len(s.grid[i]) {
				values[col] = s.grid[i][j]
			} else {
				values[col] = ""
			}
		}
		rows = append(rows, sheetsync.SinkRow{Index: i + 1, Values: values})
	}
	return header, rows, nil
}

// AppendRows appends rows at the end of the grid, or after the first table
// when TableAppend is set
func (s *Sink) AppendRows(ctx context.Context, rows [][]interface{}) error {
	if err := s.enter("AppendRows"); err != nil {
		return err
	}
	defer s.mu.Unlock()

	at := len(s.grid)
	if s.tableAppend {
		at = 0
		for at < len(s.grid) && !isBlank(s.grid[at]) {
			at++
		}
	}

	added := make([][]string, 0, len(rows))
	for _, row := range rows {
		added = append(added, toStrings(row))
	}
	tail := append([][]string(nil), s.grid[at:]...)
	s.grid = append(append(s.grid[:at], added...), tail...)
	return nil
}

// BatchUpdate overwrites whole rows
func (s *Sink) BatchUpdate(ctx context.Context, updates []sheetsync.RowValues) error {
	if err := s.enter("BatchUpdate"); err != nil {
		return err
	}
	defer s.mu.Unlock()

	for _, u := range updates {
		if u.Row < 2 {
			return fmt.Errorf("invalid row %d", u.Row)
		}
		for len(s.grid) < u.Row {
			s.grid = append(s.grid, []string{})
		}
		s.grid[u.Row-1] = toStrings(u.Values)
	}
	return nil
}

// DeleteRows removes rows one after another in the order given
func (s *Sink) DeleteRows(ctx context.Context, rows []int) error {
	if err := s.enter("DeleteRows"); err != nil {
		return err
	}
	defer s.mu.Unlock()

	for _, r := range rows {
		if r < 2 || r > len(s.grid) {
			return fmt.Errorf("invalid row %d", r)
		}
		s.grid = append(s.grid[:r-1], s.grid[r:]...)
	}
	return nil
}

// Clear removes everything including the header
func (s *Sink) Clear(ctx context.Context) error {
	if err := s.enter("Clear"); err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.grid = nil
	return nil
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = sheetsync.CellValue(v)
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
