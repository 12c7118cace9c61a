package sheetsync

import "context"

// SinkRow is a row previously written to the sink
type SinkRow struct {
	Index  int               // 行番号 (2から始まる、1行目はヘッダー)
	Values map[string]string // ヘッダー名とセル値のマップ
}

// RowValues holds the full cell values for one sink row
type RowValues struct {
	Row    int
	Values []interface{}
}

// Sink interface defines the tabular store the reconciler writes to
type Sink interface {
	// ReadAll returns the header row and every data row. An empty sink
	// returns an empty header and no rows.
	ReadAll(ctx context.Context) ([]string, []SinkRow, error)

	// AppendRows writes rows below the existing data in one call. Row
	// indices read before the call may shift, so it runs after updates and
	// deletes.
	AppendRows(ctx context.Context, rows [][]interface{}) error

	// BatchUpdate overwrites whole rows in one call
	BatchUpdate(ctx context.Context, updates []RowValues) error

	// DeleteRows removes the given row indices in one call. Indices are
	// passed in descending order.
	DeleteRows(ctx context.Context, rows []int) error

	// Clear removes all values including the header
	Clear(ctx context.Context) error
}
