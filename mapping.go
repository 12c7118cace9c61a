package sheetsync

import "strings"

// Mapping declares where a sink column takes its value from. Sources are
// candidate record fields tried in order; the first present one wins.
type Mapping struct {
	Column  string   `mapstructure:"column" yaml:"column"`
	Sources []string `mapstructure:"sources" yaml:"sources"`
}

// FieldMap resolves sink columns against records
type FieldMap struct {
	candidates map[string][]string
}

// NewFieldMap builds a FieldMap. Columns without a mapping read the record
// field of the same name.
func NewFieldMap(mappings []Mapping) *FieldMap {
	fm := &FieldMap{candidates: make(map[string][]string, len(mappings))}
	for _, m := range mappings {
		if m.Column == "" {
			continue
		}
		fm.candidates[m.Column] = append([]string(nil), m.Sources...)
	}
	return fm
}

// Resolve returns the value for column from record, or nil if no candidate
// field is present
func (fm *FieldMap) Resolve(record *Record, column string) interface{} {
	sources, ok := fm.candidates[column]
	if !ok || len(sources) == 0 {
		return record.Fields[column]
	}
	for _, src := range sources {
		if v, ok := record.Fields[src]; ok && v != nil && CellValue(v) != "" {
			return v
		}
	}
	return nil
}

// ID resolves the id column of record as trimmed cell text
func (fm *FieldMap) ID(record *Record, column string) string {
	return strings.TrimSpace(CellValue(fm.Resolve(record, column)))
}

// Row renders record as cell values in header order
func (fm *FieldMap) Row(record *Record, header []string) []interface{} {
	row := make([]interface{}, len(header))
	for i, col := range header {
		row[i] = CellValue(fm.Resolve(record, col))
	}
	return row
}

// Cells renders record as column -> cell text for the given header
func (fm *FieldMap) Cells(record *Record, header []string) map[string]string {
	cells := make(map[string]string, len(header))
	for _, col := range header {
		cells[col] = CellValue(fm.Resolve(record, col))
	}
	return cells
}

// DeriveHeader builds a header from a record's key order, dropping excluded
// fields. Mapped columns come first, in declaration order.
func DeriveHeader(record *Record, mappings []Mapping, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	header := make([]string, 0, len(record.Keys)+len(mappings))
	seen := make(map[string]bool)
	consumed := make(map[string]bool)
	for _, m := range mappings {
		if m.Column == "" || skip[m.Column] || seen[m.Column] {
			continue
		}
		header = append(header, m.Column)
		seen[m.Column] = true
		for _, src := range m.Sources {
			consumed[src] = true
		}
	}
	for _, k := range record.Keys {
		if skip[k] || seen[k] || consumed[k] {
			continue
		}
		header = append(header, k)
		seen[k] = true
	}
	return header
}
