package sheetsync

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one externally sourced entity (a CRM lead, a query row)
type Record struct {
	Fields map[string]interface{} // フィールド名と値のマップ
	Keys   []string               // ソース上のフィールド順
}

// NewRecord creates a record whose key order follows the order of keys
func NewRecord(keys []string, values []interface{}) *Record {
	r := &Record{
		Fields: make(map[string]interface{}, len(keys)),
		Keys:   make([]string, 0, len(keys)),
	}
	for i, k := range keys {
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		r.Set(k, v)
	}
	return r
}

// Set stores a field value, remembering first-seen key order
func (r *Record) Set(field string, value interface{}) {
	if r.Fields == nil {
		r.Fields = make(map[string]interface{})
	}
	if _, ok := r.Fields[field]; !ok {
		r.Keys = append(r.Keys, field)
	}
	r.Fields[field] = value
}

// Has reports whether the field is present with a non-nil value
func (r *Record) Has(field string) bool {
	v, ok := r.Fields[field]
	return ok && v != nil
}

// ID returns the identifier stored in field, coerced to string.
// Returns "" when the field is missing or blank.
func (r *Record) ID(field string) string {
	return strings.TrimSpace(CellValue(r.Fields[field]))
}

// Cell returns the sink representation of a field
func (r *Record) Cell(field string) string {
	return CellValue(r.Fields[field])
}

// CellValue converts a Go value to the text written into a sink cell.
// Nested values are serialized as compact JSON.
func CellValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case []byte:
		return string(val)
	case int:
		return strconv.Itoa(val)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", val)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32:
		return formatFloat(float64(val), 32)
	case float64:
		return formatFloat(val, 64)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		s := string(b)
		// scalars marshal to quoted strings; keep the bare text
		if unq, err := strconv.Unquote(s); err == nil {
			return unq
		}
		return s
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

// GetAsString returns the value as string or defaultValue if not found
func (r *Record) GetAsString(col string, defaultValue string) string {
	v, ok := r.Fields[col]
	if !ok || v == nil {
		return defaultValue
	}
	return CellValue(v)
}

// GetAsInt64 returns the value as int64 or defaultValue if not found
func (r *Record) GetAsInt64(col string, defaultValue int64) int64 {
	v, ok := r.Fields[col]
	if !ok {
		return defaultValue
	}

	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		return int64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// GetAsTime returns the value as time.Time or defaultValue if not found
func (r *Record) GetAsTime(col string, defaultValue time.Time) time.Time {
	v, ok := r.Fields[col]
	if !ok {
		return defaultValue
	}

	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		if t, ok := ParseTime(val); ok {
			return t
		}
	}
	return defaultValue
}

// ParseTime parses the timestamp layouts seen in CRM payloads and sheets
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
