package sheetsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Condition represents a single record condition
type Condition struct {
	Column   string      `mapstructure:"column" yaml:"column"`     // フィールド名
	Operator string      `mapstructure:"operator" yaml:"operator"` // 演算子: ==, !=, >, >=, <, <=, in, between, prefix, suffix
	Value    interface{} `mapstructure:"value" yaml:"value"`       // 比較値（inの場合はリスト, betweenの場合は2要素）
}

// Filter drops incoming records before reconciliation. A record matching
// any Exclude condition is treated as absent from the source.
type Filter struct {
	Exclude []Condition `mapstructure:"exclude" yaml:"exclude"`
}

var validOperators = []string{"==", "!=", ">", ">=", "<", "<=", "in", "between", "prefix", "suffix"}

// Validate validates filter conditions
func (f Filter) Validate() error {
	for i, cond := range f.Exclude {
		valid := false
		for _, op := range validOperators {
			if cond.Operator == op {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid operator '%s' in condition %d", cond.Operator, i)
		}

		if cond.Operator == "in" {
			if _, ok := cond.Value.([]interface{}); !ok {
				return fmt.Errorf("operator 'in' requires a list value in condition %d", i)
			}
		}

		if cond.Operator == "between" {
			if _, _, ok := bounds(cond.Value); !ok {
				return fmt.Errorf("operator 'between' requires a 2 element list in condition %d", i)
			}
		}

		if cond.Column == "" {
			return fmt.Errorf("empty column name in condition %d", i)
		}
	}
	return nil
}

// Excludes reports whether record matches any exclusion condition
func (f Filter) Excludes(record *Record) bool {
	for _, cond := range f.Exclude {
		if evalCondition(record, cond) {
			return true
		}
	}
	return false
}

// evalCondition evaluates a single condition against a record
func evalCondition(record *Record, condition Condition) bool {
	value, exists := record.Fields[condition.Column]
	if !exists {
		// フィールドが存在しない場合、nullとして扱う
		value = nil
	}

	switch condition.Operator {
	case "==":
		return compareEqual(value, condition.Value)
	case "!=":
		return !compareEqual(value, condition.Value)
	case ">":
		a, b, ok := numericPair(value, condition.Value)
		return ok && a > b
	case ">=":
		a, b, ok := numericPair(value, condition.Value)
		return ok && a >= b
	case "<":
		a, b, ok := numericPair(value, condition.Value)
		return ok && a < b
	case "<=":
		a, b, ok := numericPair(value, condition.Value)
		return ok && a <= b
	case "in":
		return compareIn(value, condition.Value)
	case "between":
		return compareBetween(value, condition.Value)
	case "prefix":
		return value != nil && strings.HasPrefix(strings.ToLower(CellValue(value)), strings.ToLower(CellValue(condition.Value)))
	case "suffix":
		return value != nil && strings.HasSuffix(strings.ToLower(CellValue(value)), strings.ToLower(CellValue(condition.Value)))
	default:
		return false
	}
}

// compareEqual compares two values for equality
func compareEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	// 数値の比較は型変換を考慮
	if af, bf, ok := numericPair(a, b); ok {
		return af == bf
	}

	return CellValue(a) == CellValue(b)
}

// compareIn checks if a is in the list b
func compareIn(a, b interface{}) bool {
	list, ok := b.([]interface{})
	if !ok {
		return false
	}

	for _, item := range list {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

// compareBetween checks if a is between the two bounds in b
func compareBetween(a, b interface{}) bool {
	min, max, ok := bounds(b)
	if !ok {
		return false
	}

	av, ok := toFloat64(a)
	if !ok {
		return false
	}
	minVal, ok1 := toFloat64(min)
	maxVal, ok2 := toFloat64(max)
	if !ok1 || !ok2 {
		return false
	}
	return av >= minVal && av <= maxVal
}

func bounds(v interface{}) (interface{}, interface{}, bool) {
	switch val := v.(type) {
	case [2]interface{}:
		return val[0], val[1], true
	case []interface{}:
		if len(val) == 2 {
			return val[0], val[1], true
		}
	}
	return nil, nil, false
}

func numericPair(a, b interface{}) (float64, float64, bool) {
	af, ok := toFloat64(a)
	if !ok {
		return 0, 0, false
	}
	bf, ok := toFloat64(b)
	if !ok {
		return 0, 0, false
	}
	return af, bf, true
}

// toFloat64 converts a numeric value, json.Number or numeric string to float64
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
