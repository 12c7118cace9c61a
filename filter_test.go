package sheetsync

import (
	"encoding/json"
	"testing"
)

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{
			name:   "empty filter",
			filter: Filter{},
		},
		{
			name: "valid conditions",
			filter: Filter{Exclude: []Condition{
				{Column: "status", Operator: "==", Value: "Junk"},
				{Column: "stage_id", Operator: "in", Value: []interface{}{1, 2}},
				{Column: "score", Operator: "between", Value: []interface{}{0, 10}},
				{Column: "patient_name", Operator: "prefix", Value: "test"},
			}},
		},
		{
			name:    "unknown operator",
			filter:  Filter{Exclude: []Condition{{Column: "status", Operator: "like", Value: "x"}}},
			wantErr: true,
		},
		{
			name:    "in without list",
			filter:  Filter{Exclude: []Condition{{Column: "status", Operator: "in", Value: "x"}}},
			wantErr: true,
		},
		{
			name:    "between with one bound",
			filter:  Filter{Exclude: []Condition{{Column: "score", Operator: "between", Value: []interface{}{1}}}},
			wantErr: true,
		},
		{
			name:    "empty column",
			filter:  Filter{Exclude: []Condition{{Operator: "==", Value: "x"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvalCondition(t *testing.T) {
	rec := NewRecord(
		[]string{"id", "score", "status", "patient_name", "amount", "email"},
		[]interface{}{json.Number("17"), 85, "Won", "TEST Patient", "1200.50", nil},
	)

	tests := []struct {
		name      string
		condition Condition
		want      bool
	}{
		{name: "equal json number to int", condition: Condition{Column: "id", Operator: "==", Value: 17}, want: true},
		{name: "equal string", condition: Condition{Column: "status", Operator: "==", Value: "Won"}, want: true},
		{name: "not equal", condition: Condition{Column: "status", Operator: "!=", Value: "Lost"}, want: true},
		{name: "greater than", condition: Condition{Column: "score", Operator: ">", Value: 80}, want: true},
		{name: "greater or equal", condition: Condition{Column: "score", Operator: ">=", Value: 85}, want: true},
		{name: "less than", condition: Condition{Column: "score", Operator: "<", Value: 85}, want: false},
		{name: "less or equal numeric string", condition: Condition{Column: "amount", Operator: "<=", Value: 1200.5}, want: true},
		{name: "compare non numeric", condition: Condition{Column: "status", Operator: ">", Value: 1}, want: false},
		{name: "in list", condition: Condition{Column: "status", Operator: "in", Value: []interface{}{"Won", "Lost"}}, want: true},
		{name: "not in list", condition: Condition{Column: "status", Operator: "in", Value: []interface{}{"Open"}}, want: false},
		{name: "between", condition: Condition{Column: "score", Operator: "between", Value: []interface{}{80, 90}}, want: true},
		{name: "outside between", condition: Condition{Column: "score", Operator: "between", Value: []interface{}{90, 100}}, want: false},
		{name: "prefix ignores case", condition: Condition{Column: "patient_name", Operator: "prefix", Value: "test"}, want: true},
		{name: "suffix ignores case", condition: Condition{Column: "patient_name", Operator: "suffix", Value: "PATIENT"}, want: true},
		{name: "null equals nil", condition: Condition{Column: "email", Operator: "==", Value: nil}, want: true},
		{name: "missing field equals nil", condition: Condition{Column: "phone", Operator: "==", Value: nil}, want: true},
		{name: "missing field prefix", condition: Condition{Column: "phone", Operator: "prefix", Value: ""}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evalCondition(rec, tt.condition); got != tt.want {
				t.Errorf("evalCondition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Excludes(t *testing.T) {
	f := Filter{Exclude: []Condition{
		{Column: "patient_name", Operator: "prefix", Value: "test"},
		{Column: "status", Operator: "==", Value: "Junk"},
	}}

	tests := []struct {
		name   string
		record *Record
		want   bool
	}{
		{name: "test patient", record: NewRecord([]string{"patient_name"}, []interface{}{"Test user"}), want: true},
		{name: "junk lead", record: NewRecord([]string{"status"}, []interface{}{"Junk"}), want: true},
		{name: "real lead", record: NewRecord([]string{"patient_name", "status"}, []interface{}{"Meera", "Open"}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Excludes(tt.record); got != tt.want {
				t.Errorf("Excludes() = %v, want %v", got, tt.want)
			}
		})
	}
}
