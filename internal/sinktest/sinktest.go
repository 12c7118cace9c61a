// Package sinktest holds the contract every sheetsync.Sink must honour.
// Adapters run it from their own tests against a fresh, writable tab.
package sinktest

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/ideamans/go-sheetsync"
)

// Case is one sink under test
type Case struct {
	Name        string
	Sink        sheetsync.Sink
	Description string
}

// Run executes every contract check against the sink. The sink is cleared
// before each check.
func Run(t *testing.T, sink sheetsync.Sink) {
	t.Helper()

	t.Run("BasicWrites", func(t *testing.T) {
		testBasicWrites(t, sink)
	})

	t.Run("DataTypes", func(t *testing.T) {
		testDataTypes(t, sink)
	})

	t.Run("Reconcile", func(t *testing.T) {
		testReconcile(t, sink)
	})

	t.Run("LargeDataSet", func(t *testing.T) {
		testLargeDataSet(t, sink)
	})
}

func reset(t *testing.T, sink sheetsync.Sink) {
	t.Helper()
	if err := sink.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	header, rows, err := sink.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() after Clear() error = %v", err)
	}
	if len(header) != 0 || len(rows) != 0 {
		t.Fatalf("sink not empty after Clear(): header=%v rows=%d", header, len(rows))
	}
}

func ids(rows []sheetsync.SinkRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Values["id"])
	}
	return out
}

// testBasicWrites checks append, update and delete on row indices
func testBasicWrites(t *testing.T, sink sheetsync.Sink) {
	ctx := context.Background()
	reset(t, sink)

	err := sink.AppendRows(ctx, [][]interface{}{
		{"id", "name", "email"},
		{"1", "Asha", "asha@example.com"},
		{"2", "Ravi", "ravi@example.com"},
		{"3", "Meena", ""},
		{"4", "Kiran", "kiran@example.com"},
	})
	if err != nil {
		t.Fatalf("AppendRows() error = %v", err)
	}

	header, rows, err := sink.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !reflect.DeepEqual(header, []string{"id", "name", "email"}) {
		t.Errorf("header = %v", header)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	for i, r := range rows {
		if r.Index != i+2 {
			t.Errorf("rows[%d].Index = %d, want %d", i, r.Index, i+2)
		}
	}

	err = sink.BatchUpdate(ctx, []sheetsync.RowValues{
		{Row: 3, Values: []interface{}{"2", "Ravi K", "ravi.k@example.com"}},
		{Row: 5, Values: []interface{}{"4", "Kiran", ""}},
	})
	if err != nil {
		t.Fatalf("BatchUpdate() error = %v", err)
	}

	_, rows, err = sink.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if got := rows[1].Values["name"]; got != "Ravi K" {
		t.Errorf("updated name = %q, want Ravi K", got)
	}
	if got := rows[3].Values["email"]; got != "" {
		t.Errorf("cleared email = %q, want empty", got)
	}

	// Descending order keeps the remaining indices valid
	if err := sink.DeleteRows(ctx, []int{5, 2}); err != nil {
		t.Fatalf("DeleteRows() error = %v", err)
	}

	_, rows, err = sink.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if got := ids(rows); !reflect.DeepEqual(got, []string{"2", "3"}) {
		t.Errorf("ids after delete = %v, want [2 3]", got)
	}
	if rows[0].Index != 2 || rows[1].Index != 3 {
		t.Errorf("indices after delete = %d, %d", rows[0].Index, rows[1].Index)
	}

	// Appends land after the last row
	if err := sink.AppendRows(ctx, [][]interface{}{{"5", "Devi", ""}}); err != nil {
		t.Fatalf("AppendRows() error = %v", err)
	}
	_, rows, err = sink.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if got := ids(rows); !reflect.DeepEqual(got, []string{"2", "3", "5"}) {
		t.Errorf("ids after append = %v, want [2 3 5]", got)
	}
}

// testDataTypes checks the text each Go value is stored as
func testDataTypes(t *testing.T, sink sheetsync.Sink) {
	ctx := context.Background()
	reset(t, sink)

	err := sink.AppendRows(ctx, [][]interface{}{
		{"id", "string_val", "int_val", "float_val", "bool_val", "nil_val"},
		{"1", "hello", 42, 3.14, true, nil},
	})
	if err != nil {
		t.Fatalf("AppendRows() error = %v", err)
	}

	_, rows, err := sink.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	want := map[string]string{
		"id":         "1",
		"string_val": "hello",
		"int_val":    "42",
		"float_val":  "3.14",
		"bool_val":   "TRUE",
		"nil_val":    "",
	}
	for col, w := range want {
		if got := rows[0].Values[col]; got != w {
			t.Errorf("%s = %q, want %q", col, got, w)
		}
	}
}

// source serves a fixed list of records in pages
type source struct {
	records []*sheetsync.Record
}

func (s *source) Fetch(ctx context.Context, offset, limit int) ([]*sheetsync.Record, error) {
	if offset >= len(s.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[offset:end], nil
}

func (s *source) Complete() bool { return true }

func leads(from, to int, status string) []*sheetsync.Record {
	var out []*sheetsync.Record
	for i := from; i <= to; i++ {
		out = append(out, sheetsync.NewRecord(
			[]string{"id", "name", "status"},
			[]interface{}{strconv.Itoa(i), fmt.Sprintf("Lead %d", i), status},
		))
	}
	return out
}

func reconcile(t *testing.T, sink sheetsync.Sink, records []*sheetsync.Record, pageSize int) *sheetsync.Result {
	t.Helper()
	r, err := sheetsync.New(&source{records: records}, sink, &sheetsync.Config{
		IDColumn:    "id",
		PageSize:    pageSize,
		DeleteStale: true,
		RetryDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return res
}

// testReconcile runs a full insert, update and delete cycle through the sink
func testReconcile(t *testing.T, sink sheetsync.Sink) {
	ctx := context.Background()
	reset(t, sink)

	res := reconcile(t, sink, leads(1, 3, "new"), 2)
	if res.Inserted != 3 {
		t.Errorf("first run inserted = %d, want 3", res.Inserted)
	}

	next := append(leads(2, 2, "won"), leads(3, 4, "new")...)
	res = reconcile(t, sink, next, 2)
	if res.Inserted != 1 || res.Updated != 1 || res.Deleted != 1 {
		t.Errorf("second run = %s, want 1 insert, 1 update, 1 delete", res)
	}

	header, rows, err := sink.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !reflect.DeepEqual(header, []string{"id", "name", "status"}) {
		t.Errorf("header = %v", header)
	}
	if got := ids(rows); !reflect.DeepEqual(got, []string{"2", "3", "4"}) {
		t.Errorf("ids = %v, want [2 3 4]", got)
	}
	if rows[0].Values["status"] != "won" {
		t.Errorf("status of id 2 = %q, want won", rows[0].Values["status"])
	}

	res = reconcile(t, sink, next, 2)
	if res.Inserted+res.Updated+res.Deleted != 0 {
		t.Errorf("third run = %s, want no changes", res)
	}
}

// testLargeDataSet reconciles enough rows to span many pages
func testLargeDataSet(t *testing.T, sink sheetsync.Sink) {
	ctx := context.Background()
	reset(t, sink)

	res := reconcile(t, sink, leads(1, 250, "new"), 100)
	if res.Inserted != 250 || res.Pages != 4 {
		t.Errorf("run = %s, want 250 inserts over 4 pages", res)
	}

	// Drop every tenth lead
	var kept []*sheetsync.Record
	for i, rec := range leads(1, 250, "new") {
		if (i+1)%10 != 0 {
			kept = append(kept, rec)
		}
	}
	res = reconcile(t, sink, kept, 100)
	if res.Deleted != 25 {
		t.Errorf("deleted = %d, want 25", res.Deleted)
	}

	_, rows, err := sink.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 225 {
		t.Errorf("rows = %d, want 225", len(rows))
	}
}
