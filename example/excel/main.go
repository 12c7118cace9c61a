package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ideamans/go-sheetsync"
	"github.com/ideamans/go-sheetsync/adapters/excel"
)

// patients is an in-process source standing in for a report query
type patients struct {
	rows [][]interface{}
}

func (p *patients) Fetch(ctx context.Context, offset, limit int) ([]*sheetsync.Record, error) {
	var out []*sheetsync.Record
	for i := offset; i < len(p.rows) && i < offset+limit; i++ {
		out = append(out, sheetsync.NewRecord([]string{"patient_id", "name", "visits", "last_visit"}, p.rows[i]))
	}
	return out, nil
}

func (p *patients) Complete() bool { return true }

func main() {
	// Excel sink configuration
	sinkConfig := &excel.Config{
		FilePath:  "./example_data.xlsx",
		SheetName: "patients",
	}

	// Create Excel sink (no authentication required)
	sink, err := excel.New(sinkConfig)
	if err != nil {
		log.Fatalf("Failed to create Excel sink: %v", err)
	}

	source := &patients{rows: [][]interface{}{
		{1001, "Asha Patil", 3, "2025-03-04"},
		{1002, "Ravi Kumar", 1, "2025-02-11"},
		{1003, "Meena Rao", 5, "2025-03-01"},
	}}

	config := &sheetsync.Config{
		IDColumn:      "patient_id",
		DeleteStale:   true,
		VersionColumn: "last_visit",
	}

	ctx := context.Background()

	// 1. First run writes the header and every row
	fmt.Println("Initial sync...")
	if err := reconcile(ctx, source, sink, config); err != nil {
		log.Fatal(err)
	}

	// 2. Update one patient, add one, drop one
	fmt.Println("\nSecond sync...")
	source.rows = [][]interface{}{
		{1001, "Asha Patil", 4, "2025-03-20"},
		{1003, "Meena Rao", 5, "2025-03-01"},
		{1004, "Kiran Shah", 1, "2025-03-21"},
	}
	if err := reconcile(ctx, source, sink, config); err != nil {
		log.Fatal(err)
	}

	// 3. Nothing changed, nothing written
	fmt.Println("\nThird sync...")
	if err := reconcile(ctx, source, sink, config); err != nil {
		log.Fatal(err)
	}

	// 4. Show what the workbook holds
	header, rows, err := sink.ReadAll(ctx)
	if err != nil {
		log.Fatalf("Failed to read workbook: %v", err)
	}
	fmt.Printf("\n%v\n", header)
	for _, row := range rows {
		fmt.Printf("  Row %d: %s (visits: %s, last: %s)\n",
			row.Index, row.Values["name"], row.Values["visits"], row.Values["last_visit"])
	}

	fmt.Printf("\nData saved to: %s\n", sinkConfig.FilePath)
}

func reconcile(ctx context.Context, source sheetsync.Source, sink sheetsync.Sink, config *sheetsync.Config) error {
	r, err := sheetsync.New(source, sink, config)
	if err != nil {
		return err
	}
	result, err := r.Run(ctx)
	if err != nil && !errors.Is(err, sheetsync.ErrPartialFetch) {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Println(" ", result)
	return nil
}
