package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ideamans/go-sheetsync"
	"github.com/ideamans/go-sheetsync/adapters/googlesheets"
	"github.com/ideamans/go-sheetsync/sources/crm"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Create sink configuration
	sinkConfig := googlesheets.Config{
		SpreadsheetID: "your-spreadsheet-id",
		SheetName:     "Leads",
	}

	// Initialize Google Sheets sink with JSON key file
	sink, err := googlesheets.NewWithJSONKeyFile(ctx, sinkConfig, "./service-account.json")
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	if _, err := sink.EnsureSheet(ctx); err != nil {
		return err
	}

	// Leads of three stages created this year
	source, err := crm.New(crm.Config{
		Token:     os.Getenv("CRM_API_TOKEN"),
		DateAfter: "2025-01-01",
		StageIDs:  []string{"1", "2", "15"},
	}, crm.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	// Reconciler settings suited to the Sheets API quotas
	config := googlesheets.DefaultReconcilerConfig()
	config.IDColumn = "lead_id"
	config.ExcludeColumns = []string{"comments", "statuslog"}
	config.Mappings = []sheetsync.Mapping{
		{Column: "phone", Sources: []string{"mobile", "phone_no", "contact_number"}},
	}
	config.Filter = sheetsync.Filter{Exclude: []sheetsync.Condition{
		{Column: "name", Operator: "prefix", Value: "test"},
	}}

	r, err := sheetsync.New(source, sink, config, sheetsync.WithLogger(logger))
	if err != nil {
		return err
	}

	// Preview first
	plan, err := r.Plan(ctx)
	if err != nil {
		return fmt.Errorf("failed to plan: %w", err)
	}
	fmt.Println("plan:", plan)

	result, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Printf("run %s: %s\n", result.RunID, result)
	return nil
}
