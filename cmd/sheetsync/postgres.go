package main

import (
	"fmt"

	"github.com/ideamans/go-sheetsync/sources/postgres"
	"github.com/spf13/cobra"
)

var (
	// Flags for postgres command
	replaceTab bool
)

// postgresCmd writes the result of a report query into the sink tab
var postgresCmd = &cobra.Command{
	Use:   "postgres",
	Short: "Sync the rows of a Postgres query into the sheet",
	Long: `Runs postgres.query (or the file at postgres.query_file) page by page.

With --replace the tab is cleared and rewritten from the full result, as
the report jobs do; an empty result leaves the tab untouched. Without it,
rows are upserted keyed by postgres.id_column.

Examples:
  # Rewrite the OPD tab from a query file
  sheetsync postgres --replace --tab OPD

  # Upsert by patient id
  POSTGRES_ID_COLUMN=patient_ref_id POSTGRES_ORDER_BY=patient_ref_id sheetsync postgres --tab RPP`,
	RunE: runPostgres,
}

func init() {
	postgresCmd.Flags().BoolVar(&replaceTab, "replace", false, "clear the tab and rewrite it from the query result")
	rootCmd.AddCommand(postgresCmd)
}

func runPostgres(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pc := a.cfg.Postgres
	if err := pc.Validate(); err != nil {
		return err
	}
	query, err := pc.LoadQuery()
	if err != nil {
		return err
	}

	pgConfig := postgres.Config{
		Host:           pc.Host,
		Port:           pc.Port,
		Database:       pc.Database,
		User:           pc.User,
		Password:       pc.Password,
		SSLMode:        pc.SSLMode,
		Query:          query,
		OrderBy:        pc.OrderBy,
		FullPopulation: pc.FullPopulation,
	}
	db, err := postgres.Open(ctx, pgConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := postgres.New(db, pgConfig, postgres.WithLogger(a.log))
	if err != nil {
		return err
	}
	sink, err := a.openSink(ctx)
	if err != nil {
		return err
	}

	rc := a.cfg.Sync.Reconciler()
	rc.IDColumn = pc.IDColumn
	if replaceTab {
		rc.DeleteStale = false
	}

	if err := a.sync(ctx, source, sink, rc, replaceTab); err != nil {
		return fmt.Errorf("postgres sync failed: %w", err)
	}
	return nil
}
