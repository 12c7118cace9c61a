package main

import (
	"fmt"
	"time"

	"github.com/ideamans/go-sheetsync/sources/crm"
	"github.com/spf13/cobra"
)

// crmCmd mirrors CRM leads into the sink tab
var crmCmd = &cobra.Command{
	Use:   "crm",
	Short: "Sync CRM leads into the sheet",
	Long: `Pages through the getleads API and upserts every lead keyed by
sync.id_column (lead_id by default).

Examples:
  # Preview the plan
  sheetsync crm --dry-run

  # Sync leads created after a date for stages 1, 2 and 15
  CRM_DATE_AFTER=2025-01-01 CRM_STAGE_IDS=1,2,15 sheetsync crm

  # Also remove rows for leads the CRM no longer returns
  sheetsync crm --delete-stale`,
	RunE: runCRM,
}

func init() {
	rootCmd.AddCommand(crmCmd)
}

func newCRMSource(a *app) (*crm.Source, error) {
	cc := a.cfg.CRM
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return crm.New(crm.Config{
		Endpoint:   cc.Endpoint,
		Token:      cc.Token,
		DateAfter:  cc.DateAfter,
		DateBefore: cc.DateBefore,
		StageIDs:   cc.StageIDs,
		AllStages:  cc.AllStages,
		Timeout:    time.Duration(cc.TimeoutSeconds) * time.Second,
	}, crm.WithLogger(a.log))
}

func runCRM(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	source, err := newCRMSource(a)
	if err != nil {
		return err
	}
	sink, err := a.openSink(ctx)
	if err != nil {
		return err
	}

	if err := a.sync(ctx, source, sink, a.cfg.Sync.Reconciler(), false); err != nil {
		return fmt.Errorf("crm sync failed: %w", err)
	}
	return nil
}
