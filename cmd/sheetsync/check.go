package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// checkCmd verifies the sink is reachable
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the sheet tab can be read",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	sink, err := a.openSink(ctx)
	if err != nil {
		return err
	}
	header, rows, err := sink.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	fmt.Fprintf(a.out, "connected to %q: %d rows\n", a.cfg.Sheets.SheetName, len(rows))
	if len(header) > 0 {
		fmt.Fprintf(a.out, "header: %s\n", strings.Join(header, ", "))
	}
	return nil
}
