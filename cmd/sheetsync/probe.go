package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// probeCmd prints the fields of one lead with their JSON types
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show the keys and types of a sample CRM lead",
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	source, err := newCRMSource(a)
	if err != nil {
		return err
	}
	keys, err := source.Probe(cmd.Context())
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	for _, k := range keys {
		fmt.Fprintf(a.out, "%s -> %s\n", k.Key, k.Type)
	}
	return nil
}
