package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-sheetsync/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configFile  string
	envDir      string
	sheetName   string
	dryRun      bool
	deleteStale bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sheetsync",
	Short: "Mirror CRM leads and report queries into spreadsheet tabs",
	Long: `sheetsync keeps a spreadsheet tab in step with an external source.

Each run reads the tab once, pages through the source, plans inserts,
updates and deletes keyed by an id column, then applies them in bulk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits 1 on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		l, logErr := logger.New(&logger.Config{Level: "info", Format: "console"})
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file for mappings and filters")
	flags.StringVar(&envDir, "env-dir", ".", "directory holding the .env file")
	flags.StringVar(&sheetName, "tab", "", "sink tab name (overrides sheets.sheet_name)")
	flags.BoolVar(&dryRun, "dry-run", false, "plan only, write nothing")
	flags.BoolVar(&deleteStale, "delete-stale", false, "remove rows whose id the source no longer returns")
}
