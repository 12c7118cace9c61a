package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ideamans/go-sheetsync"
	"github.com/ideamans/go-sheetsync/adapters/excel"
	"github.com/ideamans/go-sheetsync/adapters/googlesheets"
	"github.com/ideamans/go-sheetsync/archive"
	"github.com/ideamans/go-sheetsync/internal/config"
	"github.com/ideamans/go-sheetsync/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// app carries what every subcommand needs
type app struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer
}

// setup loads configuration, applies flag overrides and builds the logger
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(envDir, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("tab") {
		cfg.Sheets.SheetName = sheetName
	}
	if flags.Changed("dry-run") {
		cfg.Sync.DryRun = dryRun
	}
	if flags.Changed("delete-stale") {
		cfg.Sync.DeleteStale = deleteStale
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &app{
		cfg: cfg,
		log: logger.WithTab(l, cfg.Sheets.SheetName),
		out: cmd.OutOrStdout(),
	}, nil
}

// openSink returns the configured sink. A Google Sheets tab is created
// when missing.
func (a *app) openSink(ctx context.Context) (sheetsync.Sink, error) {
	sc := a.cfg.Sheets
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	if sc.ExcelFile != "" {
		sink, err := excel.New(&excel.Config{FilePath: sc.ExcelFile, SheetName: sc.SheetName})
		if err != nil {
			return nil, err
		}
		return sink, nil
	}

	var opts []option.ClientOption
	if sc.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(sc.Endpoint))
	}
	sink, err := googlesheets.NewFromCredentials(ctx, googlesheets.Config{
		SpreadsheetID: sc.SpreadsheetID,
		SheetName:     sc.SheetName,
	}, googlesheets.Credentials{
		Key:         sc.Credentials,
		ClientEmail: sc.ClientEmail,
		PrivateKey:  sc.PrivateKey,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sheets: %w", err)
	}

	created, err := sink.EnsureSheet(ctx)
	if err != nil {
		return nil, err
	}
	if created {
		a.log.Info("created worksheet")
	}
	return sink, nil
}

// reconcilerOptions wires logging and the optional snapshot archive
func (a *app) reconcilerOptions() ([]sheetsync.Option, error) {
	opts := []sheetsync.Option{sheetsync.WithLogger(a.log)}

	ac := a.cfg.Archive
	if err := config.ValidateArchive(&ac); err != nil {
		return nil, err
	}
	if !ac.Enabled {
		return opts, nil
	}

	client, err := archive.NewClient(ac)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}
	archiver, err := archive.New(client, ac, a.cfg.Sheets.SheetName, archive.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	return append(opts, sheetsync.WithSnapshotter(archiver)), nil
}

// sync runs one reconciliation (or a replace) and prints the summary
func (a *app) sync(ctx context.Context, source sheetsync.Source, sink sheetsync.Sink, rc *sheetsync.Config, replace bool) error {
	opts, err := a.reconcilerOptions()
	if err != nil {
		return err
	}

	r, err := sheetsync.New(source, sink, rc, opts...)
	if err != nil {
		return err
	}

	var res *sheetsync.Result
	if replace {
		res, err = r.Replace(ctx)
	} else {
		res, err = r.Run(ctx)
	}
	if res != nil {
		a.report(res)
	}
	return err
}

func (a *app) report(res *sheetsync.Result) {
	fmt.Fprintf(a.out, "%s %s\n", res.State, res.String())
	if res.Plan != nil && res.Plan.Duplicates > 0 {
		fmt.Fprintf(a.out, "duplicate rows in sink: %d\n", res.Plan.Duplicates)
	}
	if res.Partial {
		fmt.Fprintln(a.out, "fetch stopped early; staged changes were applied")
	}
	if a.cfg.Sync.DryRun {
		fmt.Fprintln(a.out, "dry run: nothing was written")
	}
}
