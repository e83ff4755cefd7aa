package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/finder"
	"github.com/JakeFAU/cbcr-finder/internal/runs"
	"github.com/JakeFAU/cbcr-finder/internal/targets"
)

type findOptions struct {
	target         string
	targetsFile    string
	periods        []string
	keywords       string
	dateRestrict   string
	restrictByName bool
	scope          string
	searchTimeout  time.Duration
	fetchTimeout   time.Duration
}

// newFindCmd creates the 'find' subcommand.
func newFindCmd() *cobra.Command {
	opts := &findOptions{}
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Search, download and ledger reports for one or more targets",
		Long: `Runs one search per target and period, downloads every new PDF into the
store and appends a ledger row per attempt. The first interrupt stops the run
after the current download; a second interrupt aborts it.`,
		Example: `  cbcr-finder find --target "Acme Corp" --periods 2022,2023
  cbcr-finder find --targets-file companies.csv --scope eu --date-restrict y2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFind(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.target, "target", "", "single organization to search for")
	flags.StringVar(&opts.targetsFile, "targets-file", "", "CSV file with a CompanyName column")
	flags.StringSliceVar(&opts.periods, "periods", nil, "reporting periods (default from config)")
	flags.StringVar(&opts.keywords, "keywords", "", "query keywords (default from config)")
	flags.StringVar(&opts.dateRestrict, "date-restrict", "", "y1..y5, or 'none' (default from config)")
	flags.BoolVar(&opts.restrictByName, "restrict-by-name", false, "keep only URLs containing the target name")
	flags.StringVar(&opts.scope, "scope", "", "sub-folder for payloads and a separate ledger")
	flags.DurationVar(&opts.searchTimeout, "search-timeout", 0, "per search call timeout (default from config)")
	flags.DurationVar(&opts.fetchTimeout, "fetch-timeout", 0, "per download timeout (default from config)")
	cmd.MarkFlagsMutuallyExclusive("target", "targets-file")
	cmd.MarkFlagsOneRequired("target", "targets-file")
	return cmd
}

func runFind(cmd *cobra.Command, opts *findOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	in, err := buildInput(cmd, opts, appInstance)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	ctx, abort := context.WithCancel(cmd.Context())
	defer abort()
	manager, err := appInstance.Manager(ctx)
	if err != nil {
		return err
	}
	run, err := manager.Start(in)
	if err != nil {
		return err
	}
	logger.Info("run started", zap.String("run_id", run.ID), zap.String("scope", run.Scope))

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		interrupts := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				interrupts++
				if interrupts == 1 {
					logger.Info("stopping after the current item; interrupt again to abort")
					if _, err := manager.Cancel(run.ID); err != nil {
						logger.Warn("cancel run failed", zap.Error(err))
					}
					continue
				}
				logger.Warn("aborting run")
				abort()
				return
			}
		}
	}()

	final, err := manager.Wait(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, final); err != nil {
		return err
	}
	if final.Status == runs.StatusFailed {
		return fmt.Errorf("run %s failed: %s", final.ID, final.Error)
	}
	return nil
}

func buildInput(cmd *cobra.Command, opts *findOptions, appInstance App) (finder.Input, error) {
	cfg := appInstance.Config()
	if err := cfg.ValidateSearch(); err != nil {
		return finder.Input{}, fmt.Errorf("%w: %w", finder.ErrConfiguration, err)
	}
	in := finder.Input{
		Target:         opts.target,
		Periods:        cfg.Finder.Periods,
		Keywords:       cfg.Finder.Keywords,
		DateRestrict:   cfg.Finder.DateRestrict,
		RestrictByName: cfg.Finder.RestrictByName,
		Scope:          opts.scope,
		SearchTimeout:  cfg.SearchTimeout(),
		FetchTimeout:   cfg.FetchTimeout(),
	}
	flags := cmd.Flags()
	if flags.Changed("periods") {
		in.Periods = opts.periods
	}
	if flags.Changed("keywords") {
		in.Keywords = opts.keywords
	}
	if flags.Changed("date-restrict") {
		in.DateRestrict = opts.dateRestrict
		if in.DateRestrict == "none" {
			in.DateRestrict = ""
		}
	}
	if flags.Changed("restrict-by-name") {
		in.RestrictByName = opts.restrictByName
	}
	if flags.Changed("search-timeout") {
		in.SearchTimeout = opts.searchTimeout
	}
	if flags.Changed("fetch-timeout") {
		in.FetchTimeout = opts.fetchTimeout
	}
	if opts.targetsFile != "" {
		names, err := readTargetsFile(opts.targetsFile)
		if err != nil {
			return finder.Input{}, err
		}
		in.Targets = names
	}
	return in, nil
}

func readTargetsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()
	names, err := targets.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read targets file %s: %w", path, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: targets file %s has no rows", finder.ErrConfiguration, path)
	}
	return names, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
