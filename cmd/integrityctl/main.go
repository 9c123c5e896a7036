package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/automaton-integrity/internal/bootstrap"
	"github.com/bryanwahyu/automaton-integrity/internal/config"
	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/logging"
	"github.com/bryanwahyu/automaton-integrity/internal/render"
)

type globalOpts struct {
	configPath string
	output     string
	seedPath   string
}

func main() {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:           "integrityctl",
		Short:         "Scan tenant business data for integrity issues and apply safe fixes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "path to config.yaml")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table or json")
	root.PersistentFlags().StringVar(&opts.seedPath, "seed", "", "JSON fixture {collection: [docs]} loaded into the memory driver")

	root.AddCommand(newScanCmd(opts), newLatestCmd(opts), newHistoryCmd(opts), newFixCmd(opts), newRulesCmd(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newScanCmd(opts *globalOpts) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "scan <tenant>",
		Short: "Run a full integrity scan and store it as the tenant's latest report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, args[0], func(ctx context.Context, app *bootstrap.App, f render.Format) error {
				rep, err := app.Service.RunScan(ctx, args[0], by)
				if err != nil {
					return err
				}
				return render.Report(cmd.OutOrStdout(), f, rep)
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "cli", "who triggered the scan")
	return cmd
}

func newLatestCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <tenant>",
		Short: "Show the most recent report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, args[0], func(ctx context.Context, app *bootstrap.App, f render.Format) error {
				rep, err := app.Service.GetLatestReport(ctx, args[0])
				if err != nil {
					return err
				}
				return render.Report(cmd.OutOrStdout(), f, rep)
			})
		},
	}
}

func newHistoryCmd(opts *globalOpts) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <tenant>",
		Short: "List past scans, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, args[0], func(ctx context.Context, app *bootstrap.App, f render.Format) error {
				h, err := app.Service.GetHistory(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return render.History(cmd.OutOrStdout(), f, h)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries (max 100)")
	return cmd
}

func newFixCmd(opts *globalOpts) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "fix <tenant> <issue-id>...",
		Short: "Apply auto-fixes for issues of the latest report",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, args[0], func(ctx context.Context, app *bootstrap.App, f render.Format) error {
				out, err := app.Service.AutoFix(ctx, args[0], args[1:], actor)
				if err != nil {
					return err
				}
				return render.Outcome(cmd.OutOrStdout(), f, out)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", envOr("USER", "cli"), "actor recorded in the audit trail")
	return cmd
}

func newRulesCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List registered integrity rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, "", func(_ context.Context, app *bootstrap.App, f render.Format) error {
				return render.Rules(cmd.OutOrStdout(), f, app.Service.Rules())
			})
		},
	}
}

// withApp loads config, builds the service and runs fn under a signal-aware context.
func withApp(opts *globalOpts, tenant string, fn func(context.Context, *bootstrap.App, render.Format) error) error {
	f, err := render.ParseFormat(opts.output)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logging.Init(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.seedPath != "" {
		if app.Documents == nil {
			return fmt.Errorf("--seed only works with the memory driver")
		}
		if err := seed(app, tenant, opts.seedPath); err != nil {
			return err
		}
	}
	return fn(ctx, app, f)
}

func seed(app *bootstrap.App, tenant, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fixture map[string][]integrity.Document
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return fmt.Errorf("parse seed %s: %w", path, err)
	}
	for coll, docs := range fixture {
		app.Documents.Seed(tenant, coll, docs...)
	}
	return nil
}

func exitCode(err error) int {
	switch integrity.KindOf(err) {
	case integrity.KindValidation:
		return 2
	case integrity.KindNotFound:
		return 3
	case integrity.KindConcurrency:
		return 4
	}
	return 1
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

