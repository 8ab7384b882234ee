package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spec-kit/subscription-reconciler/internal/api/dto"
	"github.com/spec-kit/subscription-reconciler/internal/domain"
	"github.com/spec-kit/subscription-reconciler/internal/events"
	"github.com/spec-kit/subscription-reconciler/internal/service"
)

var (
	runDebugIdentity string
	runDryRun        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single reconciliation and print the result as JSON",
	Long: `Runs one reconciliation in the foreground, suitable for a cron job.
The process exits non-zero when the run fails; per-identity write failures do not fail the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if runDryRun {
			cfg.Reconcile.DryRun = true
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApplication(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		report, runErr := app.reconciler.Run(ctx, service.RunInput{
			DebugIdentityKey: runDebugIdentity,
			Actor:            events.Actor{Type: domain.SubjectTypeScheduler, SubjectID: "cli"},
		})
		if err := writeResult(cmd, dto.NewRunResultResponse(report)); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runDebugIdentity, "debug-identity", "", "Trace every decision for this identity key (email)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Resolve and diff without writing to either store")
}

func writeResult(cmd *cobra.Command, result dto.RunResultResponse) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
