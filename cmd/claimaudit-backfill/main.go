package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"claimaudit/internal/backfill"
	"claimaudit/internal/config"
	"claimaudit/internal/observability"
	"claimaudit/internal/queue"
	"claimaudit/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "claimaudit-backfill",
	Short: "Enqueue audits for claims that have never been scored",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(os.Getenv("CA_CONFIG"))
		if err != nil {
			return err
		}
		logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format).With().Str("component", "backfill").Logger()

		st, err := store.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		if err := store.Migrate(ctx, st.DB()); err != nil {
			return err
		}

		q, err := queue.New(cfg.Redis.URL, cfg.Redis.Queue)
		if err != nil {
			return err
		}
		defer q.Close()

		svc := backfill.NewService(st, q)
		svc.BatchSize = cfg.Worker.BatchSize
		svc.Model, _ = cmd.Flags().GetString("model")
		svc.DryRun, _ = cmd.Flags().GetBool("dry-run")
		svc.Cooldown, _ = cmd.Flags().GetDuration("cooldown")

		report, err := svc.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Int("enqueued", report.Enqueued).Msg("backfill failed")
			return err
		}
		logger.Info().Int("enqueued", report.Enqueued).Int("skipped", report.Skipped).Bool("dry_run", svc.DryRun).Msg("backfill complete")
		return nil
	},
}

func init() {
	rootCmd.Flags().String("model", "", "Provider id for the queued audits (default provider when empty)")
	rootCmd.Flags().Bool("dry-run", false, "Count claims without enqueueing")
	rootCmd.Flags().Duration("cooldown", time.Hour, "Skip claims audited more recently than this")
}
