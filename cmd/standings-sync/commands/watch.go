package commands

import (
	"context"
	"log/slog"
	"standings-sync/internal/chrono"
	"time"

	"github.com/spf13/cobra"
)

var watchAll *bool

func init() {
	watchAll = watchCmd.Flags().Bool("all", false, "Watch every configured feed.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--all] [feed...]",
	Short: "Checks feeds on the configured cron schedule until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cfg := env.runtime.Config()
		feeds, err := selectFeeds(cfg, *watchAll, args)
		if err != nil {
			return err
		}

		cron := chrono.NewStandardCron(env.tel, env.runtime.Time().Location())
		err = cron.Cron(cfg.Schedule, func() {
			err := runFeeds(ctx, env, feeds)
			if err != nil {
				slog.Error("scheduled run failed", "err", err)
			}
		})
		if err != nil {
			return err
		}

		slog.Info("watching feeds", "schedule", cfg.Schedule, "feeds", len(feeds))
		cron.Start()
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return cron.Stop(stopCtx)
	},
}
