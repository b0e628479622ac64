package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"standings-sync/internal/feed"

	"github.com/spf13/cobra"
)

var runAll *bool

func init() {
	runAll = runCmd.Flags().Bool("all", false, "Run every configured feed.")
	rootCmd.AddCommand(runCmd)
}

// selectFeeds resolves the feed names given on the command line.
func selectFeeds(cfg feed.Config, all bool, names []string) ([]feed.Feed, error) {
	if all {
		if len(names) > 0 {
			return nil, errors.New("--all cannot be combined with feed names")
		}
		if len(cfg.Feeds) == 0 {
			return nil, errors.New("no feeds configured")
		}
		return cfg.Feeds, nil
	}
	if len(names) == 0 {
		if len(cfg.Feeds) == 1 {
			return cfg.Feeds, nil
		}
		return nil, errors.New("specify the feeds to run or --all")
	}

	var feeds []feed.Feed
	for _, name := range names {
		f, ok := cfg.Find(name)
		if !ok {
			return nil, fmt.Errorf("unknown feed %q", name)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

// runFeeds runs every feed one after another, a failing feed does not stop
// the ones after it.
func runFeeds(ctx context.Context, env environment, feeds []feed.Feed) error {
	var errs []error
	for _, f := range feeds {
		err := ctx.Err()
		if err != nil {
			errs = append(errs, err)
			break
		}

		p, err := env.runtime.Pipeline(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		result, err := p.Run(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		slog.Info(
			"feed checked",
			"feed", f.Name,
			"outcome", result.Outcome,
			"reason", result.Reason,
			"dated_name", result.DatedName,
		)
	}
	return errors.Join(errs...)
}

var runCmd = &cobra.Command{
	Use:   "run [--all] [feed...]",
	Short: "Checks feeds once and publishes what changed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		feeds, err := selectFeeds(env.runtime.Config(), *runAll, args)
		if err != nil {
			return err
		}
		return runFeeds(cmd.Context(), env, feeds)
	},
}
