package commands

import (
	"context"
	"standings-sync/internal/serviceutil"
	"standings-sync/internal/telemetry"

	"github.com/spf13/cobra"
)

var configPath *string
var verbose *bool
var dumpHTTP *string

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The json5 config file, <name>.local.json5 next to it overrides it.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages.")
	dumpHTTP = rootCmd.PersistentFlags().String("dump-http", "", "Write a transcript of every http exchange to this directory.")
}

var rootCmd = &cobra.Command{
	Use:           "standings-sync",
	Short:         "standings-sync mirrors league standings PDFs to a web host and announces new ones by email.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		serviceutil.Fatal("standings-sync failed", err)
	}
}
