package commands

import (
	"standings-sync/internal/feed"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(feedsCmd)
}

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Lists the configured feeds.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := feed.Load(*configPath)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Name", "Title", "Source", "Detect", "Remote dir", "Public url"})
		for _, f := range cfg.Feeds {
			t.AppendRow(table.Row{
				f.Name,
				f.Title,
				string(f.Source.Kind),
				f.Detect,
				f.RemoteDir,
				f.PublicBaseURL,
			})
		}
		t.Render()
		return nil
	},
}
