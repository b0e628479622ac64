package commands

import (
	"standings-sync/internal/marker"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the last published identity of every feed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		updated := map[string]time.Time{}
		if db := env.runtime.DB(); db != nil {
			entries, err := marker.List(ctx, db)
			if err != nil {
				return err
			}
			for _, e := range entries {
				updated[e.Feed] = e.UpdatedAt
			}
		}

		t := newTable()
		t.AppendHeader(table.Row{"Feed", "Detect", "Last published", "Updated"})
		for _, f := range env.runtime.Config().Feeds {
			identity, err := env.runtime.Marker(f).Read(ctx)
			if err != nil {
				return err
			}
			if identity == "" {
				identity = "(never)"
			}
			when := ""
			if at, ok := updated[f.Name]; ok {
				when = at.In(env.runtime.Time().Location()).Format(time.DateTime)
			}
			t.AppendRow(table.Row{f.Name, f.Detect, identity, when})
		}
		t.Render()
		return nil
	},
}
