package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	redriveMinAge time.Duration
	redriveLimit  int
)

var redriveCmd = &cobra.Command{
	Use:   "redrive",
	Short: "Re-run pending reward cascade tasks",
	Long: `Re-run reward cascade tasks left pending by an interrupted or failed cascade.

Examples:
  loyaltyctl redrive
  loyaltyctl redrive --min-age 5m --limit 500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		count, err := rt.engine.Redrive(cmd.Context(), redriveMinAge, redriveLimit)
		out := map[string]any{"attempted": count}
		if err != nil {
			out["error"] = err.Error()
		}
		if perr := printJSON(cmd, out); perr != nil {
			return perr
		}
		return err
	},
}

func init() {
	redriveCmd.Flags().DurationVar(&redriveMinAge, "min-age", 0, "only tasks at least this old")
	redriveCmd.Flags().IntVar(&redriveLimit, "limit", 100, "maximum tasks to re-run")
}
