package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"millwork/internal/api"
	"millwork/internal/jobs"
)

func newLogCommand(ctx *commandContext) *cobra.Command {
	var (
		category string
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent system log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobs.Store) error {
				resp, err := api.SystemLog(cmd.Context(), store, category, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "System log is empty")
					return nil
				}
				for _, entry := range resp.Entries {
					ref := ""
					if entry.JobID != nil {
						ref = fmt.Sprintf(" job=%d", *entry.JobID)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s %-10s %s%s\n",
						entry.CreatedAt, entry.Level, entry.Category, entry.Message, ref)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")

	return cmd
}
