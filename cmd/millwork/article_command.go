package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"millwork/internal/api"
	"millwork/internal/articles"
	"millwork/internal/jobs"
)

func newArticleCommand(ctx *commandContext) *cobra.Command {
	articleCmd := &cobra.Command{
		Use:   "article",
		Short: "Queue and inspect article pipeline jobs",
	}
	articleCmd.AddCommand(newArticleWriteCommand(ctx))
	return articleCmd
}

func newArticleWriteCommand(ctx *commandContext) *cobra.Command {
	var (
		words      int
		iterations int
		schedule   string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "write <keyword>",
		Short: "Enqueue an article writing job for a keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(articles.Payload{
				Keyword: args[0],
				Settings: articles.Settings{
					TargetWordCount: words,
					MaxIterations:   iterations,
				},
			})
			if err != nil {
				return fmt.Errorf("encode payload: %w", err)
			}
			return ctx.withStore(func(store *jobs.Store) error {
				job, err := api.CreateJob(cmd.Context(), store, api.CreateJobRequest{
					JobType:      articles.JobType,
					Payload:      payload,
					CreatedBy:    "cli",
					ScheduledFor: schedule,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued article job %d for %q\n", job.ID, args[0])
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&words, "words", 0, "Target word count (0 uses the configured default)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "QA iteration budget (0 uses the configured default)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Earliest execution time (RFC3339)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")

	return cmd
}
