package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"millwork/internal/api"
	"millwork/internal/jobs"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and manage queued jobs",
	}

	jobCmd.AddCommand(newJobCreateCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobRunCommand(ctx))
	jobCmd.AddCommand(newJobCancelCommand(ctx))
	jobCmd.AddCommand(newJobRetryCommand(ctx))
	jobCmd.AddCommand(newJobClearCommand(ctx))

	return jobCmd
}

func newJobCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		jobType     string
		payload     string
		payloadFile string
		schedule    string
		maxAttempts int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Enqueue a new job",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := resolvePayload(payload, payloadFile)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *jobs.Store) error {
				job, err := api.CreateJob(cmd.Context(), store, api.CreateJobRequest{
					JobType:      jobType,
					Payload:      body,
					CreatedBy:    "cli",
					ScheduledFor: schedule,
					MaxAttempts:  maxAttempts,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created job %d (%s)\n", job.ID, job.JobType)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&jobType, "type", "", "Job type (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "Inline JSON payload")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the JSON payload from a file (- for stdin)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Earliest execution time (RFC3339)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Override the retry budget")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		jobType  string
		limit    int
		offset   int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobs.Store) error {
				resp, err := api.ListJobs(cmd.Context(), store, statuses, jobType, limit, offset)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				tbl := newCLITable("ID", "Type", "Status", "Attempts", "Progress", "Created")
				tbl.alignRight(0, 3, 4)
				for _, job := range resp.Jobs {
					tbl.addRow(
						strconv.FormatInt(job.ID, 10),
						job.JobType,
						job.Status,
						fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
						fmt.Sprintf("%d%%", job.PercentComplete),
						job.CreatedAt,
					)
				}
				fmt.Fprintln(cmd.OutOrStdout(), tbl.render())
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&jobType, "type", "", "Filter by job type")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")

	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job with its pipeline steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *jobs.Store) error {
				resp, err := api.DescribeJob(cmd.Context(), store, id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				printJobDetail(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func newJobRunCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Execute a pending job through the daemon and wait for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.controlClient()
			if err != nil {
				return err
			}
			resp, err := client.Execute(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d finished with status %s\n", resp.Job.ID, resp.Job.Status)
			if resp.Job.LastError != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Last error: %s\n", resp.Job.LastError)
			}
			return nil
		},
		Args: cobra.ExactArgs(1),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *jobs.Store) error {
				job, err := api.CancelJob(cmd.Context(), store, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d is now %s\n", job.ID, job.Status)
				return nil
			})
		},
	}
}

func newJobRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Make a retry-pending job immediately claimable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *jobs.Store) error {
				job, err := api.RetryJob(cmd.Context(), store, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d will be retried on the next trigger tick\n", job.ID)
				return nil
			})
		},
	}
}

func newJobClearCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete old terminal jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobs.Store) error {
				removed, err := api.ClearCompleted(cmd.Context(), store, olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Only delete jobs older than this")
	return cmd
}

func printJobDetail(cmd *cobra.Command, resp *api.JobResponse) {
	out := cmd.OutOrStdout()
	job := resp.Job
	fmt.Fprintf(out, "Job %d  %s  %s\n", job.ID, job.JobType, job.Status)
	fmt.Fprintf(out, "  attempts: %d/%d  progress: %d%%", job.Attempts, job.MaxAttempts, job.PercentComplete)
	if job.TotalItems > 0 {
		fmt.Fprintf(out, "  items: %d ok / %d failed of %d", job.ProcessedItems, job.FailedItems, job.TotalItems)
	}
	fmt.Fprintln(out)
	if job.LastError != "" {
		fmt.Fprintf(out, "  last error: %s\n", job.LastError)
	}
	if job.NextRetryAt != "" {
		fmt.Fprintf(out, "  next retry: %s\n", job.NextRetryAt)
	}
	if resp.Article != nil {
		fmt.Fprintf(out, "  article: %q  iteration %d/%d  tokens: %d",
			resp.Article.Keyword, resp.Article.CurrentIteration, resp.Article.MaxIterations, resp.Article.TotalTokens)
		if resp.Article.PageID != "" {
			fmt.Fprintf(out, "  page: %s", resp.Article.PageID)
		}
		fmt.Fprintln(out)
	}

	if len(resp.Steps) == 0 {
		return
	}
	tbl := newCLITable("Step", "Agent", "Iter", "Status", "Tokens", "Detail")
	tbl.alignRight(0, 2, 4)
	for _, step := range resp.Steps {
		detail := step.ErrorMessage
		if detail == "" && len(step.Logs) > 0 {
			detail = step.Logs[len(step.Logs)-1]
		}
		tbl.addRow(
			strconv.FormatInt(step.ID, 10),
			step.AgentType,
			strconv.Itoa(step.Iteration),
			step.Status,
			strconv.Itoa(step.TotalTokens),
			detail,
		)
	}
	fmt.Fprintln(out, tbl.render())
}

func resolvePayload(inline, file string) (json.RawMessage, error) {
	inline = strings.TrimSpace(inline)
	if inline != "" && file != "" {
		return nil, fmt.Errorf("--payload and --payload-file are mutually exclusive")
	}
	if inline != "" {
		return json.RawMessage(inline), nil
	}
	if file == "" {
		return nil, nil
	}
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}
	return data, nil
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}
