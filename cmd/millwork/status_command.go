package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"millwork/internal/api"
	"millwork/internal/daemonctl"
	"millwork/internal/jobs"
	"millwork/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and provider status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.controlClient()
			if err != nil {
				return err
			}

			status, err := client.Status(cmd.Context())
			if err != nil {
				if !errors.Is(err, daemonctl.ErrDaemonUnavailable) {
					return err
				}
				// Daemon is down; read the store directly so operators
				// still get queue visibility.
				status = &api.StatusResponse{}
				if storeErr := ctx.withStore(func(store *jobs.Store) error {
					stats, err := api.JobStats(cmd.Context(), store, "")
					if err != nil {
						return err
					}
					status.Jobs = stats
					status.JobDBPath = store.Path()
					return nil
				}); storeErr != nil {
					return storeErr
				}
			}

			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon running: %s\n", yesNo(status.Running))
			if status.JobDBPath != "" {
				fmt.Fprintf(out, "Job database:   %s\n", status.JobDBPath)
			}
			if len(status.JobTypes) > 0 {
				fmt.Fprintf(out, "Job types:      %v\n", status.JobTypes)
			}

			counts := newCLITable("Status", "Count")
			counts.alignRight(1)
			counts.addRow("pending", strconv.Itoa(status.Jobs.Pending))
			counts.addRow("processing", strconv.Itoa(status.Jobs.Processing))
			counts.addRow("completed", strconv.Itoa(status.Jobs.Completed))
			counts.addRow("failed", strconv.Itoa(status.Jobs.Failed))
			counts.addRow("cancelled", strconv.Itoa(status.Jobs.Cancelled))
			fmt.Fprintln(out, counts.render())

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checks := preflight.RunAll(cmd.Context(), cfg)
			checkTbl := newCLITable("Check", "State", "Detail")
			for _, check := range checks {
				state := "FAIL"
				if check.Passed {
					state = "ok"
				}
				checkTbl.addRow(check.Name, state, check.Detail)
			}
			fmt.Fprintln(out, checkTbl.render())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
