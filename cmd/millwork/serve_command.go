package main

import (
	"github.com/spf13/cobra"

	"millwork/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		logLevel    string
		development bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the millwork daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Force console log output")

	return cmd
}
