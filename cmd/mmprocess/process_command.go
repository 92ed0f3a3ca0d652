package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mmprocess/internal/scanner"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var profileFlag string

	cmd := &cobra.Command{
		Use:   "process FILE",
		Short: "Process a single file outside the batch scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			outcome, err := scanner.New(cfg, logger).RunSingle(cmd.Context(), args[0], profileFlag)
			if err != nil {
				return err
			}
			if outcome.Err != nil {
				return fmt.Errorf("job %s failed: %w", outcome.Job, outcome.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "done    %s\n", outcome.Job)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileFlag, "profile", "p", "", "Encoding profile name")
	return cmd
}
