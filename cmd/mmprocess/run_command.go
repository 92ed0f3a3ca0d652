package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mmprocess/internal/scanner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Claim and process the next available job",
		Long: `Run resumes an interrupted job from the work directory if one exists,
otherwise admits the next new file from the input directory, and processes it
to completion. One job is handled per invocation; rerun (or run several
workers) for throughput. A finished job moves to the done directory, a failed
one to the error directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			outcome, err := scanner.New(cfg, logger).Run(cmd.Context())
			if err != nil {
				return err
			}
			if outcome == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to do")
				return nil
			}
			if outcome.Err != nil {
				return fmt.Errorf("job %s failed: %w", outcome.Job, outcome.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "done    %s\n", outcome.Job)
			return nil
		},
	}
}
