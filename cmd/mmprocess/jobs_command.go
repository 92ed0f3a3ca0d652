package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mmprocess/internal/config"
	"mmprocess/internal/jobstate"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs across the work, done, and error directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			rows, err := collectJobRows(cfg)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderJobsTable(rows))
			return nil
		},
	}
}

// collectJobRows walks the three job directories and summarizes every state
// record found. Directories without a record are skipped rather than treated
// as errors; partially admitted trees are normal on a shared filesystem.
func collectJobRows(cfg *config.Config) ([]jobRow, error) {
	locations := []struct {
		label string
		dir   string
	}{
		{"work", cfg.Paths.WorkDir},
		{"done", cfg.Paths.DoneDir},
		{"error", cfg.Paths.ErrorDir},
	}

	var rows []jobRow
	for _, loc := range locations {
		entries, err := os.ReadDir(loc.dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s dir: %w", loc.label, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			state, err := jobstate.Load(filepath.Join(loc.dir, entry.Name()))
			if err != nil {
				continue
			}
			rows = append(rows, jobRow{
				Name:     entry.Name(),
				Location: loc.label,
				Profile:  state.Profile,
				Stages:   stageProgress(state),
				Updated:  state.Updated,
				Error:    state.Error,
			})
		}
	}
	return rows, nil
}

func stageProgress(state *jobstate.State) string {
	enabled, done := 0, 0
	for _, stage := range jobstate.Stages() {
		if !state.Enabled(stage) {
			continue
		}
		enabled++
		if state.Done(stage) {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, enabled)
}
