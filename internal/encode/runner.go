package encode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mmprocess/internal/logging"
)

// Runner executes encode passes with ffmpeg, capturing each pass's full
// output to a pass log in the job directory for post-mortems.
type Runner struct {
	Binary string
	Log    *slog.Logger
}

// NewRunner returns a Runner using the given ffmpeg binary.
func NewRunner(binary string, log *slog.Logger) *Runner {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Runner{Binary: binary, Log: log}
}

// PassLogName returns the capture file name for a pass, "pass1.log" and so
// on.
func PassLogName(pass int) string {
	return fmt.Sprintf("pass%d.log", pass)
}

// RunPass executes one encode pass. The captured log starts with the exact
// command line so a failed pass can be rerun by hand.
func (r *Runner) RunPass(ctx context.Context, plan Plan, pass int) error {
	args := BuildArgs(plan, pass)

	logPath := filepath.Join(filepath.Dir(plan.OutputPath), PassLogName(pass))
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create pass log %s: %w", logPath, err)
	}
	defer logFile.Close()

	command := r.Binary + " " + strings.Join(args, " ")
	if _, err := fmt.Fprintf(logFile, "Command: %s\n\n", command); err != nil {
		return fmt.Errorf("write pass log %s: %w", logPath, err)
	}

	r.Log.Info("encode pass starting",
		logging.Int(logging.FieldPass, pass),
		logging.Int("total_passes", plan.Passes()),
		logging.String("output", plan.OutputPath))

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("encode pass %d (log at %s): %w", pass, logPath, err)
	}
	return nil
}
