package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"mmprocess/internal/claim"
	"mmprocess/internal/config"
	"mmprocess/internal/fileutil"
	"mmprocess/internal/jobstate"
	"mmprocess/internal/logging"
	"mmprocess/internal/pipeline"
	"mmprocess/internal/textutil"
)

// videoExtensions are the file types picked up from the input directory.
var videoExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".m4v":  true,
	".avi":  true,
	".mov":  true,
	".mpg":  true,
	".mpeg": true,
	".wmv":  true,
	".ts":   true,
	".webm": true,
	".flv":  true,
	".vob":  true,
}

// IsVideoFile reports whether the name carries a recognized video extension.
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// Processor executes a claimed job. Satisfied by pipeline.Executor.
type Processor interface {
	Execute(ctx context.Context, job *pipeline.Job) error
}

// Outcome is the result of processing one job.
type Outcome struct {
	Job string
	Err error
}

// Scanner finds work across the shared directories, claims one job at a
// time, and runs it to completion.
type Scanner struct {
	cfg  *config.Config
	proc Processor
	log  *slog.Logger
}

// New returns a Scanner backed by the real pipeline.
func New(cfg *config.Config, log *slog.Logger) *Scanner {
	return NewWithProcessor(cfg, pipeline.New(cfg, log), log)
}

// NewWithProcessor returns a Scanner with an injected processor.
func NewWithProcessor(cfg *config.Config, proc Processor, log *slog.Logger) *Scanner {
	return &Scanner{
		cfg:  cfg,
		proc: proc,
		log:  logging.WithComponent(log, "scanner"),
	}
}

// Run claims and processes at most one job: resumable work-directory jobs
// take priority over new input files. A nil outcome means no work was
// available. One job per invocation keeps concurrent workers contention-free
// beyond the claim itself; throughput comes from re-invoking the scanner.
func (s *Scanner) Run(ctx context.Context) (*Outcome, error) {
	runID := uuid.NewString()
	log := s.log.With(logging.String(logging.FieldRunID, runID))
	log.Info("scan starting",
		logging.String("work_dir", s.cfg.Paths.WorkDir),
		logging.String("input_dir", s.cfg.Paths.InputDir))

	outcome, err := s.resumeExisting(ctx, log)
	if err != nil || outcome != nil {
		return outcome, err
	}
	return s.intakeNew(ctx, log)
}

// resumeExisting looks for interrupted jobs already in the work directory.
func (s *Scanner) resumeExisting(ctx context.Context, log *slog.Logger) (*Outcome, error) {
	entries, err := os.ReadDir(s.cfg.Paths.WorkDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan work dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobDir := filepath.Join(s.cfg.Paths.WorkDir, entry.Name())
		input := findJobInput(jobDir)
		if input == "" {
			continue
		}

		lock, ok, err := claim.Acquire(jobDir)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Info("job claimed elsewhere", logging.String(logging.FieldJob, entry.Name()))
			continue
		}

		outcome := s.process(ctx, jobDir, input, "", log)
		releaseErr := lock.Release()
		if releaseErr != nil {
			log.Warn("releasing claim", logging.Error(releaseErr))
		}
		return outcome, nil
	}
	return nil, nil
}

// intakeNew moves the next input file into a fresh job directory and
// processes it. Subdirectories of the input directory whose name matches an
// existing profile act as per-profile queues.
func (s *Scanner) intakeNew(ctx context.Context, log *slog.Logger) (*Outcome, error) {
	candidates, err := s.inputCandidates()
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		jobDir, err := s.jobDirFor(candidate)
		if err != nil {
			return nil, err
		}
		if jobDir == "" {
			continue
		}

		lock, ok, err := claim.Acquire(jobDir)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Another worker holds this job; the candidate stays in the
			// input tree for a later run.
			log.Info("job claimed elsewhere", logging.String(logging.FieldJob, filepath.Base(jobDir)))
			continue
		}

		input, err := s.admit(candidate, jobDir, log)
		if err != nil {
			lock.Release()
			return nil, err
		}
		if input == "" {
			lock.Release()
			continue
		}

		outcome := s.process(ctx, jobDir, input, candidate.profile, log)
		releaseErr := lock.Release()
		if releaseErr != nil {
			log.Warn("releasing claim", logging.Error(releaseErr))
		}
		return outcome, nil
	}
	return nil, nil
}

type inputCandidate struct {
	path    string
	profile string
}

func (s *Scanner) inputCandidates() ([]inputCandidate, error) {
	entries, err := os.ReadDir(s.cfg.Paths.InputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan input dir: %w", err)
	}

	var candidates []inputCandidate
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(s.cfg.Paths.InputDir, name)

		if entry.IsDir() {
			if !config.ProfileExists(s.cfg, name) {
				continue
			}
			files, err := os.ReadDir(path)
			if err != nil {
				return nil, fmt.Errorf("scan profile queue %s: %w", name, err)
			}
			for _, file := range files {
				if file.IsDir() || !IsVideoFile(file.Name()) {
					continue
				}
				candidates = append(candidates, inputCandidate{
					path:    filepath.Join(path, file.Name()),
					profile: name,
				})
			}
			continue
		}

		if IsVideoFile(name) {
			candidates = append(candidates, inputCandidate{path: path, profile: s.cfg.Defaults.Profile})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].path < candidates[j].path })
	return candidates, nil
}

// jobDirFor creates (or reuses) the work directory a candidate normalizes
// to. It returns "" when the candidate disappeared, which happens when
// another worker admitted it first. The caller must claim the directory
// before moving anything into it.
func (s *Scanner) jobDirFor(candidate inputCandidate) (string, error) {
	if _, err := os.Stat(candidate.path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	normalized := textutil.NormalizeFilename(filepath.Base(candidate.path))
	stem := strings.TrimSuffix(normalized, filepath.Ext(normalized))

	jobDir := filepath.Join(s.cfg.Paths.WorkDir, stem)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	return jobDir, nil
}

// admit moves the candidate (and any .srt sidecar) into the claimed job
// directory under a normalized name. Moving only while the claim is held
// keeps a same-named arrival from replacing a source another worker is
// encoding. Returns "" when the candidate disappeared between the scan and
// the claim.
func (s *Scanner) admit(candidate inputCandidate, jobDir string, log *slog.Logger) (string, error) {
	if _, statErr := os.Stat(candidate.path); statErr != nil {
		if os.IsNotExist(statErr) {
			return "", nil
		}
		return "", statErr
	}

	normalized := textutil.NormalizeFilename(filepath.Base(candidate.path))
	stem := filepath.Base(jobDir)

	input := filepath.Join(jobDir, normalized)
	if err := fileutil.MoveFile(candidate.path, input); err != nil {
		return "", fmt.Errorf("admit %s: %w", candidate.path, err)
	}
	log.Info("admitted input",
		logging.String(logging.FieldJob, stem),
		logging.String("source", candidate.path))

	srcStem := strings.TrimSuffix(candidate.path, filepath.Ext(candidate.path))
	sidecar := srcStem + ".srt"
	if _, statErr := os.Stat(sidecar); statErr == nil {
		if err := fileutil.MoveFile(sidecar, filepath.Join(jobDir, stem+".srt")); err != nil {
			return "", fmt.Errorf("admit sidecar %s: %w", sidecar, err)
		}
	}

	return input, nil
}

// process loads or creates the job state, runs the pipeline, and moves the
// job tree to its terminal directory.
func (s *Scanner) process(ctx context.Context, jobDir, input, profileName string, log *slog.Logger) *Outcome {
	name := filepath.Base(jobDir)
	outcome := &Outcome{Job: name}

	state, err := jobstate.Load(jobDir)
	if err != nil {
		if profileName == "" {
			profileName = s.cfg.Defaults.Profile
		}
		profile, profErr := config.LoadProfile(s.cfg, profileName)
		if profErr != nil {
			outcome.Err = profErr
			return outcome
		}
		state = jobstate.New(profileName, stageFlagsFor(&profile))
		if saveErr := state.Save(jobDir); saveErr != nil {
			outcome.Err = saveErr
			return outcome
		}
	}

	profile, err := config.LoadProfile(s.cfg, state.Profile)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	job := &pipeline.Job{Dir: jobDir, InputPath: input, State: state, Profile: profile}
	outcome.Err = s.proc.Execute(ctx, job)

	dest := s.cfg.Paths.DoneDir
	if outcome.Err != nil {
		dest = s.cfg.Paths.ErrorDir
		log.Error("job failed",
			logging.String(logging.FieldJob, name),
			logging.Error(outcome.Err))
	}

	target := filepath.Join(dest, name)
	if _, statErr := os.Stat(target); statErr == nil {
		outcome.Err = fmt.Errorf("job %s: destination %s already exists", name, target)
		return outcome
	}
	if moveErr := fileutil.MoveDir(jobDir, target); moveErr != nil {
		outcome.Err = fmt.Errorf("job %s: %w", name, moveErr)
	}
	return outcome
}

// RunSingle admits one explicit file and processes it, bypassing the input
// directory scan. profileName empty means the configured default.
func (s *Scanner) RunSingle(ctx context.Context, path, profileName string) (*Outcome, error) {
	if profileName == "" {
		profileName = s.cfg.Defaults.Profile
	}
	log := s.log.With(logging.String(logging.FieldRunID, uuid.NewString()))

	candidate := inputCandidate{path: path, profile: profileName}
	jobDir, err := s.jobDirFor(candidate)
	if err != nil {
		return nil, err
	}
	if jobDir == "" {
		return nil, fmt.Errorf("input file %s not found", path)
	}

	lock, ok, err := claim.Acquire(jobDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job %s already claimed", filepath.Base(jobDir))
	}
	defer lock.Release()

	input, err := s.admit(candidate, jobDir, log)
	if err != nil {
		return nil, err
	}
	if input == "" {
		return nil, fmt.Errorf("input file %s not found", path)
	}

	return s.process(ctx, jobDir, input, profileName, log), nil
}

// findJobInput locates the media file a job directory is named after. The
// intake convention is that the input shares the directory's name.
func findJobInput(jobDir string) string {
	name := filepath.Base(jobDir)
	entries, err := os.ReadDir(jobDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() || !IsVideoFile(entry.Name()) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if stem == name {
			return filepath.Join(jobDir, entry.Name())
		}
	}
	return ""
}

func stageFlagsFor(profile *config.Profile) jobstate.StageFlags {
	return jobstate.StageFlags{
		Probe:  true,
		Crop:   profile.Processing.Crop,
		Scale:  profile.Processing.Scale,
		Encode: true,
		Mux:    true,
		Move:   true,
	}
}
