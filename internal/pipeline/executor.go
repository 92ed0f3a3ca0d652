package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mmprocess/internal/config"
	"mmprocess/internal/encode"
	"mmprocess/internal/fileutil"
	"mmprocess/internal/jobstate"
	"mmprocess/internal/logging"
	"mmprocess/internal/media/cropdetect"
	"mmprocess/internal/media/ffprobe"
	"mmprocess/internal/services"
	"mmprocess/internal/sizing"
)

// Prober inspects a media file.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Info, error)
}

// CropDetector finds the consensus crop rectangle for a file.
type CropDetector interface {
	Detect(ctx context.Context, path string, duration float64) (*cropdetect.Rect, error)
}

// Encoder runs a single encode pass.
type Encoder interface {
	RunPass(ctx context.Context, plan encode.Plan, pass int) error
}

// Job is one claimed work directory ready for execution.
type Job struct {
	Dir       string
	InputPath string
	State     *jobstate.State
	Profile   config.Profile
}

// Name returns the job's directory name.
func (j Job) Name() string { return filepath.Base(j.Dir) }

// Executor drives a job through its stages. Every stage transition persists
// state before continuing, so a crash at any point resumes without redoing
// completed work.
type Executor struct {
	cfg      *config.Config
	prober   Prober
	detector CropDetector
	encoder  Encoder
	log      *slog.Logger
}

type ffprobeProber struct {
	binary string
}

func (p ffprobeProber) Inspect(ctx context.Context, path string) (ffprobe.Info, error) {
	return ffprobe.Inspect(ctx, p.binary, path)
}

// New returns an Executor wired to the real ffmpeg and ffprobe tools.
func New(cfg *config.Config, log *slog.Logger) *Executor {
	log = logging.WithComponent(log, "pipeline")
	return &Executor{
		cfg:      cfg,
		prober:   ffprobeProber{binary: cfg.Tools.FFprobe},
		detector: cropdetect.NewDetector(cfg.Tools.FFmpeg),
		encoder:  encode.NewRunner(cfg.Tools.FFmpeg, log),
		log:      log,
	}
}

// NewWithTools returns an Executor with injected collaborators.
func NewWithTools(cfg *config.Config, prober Prober, detector CropDetector, encoder Encoder, log *slog.Logger) *Executor {
	return &Executor{
		cfg:      cfg,
		prober:   prober,
		detector: detector,
		encoder:  encoder,
		log:      logging.WithComponent(log, "pipeline"),
	}
}

// Execute runs every pending stage of the job in order. On failure the error
// text is recorded in the job state before returning, so the work tree
// explains itself.
func (e *Executor) Execute(ctx context.Context, job *Job) error {
	log := e.log.With(
		logging.String(logging.FieldJob, job.Name()),
		logging.String(logging.FieldProfile, job.Profile.Name))

	info, err := e.probe(ctx, job, log)
	if err != nil {
		return e.fail(job, err)
	}

	rect, err := e.cropDetect(ctx, job, info, log)
	if err != nil {
		return e.fail(job, err)
	}

	plan, err := e.calculate(job, info, rect, log)
	if err != nil {
		return e.fail(job, err)
	}

	if err := e.encode(ctx, job, plan, log); err != nil {
		return e.fail(job, err)
	}

	finalPath, err := e.finalize(job, plan, log)
	if err != nil {
		return e.fail(job, err)
	}

	if err := e.relocate(job, finalPath, log); err != nil {
		return e.fail(job, err)
	}

	job.State.Error = ""
	if err := job.State.Save(job.Dir); err != nil {
		return err
	}
	log.Info("job complete")
	return nil
}

func (e *Executor) fail(job *Job, err error) error {
	job.State.Error = err.Error()
	if saveErr := job.State.Save(job.Dir); saveErr != nil {
		e.log.Error("persisting failure state",
			logging.String(logging.FieldJob, job.Name()),
			logging.Error(saveErr))
	}
	return err
}

// probe always re-inspects the input so downstream stages work from live
// metadata, even when the stage is already marked done.
func (e *Executor) probe(ctx context.Context, job *Job, log *slog.Logger) (ffprobe.Info, error) {
	log.Info("probing input", logging.String(logging.FieldStage, jobstate.StageProbe.String()))

	info, err := e.prober.Inspect(ctx, job.InputPath)
	if err != nil {
		return ffprobe.Info{}, services.Wrap(services.ErrProbe, "probe", "inspect", job.InputPath, err)
	}

	snapshot := jobstate.Input{
		Path:     job.InputPath,
		Size:     info.Size,
		Format:   info.Format,
		Duration: info.Duration,
	}
	if video := info.PrimaryVideo(); video != nil {
		snapshot.VideoCodec = video.Codec
		snapshot.VideoWidth = video.Width
		snapshot.VideoHeight = video.Height
		snapshot.VideoFPS = video.FPS
	}
	if audio := info.PrimaryAudio(); audio != nil {
		snapshot.AudioCodec = audio.Codec
		snapshot.AudioChannels = audio.Channels
		snapshot.AudioBitrate = int(audio.Bitrate / 1000)
	}
	job.State.Input = snapshot

	if job.State.Pending(jobstate.StageProbe) {
		job.State.MarkDone(jobstate.StageProbe)
	}
	if err := job.State.Save(job.Dir); err != nil {
		return ffprobe.Info{}, err
	}
	return info, nil
}

// cropDetect runs detection once per job. A completed stage replays the
// persisted rectangle instead of re-sampling.
func (e *Executor) cropDetect(ctx context.Context, job *Job, info ffprobe.Info, log *slog.Logger) (*cropdetect.Rect, error) {
	state := job.State

	if state.Enabled(jobstate.StageCrop) && state.Done(jobstate.StageCrop) {
		if len(state.Output.Crop) == 4 {
			c := state.Output.Crop
			return &cropdetect.Rect{Width: c[0], Height: c[1], X: c[2], Y: c[3]}, nil
		}
		return nil, nil
	}
	if !state.Pending(jobstate.StageCrop) {
		return nil, nil
	}

	log.Info("detecting crop", logging.String(logging.FieldStage, jobstate.StageCrop.String()))

	rect, err := e.detector.Detect(ctx, job.InputPath, info.Duration)
	if err != nil {
		return nil, services.Wrap(services.ErrCropDetection, "crop", "detect", job.InputPath, err)
	}

	if rect != nil {
		state.Output.Crop = []int{rect.Width, rect.Height, rect.X, rect.Y}
		log.Info("crop consensus", logging.String("rect", rect.String()))
	} else {
		state.Output.Crop = nil
		log.Info("no crop detected")
	}
	state.MarkDone(jobstate.StageCrop)
	if err := state.Save(job.Dir); err != nil {
		return nil, err
	}
	return rect, nil
}

// calculate is deterministic and therefore always re-runs: the same probed
// input and profile yield the same plan on every execution, which is what
// makes encode resume safe.
func (e *Executor) calculate(job *Job, info ffprobe.Info, rect *cropdetect.Rect, log *slog.Logger) (encode.Plan, error) {
	state := job.State
	profile := job.Profile

	video := info.PrimaryVideo()
	if video == nil {
		return encode.Plan{}, services.Wrap(services.ErrCalculation, "calculate", "video", "input has no video stream", nil)
	}

	if tier := config.SelectTier(&profile, video.Width*video.Height); tier != nil {
		log.Info("tier override", logging.String("tier", tier.Name))
		profile = config.ApplyTier(profile, tier)
	}

	cropW, cropH := 0, 0
	if rect != nil {
		cropW, cropH = rect.Width, rect.Height
	}

	src := sizing.Source{
		Width:    video.Width,
		Height:   video.Height,
		FPS:      video.FPS,
		Duration: info.Duration,
		Size:     info.Size,
	}
	scale, bitrate, err := sizing.FromProfile(src, &profile, cropW, cropH)
	if err != nil {
		return encode.Plan{}, services.Wrap(services.ErrCalculation, "calculate", "sizing", job.InputPath, err)
	}

	container := profile.Container
	if container == "" {
		container = e.cfg.Defaults.Container
	}
	profile.Container = container

	subtitle := e.sidecarSubtitle(job)

	plan, err := encode.BuildPlan(&profile, info, scale, bitrate, rect,
		e.cfg.Defaults.AudioLanguage, subtitle, job.Dir)
	if err != nil {
		return encode.Plan{}, services.Wrap(services.ErrCalculation, "calculate", "plan", job.InputPath, err)
	}

	state.Output.Path = filepath.Base(plan.OutputPath)
	state.Output.Container = plan.Container
	state.Output.VideoCodec = plan.VideoCodec
	state.Output.VideoWidth = scale.Width
	state.Output.VideoHeight = scale.Height
	state.Output.VideoBitrate = bitrate.VideoBitrate
	state.Output.VideoCRF = plan.CRF
	state.Output.AudioCodec = plan.AudioCodec
	state.Output.AudioChannels = plan.AudioChannels
	state.Output.AudioBitrate = plan.AudioBitrate
	state.Output.TotalPasses = plan.Passes()

	if state.Enabled(jobstate.StageScale) && !state.Done(jobstate.StageScale) {
		state.MarkDone(jobstate.StageScale)
	}
	if err := state.Save(job.Dir); err != nil {
		return encode.Plan{}, err
	}

	log.Info("encode plan",
		logging.Int("width", scale.Width),
		logging.Int("height", scale.Height),
		logging.Int("video_bitrate", bitrate.VideoBitrate),
		logging.Float64("bpp", bitrate.BPP),
		logging.Int("passes", plan.Passes()))

	return plan, nil
}

func (e *Executor) sidecarSubtitle(job *Job) string {
	stem := strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
	path := filepath.Join(job.Dir, stem+".srt")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}

// encode runs the remaining passes. The pass number is persisted before the
// pass starts, so an interruption mid-pass restarts that pass rather than
// trusting a half-written output.
func (e *Executor) encode(ctx context.Context, job *Job, plan encode.Plan, log *slog.Logger) error {
	state := job.State
	if !state.Pending(jobstate.StageEncode) {
		return nil
	}

	passes := plan.Passes()
	start := state.Output.CurrentPass
	if start < 1 {
		start = 1
	}
	if start > 1 {
		log.Info("resuming encode", logging.Int(logging.FieldPass, start))
	}

	for pass := start; pass <= passes; pass++ {
		state.Output.CurrentPass = pass
		if err := state.Save(job.Dir); err != nil {
			return err
		}
		if err := e.encoder.RunPass(ctx, plan, pass); err != nil {
			return services.Wrap(services.ErrEncode, "encode",
				fmt.Sprintf("pass %d of %d", pass, passes), job.InputPath, err)
		}
	}

	state.MarkDone(jobstate.StageEncode)
	return state.Save(job.Dir)
}

// finalize renames the temp output to its final name inside the job
// directory. When the final name collides with the input, the input survives
// as a .source sibling; a re-run never clobbers that backup.
func (e *Executor) finalize(job *Job, plan encode.Plan, log *slog.Logger) (string, error) {
	state := job.State

	stem := strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
	finalPath := filepath.Join(job.Dir, stem+"."+plan.Container)

	if !state.Pending(jobstate.StageMux) {
		return finalPath, nil
	}

	log.Info("finalizing output",
		logging.String(logging.FieldStage, jobstate.StageMux.String()),
		logging.String("output", filepath.Base(finalPath)))

	if _, err := os.Stat(plan.OutputPath); err != nil {
		if !os.IsNotExist(err) {
			return "", services.Wrap(services.ErrFinalize, "finalize", "temp output", plan.OutputPath, err)
		}
		// No temp output to promote: encoding was disabled or the file was
		// produced out of band. Nothing to rename.
		state.Output.Path = filepath.Base(finalPath)
		state.MarkDone(jobstate.StageMux)
		if err := state.Save(job.Dir); err != nil {
			return "", err
		}
		return finalPath, nil
	}

	if _, err := os.Stat(finalPath); err == nil {
		backup := finalPath + ".source"
		if _, err := os.Stat(backup); os.IsNotExist(err) {
			if err := os.Rename(finalPath, backup); err != nil {
				return "", services.Wrap(services.ErrFinalize, "finalize", "preserve source", finalPath, err)
			}
		}
	}

	if err := os.Rename(plan.OutputPath, finalPath); err != nil {
		return "", services.Wrap(services.ErrFinalize, "finalize", "rename", plan.OutputPath, err)
	}

	state.Output.Path = filepath.Base(finalPath)
	state.MarkDone(jobstate.StageMux)
	if err := state.Save(job.Dir); err != nil {
		return "", err
	}
	return finalPath, nil
}

// relocate moves the finished file to the output directory, keeping any
// previous delivery as a .old sibling.
func (e *Executor) relocate(job *Job, finalPath string, log *slog.Logger) error {
	state := job.State
	if !state.Pending(jobstate.StageMove) {
		return nil
	}

	dest := filepath.Join(e.cfg.Paths.OutputDir, filepath.Base(finalPath))
	log.Info("relocating output",
		logging.String(logging.FieldStage, jobstate.StageMove.String()),
		logging.String("dest", dest))

	if err := os.MkdirAll(e.cfg.Paths.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrRelocate, "relocate", "output dir", e.cfg.Paths.OutputDir, err)
	}

	if _, err := os.Stat(dest); err == nil {
		if err := os.Rename(dest, dest+".old"); err != nil {
			return services.Wrap(services.ErrRelocate, "relocate", "preserve previous", dest, err)
		}
	}

	if err := fileutil.MoveFile(finalPath, dest); err != nil {
		return services.Wrap(services.ErrRelocate, "relocate", "move", finalPath, err)
	}

	state.Output.Path = dest
	state.MarkDone(jobstate.StageMove)
	return state.Save(job.Dir)
}
