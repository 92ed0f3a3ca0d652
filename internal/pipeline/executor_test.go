package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"mmprocess/internal/config"
	"mmprocess/internal/encode"
	"mmprocess/internal/jobstate"
	"mmprocess/internal/logging"
	"mmprocess/internal/media/cropdetect"
	"mmprocess/internal/media/ffprobe"
	"mmprocess/internal/services"
)

type fakeProber struct {
	info ffprobe.Info
	err  error
}

func (f fakeProber) Inspect(_ context.Context, path string) (ffprobe.Info, error) {
	if f.err != nil {
		return ffprobe.Info{}, f.err
	}
	info := f.info
	info.Path = path
	return info, nil
}

type fakeDetector struct {
	rect  *cropdetect.Rect
	err   error
	calls int
}

func (f *fakeDetector) Detect(_ context.Context, _ string, _ float64) (*cropdetect.Rect, error) {
	f.calls++
	return f.rect, f.err
}

type fakeEncoder struct {
	failAt int
	passes []int
}

func (f *fakeEncoder) RunPass(_ context.Context, plan encode.Plan, pass int) error {
	f.passes = append(f.passes, pass)
	if f.failAt != 0 && pass == f.failAt {
		return fmt.Errorf("simulated failure at pass %d", pass)
	}
	return os.WriteFile(plan.OutputPath, []byte("encoded"), 0o644)
}

func sampleInfo() ffprobe.Info {
	return ffprobe.Info{
		Format:   "matroska",
		Duration: 3600,
		Size:     2 << 30,
		Video: []ffprobe.VideoStream{
			{Index: 0, Codec: "h264", Width: 1920, Height: 1080, FPS: 24},
		},
		Audio: []ffprobe.AudioStream{
			{Index: 1, Codec: "dts", Channels: 6, Bitrate: 1536000, Language: "eng"},
		},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Paths.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Defaults.Container = "mp4"
	cfg.Defaults.AudioLanguage = "eng"
	return cfg
}

func newTestJob(t *testing.T) *Job {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "movie")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	input := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(input, []byte("source"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	state := jobstate.New("default", jobstate.AllStages())
	if err := state.Save(dir); err != nil {
		t.Fatalf("save state: %v", err)
	}

	profile := config.DefaultProfile("default")
	profile.Container = "mp4"
	return &Job{Dir: dir, InputPath: input, State: state, Profile: profile}
}

func newExecutor(cfg *config.Config, prober Prober, detector CropDetector, encoder Encoder) *Executor {
	return NewWithTools(cfg, prober, detector, encoder, logging.NewNop())
}

func TestExecuteFullRun(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	rect := &cropdetect.Rect{Width: 1920, Height: 800, X: 0, Y: 140}
	detector := &fakeDetector{rect: rect}
	encoder := &fakeEncoder{}

	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, detector, encoder)
	if err := exec.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	state, err := jobstate.Load(job.Dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, stage := range jobstate.Stages() {
		if !state.Done(stage) {
			t.Errorf("stage %s not done", stage)
		}
	}
	if state.Error != "" {
		t.Errorf("state error = %q, want empty", state.Error)
	}
	if state.Input.VideoWidth != 1920 || state.Input.AudioChannels != 6 {
		t.Errorf("input snapshot = %+v", state.Input)
	}
	if len(state.Output.Crop) != 4 || state.Output.Crop[1] != 800 {
		t.Errorf("crop = %v", state.Output.Crop)
	}
	if state.Output.TotalPasses != 2 {
		t.Errorf("total passes = %d, want 2", state.Output.TotalPasses)
	}

	if len(encoder.passes) != 2 || encoder.passes[0] != 1 || encoder.passes[1] != 2 {
		t.Errorf("encoder passes = %v, want [1 2]", encoder.passes)
	}

	delivered := filepath.Join(cfg.Paths.OutputDir, "movie.mp4")
	if _, err := os.Stat(delivered); err != nil {
		t.Errorf("delivered output missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(job.Dir, "temp_output.mp4")); !os.IsNotExist(err) {
		t.Errorf("temp output should be gone: %v", err)
	}
}

func TestExecuteResumesFailedPass(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	detector := &fakeDetector{}
	failing := &fakeEncoder{failAt: 2}

	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, detector, failing)
	err := exec.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("err = %v, want ErrEncode", err)
	}

	state, loadErr := jobstate.Load(job.Dir)
	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if state.Error == "" {
		t.Error("failure should be recorded in state")
	}
	if state.Output.CurrentPass != 2 {
		t.Errorf("current_pass = %d, want 2", state.Output.CurrentPass)
	}
	if state.Done(jobstate.StageEncode) {
		t.Error("encode must not be marked done after a failed pass")
	}

	// Resume: a fresh executor picks up from the persisted pass.
	job.State = state
	working := &fakeEncoder{}
	exec = newExecutor(cfg, fakeProber{info: sampleInfo()}, &fakeDetector{}, working)
	if err := exec.Execute(context.Background(), job); err != nil {
		t.Fatalf("resume Execute: %v", err)
	}
	if len(working.passes) != 1 || working.passes[0] != 2 {
		t.Errorf("resume passes = %v, want [2]", working.passes)
	}
}

func TestExecuteRestartsPersistedPass(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	failing := &fakeEncoder{failAt: 1}

	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, &fakeDetector{}, failing)
	if err := exec.Execute(context.Background(), job); !errors.Is(err, services.ErrEncode) {
		t.Fatalf("err = %v, want ErrEncode", err)
	}

	state, err := jobstate.Load(job.Dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Output.CurrentPass != 1 {
		t.Fatalf("current_pass = %d, want 1", state.Output.CurrentPass)
	}

	job.State = state
	working := &fakeEncoder{}
	exec = newExecutor(cfg, fakeProber{info: sampleInfo()}, &fakeDetector{}, working)
	if err := exec.Execute(context.Background(), job); err != nil {
		t.Fatalf("resume Execute: %v", err)
	}
	if len(working.passes) != 2 || working.passes[0] != 1 {
		t.Errorf("resume passes = %v, want [1 2]", working.passes)
	}
}

func TestExecuteReplaysPersistedCrop(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	job.State.MarkDone(jobstate.StageCrop)
	job.State.Output.Crop = []int{1920, 1040, 0, 20}

	detector := &fakeDetector{rect: &cropdetect.Rect{Width: 1, Height: 1}}
	encoder := &fakeEncoder{}
	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, detector, encoder)
	if err := exec.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if detector.calls != 0 {
		t.Errorf("detector ran %d times for a completed stage", detector.calls)
	}
	state, err := jobstate.Load(job.Dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(state.Output.Crop) != 4 || state.Output.Crop[1] != 1040 {
		t.Errorf("persisted crop changed: %v", state.Output.Crop)
	}
}

func TestExecuteDisabledStagesSkipped(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	job.State.StepsEnabled.Crop = false
	job.State.StepsEnabled.Move = false

	detector := &fakeDetector{rect: &cropdetect.Rect{Width: 1, Height: 1}}
	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, detector, &fakeEncoder{})
	if err := exec.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if detector.calls != 0 {
		t.Error("disabled crop stage ran")
	}
	if _, err := os.Stat(filepath.Join(job.Dir, "movie.mp4")); err != nil {
		t.Errorf("final output should stay in the job dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, "movie.mp4")); !os.IsNotExist(err) {
		t.Errorf("disabled move stage still delivered: %v", err)
	}
}

func TestProbeFailureIsClassified(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)

	exec := newExecutor(cfg, fakeProber{err: errors.New("corrupt header")}, &fakeDetector{}, &fakeEncoder{})
	err := exec.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrProbe) {
		t.Fatalf("err = %v, want ErrProbe", err)
	}

	state, loadErr := jobstate.Load(job.Dir)
	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if state.Error == "" {
		t.Error("probe failure not recorded in state")
	}
}

func TestNoVideoStreamIsCalculationError(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	info := sampleInfo()
	info.Video = nil

	exec := newExecutor(cfg, fakeProber{info: info}, &fakeDetector{}, &fakeEncoder{})
	if err := exec.Execute(context.Background(), job); !errors.Is(err, services.ErrCalculation) {
		t.Fatalf("err = %v, want ErrCalculation", err)
	}
}

func TestFinalizePreservesSourceOnce(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	job.Profile.Container = "mkv"
	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, &fakeDetector{}, &fakeEncoder{})

	plan := encode.Plan{
		OutputPath: filepath.Join(job.Dir, "temp_output.mkv"),
		Container:  "mkv",
	}
	if err := os.WriteFile(plan.OutputPath, []byte("first encode"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	finalPath, err := exec.finalize(job, plan, logging.NewNop())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalPath != job.InputPath {
		t.Fatalf("final path = %q, want collision with input %q", finalPath, job.InputPath)
	}

	backup := finalPath + ".source"
	payload, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("source backup missing: %v", err)
	}
	if string(payload) != "source" {
		t.Errorf("backup content = %q, want original input", payload)
	}

	// Second finalize must not clobber the original backup.
	job.State.StepsDone.Mux = false
	if err := os.WriteFile(plan.OutputPath, []byte("second encode"), 0o644); err != nil {
		t.Fatalf("write temp again: %v", err)
	}
	if _, err := exec.finalize(job, plan, logging.NewNop()); err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	payload, err = os.ReadFile(backup)
	if err != nil {
		t.Fatalf("source backup missing after rerun: %v", err)
	}
	if string(payload) != "source" {
		t.Errorf("backup was overwritten: %q", payload)
	}
}

func TestFinalizeWithoutTempOutput(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, &fakeDetector{}, &fakeEncoder{})

	// A state migrated with encoding disabled never produced a temp file;
	// finalize has nothing to rename and moves on.
	plan := encode.Plan{
		OutputPath: filepath.Join(job.Dir, "temp_output.mp4"),
		Container:  "mp4",
	}

	finalPath, err := exec.finalize(job, plan, logging.NewNop())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalPath != filepath.Join(job.Dir, "movie.mp4") {
		t.Errorf("final path = %q", finalPath)
	}
	if !job.State.Done(jobstate.StageMux) {
		t.Error("mux stage not marked done")
	}
	if _, err := os.Stat(finalPath + ".source"); !os.IsNotExist(err) {
		t.Errorf("unexpected source backup: %v", err)
	}

	payload, err := os.ReadFile(job.InputPath)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if string(payload) != "source" {
		t.Errorf("input content changed: %q", payload)
	}
}

func TestRelocateKeepsPreviousDelivery(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)

	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		t.Fatalf("mkdir out: %v", err)
	}
	dest := filepath.Join(cfg.Paths.OutputDir, "movie.mp4")
	if err := os.WriteFile(dest, []byte("previous"), 0o644); err != nil {
		t.Fatalf("write previous delivery: %v", err)
	}

	final := filepath.Join(job.Dir, "movie.mp4")
	if err := os.WriteFile(final, []byte("fresh"), 0o644); err != nil {
		t.Fatalf("write final: %v", err)
	}

	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, &fakeDetector{}, &fakeEncoder{})
	if err := exec.relocate(job, final, logging.NewNop()); err != nil {
		t.Fatalf("relocate: %v", err)
	}

	payload, err := os.ReadFile(dest + ".old")
	if err != nil {
		t.Fatalf("previous delivery not preserved: %v", err)
	}
	if string(payload) != "previous" {
		t.Errorf(".old content = %q", payload)
	}
	payload, err = os.ReadFile(dest)
	if err != nil {
		t.Fatalf("new delivery missing: %v", err)
	}
	if string(payload) != "fresh" {
		t.Errorf("delivery content = %q", payload)
	}

	if job.State.Output.Path != dest {
		t.Errorf("recorded output = %q, want delivered path %q", job.State.Output.Path, dest)
	}
	state, err := jobstate.Load(job.Dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.Output.Path != dest {
		t.Errorf("persisted output = %q, want %q", state.Output.Path, dest)
	}
}

func TestSidecarSubtitleBurnsIn(t *testing.T) {
	cfg := testConfig(t)
	job := newTestJob(t)
	srt := filepath.Join(job.Dir, "movie.srt")
	if err := os.WriteFile(srt, []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"), 0o644); err != nil {
		t.Fatalf("write srt: %v", err)
	}

	exec := newExecutor(cfg, fakeProber{info: sampleInfo()}, &fakeDetector{}, &fakeEncoder{})
	if got := exec.sidecarSubtitle(job); got != srt {
		t.Errorf("sidecar = %q, want %q", got, srt)
	}
}
