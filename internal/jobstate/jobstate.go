package jobstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mmprocess/internal/fileutil"
)

// Version is the state record format version written by this build.
const Version = "2.0.0"

// FileName is the canonical state file inside a job directory.
const FileName = "state.json"

// Stage identifies one unit of pipeline work.
type Stage int

const (
	StageProbe Stage = iota
	StageCrop
	StageScale
	StageEncode
	StageMux
	StageMove
)

var stageNames = [...]string{"probe", "crop", "scale", "encode", "mux", "move"}

// Stages lists every stage in execution order.
func Stages() []Stage {
	return []Stage{StageProbe, StageCrop, StageScale, StageEncode, StageMux, StageMove}
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageFlags records one boolean per stage.
type StageFlags struct {
	Probe  bool `json:"probe"`
	Crop   bool `json:"crop"`
	Scale  bool `json:"scale"`
	Encode bool `json:"encode"`
	Mux    bool `json:"mux"`
	Move   bool `json:"move"`
}

// AllStages returns flags with every stage set.
func AllStages() StageFlags {
	return StageFlags{Probe: true, Crop: true, Scale: true, Encode: true, Mux: true, Move: true}
}

// Get reports the flag for stage.
func (f StageFlags) Get(stage Stage) bool {
	switch stage {
	case StageProbe:
		return f.Probe
	case StageCrop:
		return f.Crop
	case StageScale:
		return f.Scale
	case StageEncode:
		return f.Encode
	case StageMux:
		return f.Mux
	case StageMove:
		return f.Move
	}
	return false
}

// Set updates the flag for stage.
func (f *StageFlags) Set(stage Stage, value bool) {
	switch stage {
	case StageProbe:
		f.Probe = value
	case StageCrop:
		f.Crop = value
	case StageScale:
		f.Scale = value
	case StageEncode:
		f.Encode = value
	case StageMux:
		f.Mux = value
	case StageMove:
		f.Move = value
	}
}

// Input is the snapshot of the source file taken at probe time.
type Input struct {
	Path          string  `json:"path"`
	Size          int64   `json:"size"`
	Format        string  `json:"format"`
	Duration      float64 `json:"duration"`
	VideoCodec    string  `json:"video_codec"`
	VideoWidth    int     `json:"video_width"`
	VideoHeight   int     `json:"video_height"`
	VideoFPS      float64 `json:"video_fps"`
	AudioCodec    string  `json:"audio_codec"`
	AudioChannels int     `json:"audio_channels"`
	AudioBitrate  int     `json:"audio_bitrate"`
}

// Output is the encode plan derived from the input and profile. Crop is a
// four element W,H,X,Y slice, or empty when no crop applies. CurrentPass is
// the pass an interrupted encode should restart from.
type Output struct {
	Path          string `json:"path"`
	Container     string `json:"container"`
	VideoCodec    string `json:"video_codec"`
	VideoWidth    int    `json:"video_width"`
	VideoHeight   int    `json:"video_height"`
	VideoBitrate  int    `json:"video_bitrate"`
	VideoCRF      *int   `json:"video_crf,omitempty"`
	AudioCodec    string `json:"audio_codec"`
	AudioChannels int    `json:"audio_channels"`
	AudioBitrate  int    `json:"audio_bitrate"`
	Crop          []int  `json:"crop,omitempty"`
	CurrentPass   int    `json:"current_pass"`
	TotalPasses   int    `json:"total_passes"`
}

// State is the persistent record for one job. Everything the pipeline needs
// to resume after an interruption lives here.
type State struct {
	Version      string     `json:"version"`
	Profile      string     `json:"profile"`
	Created      string     `json:"created"`
	Updated      string     `json:"updated"`
	StepsEnabled StageFlags `json:"steps_enabled"`
	StepsDone    StageFlags `json:"steps_done"`
	Input        Input      `json:"input"`
	Output       Output     `json:"output"`
	Error        string     `json:"error,omitempty"`
}

// New returns a fresh State for a job using profileName with the given
// stages enabled.
func New(profileName string, enabled StageFlags) *State {
	now := time.Now().UTC().Format(time.RFC3339)
	return &State{
		Version:      Version,
		Profile:      profileName,
		Created:      now,
		Updated:      now,
		StepsEnabled: enabled,
	}
}

// Enabled reports whether stage is switched on for this job.
func (s *State) Enabled(stage Stage) bool { return s.StepsEnabled.Get(stage) }

// Done reports whether stage has completed.
func (s *State) Done(stage Stage) bool { return s.StepsDone.Get(stage) }

// Pending reports whether stage is enabled and not yet done.
func (s *State) Pending(stage Stage) bool { return s.Enabled(stage) && !s.Done(stage) }

// MarkDone records stage completion. The caller persists separately.
func (s *State) MarkDone(stage Stage) { s.StepsDone.Set(stage, true) }

// Path returns the state file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Save writes the state into dir atomically, stamping Updated first. A crash
// mid-write leaves the previous state file intact.
func (s *State) Save(dir string) error {
	s.Updated = time.Now().UTC().Format(time.RFC3339)
	if s.Version == "" {
		s.Version = Version
	}

	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job state: %w", err)
	}
	payload = append(payload, '\n')

	if err := fileutil.WriteFileAtomic(Path(dir), payload, 0o644); err != nil {
		return fmt.Errorf("write job state: %w", err)
	}
	return nil
}

// ErrNotFound reports a job directory without any recognizable state record.
var ErrNotFound = errors.New("job state not found")

// Load reads the state record from dir. When no state.json exists it falls
// back to a legacy INI record named after the directory, migrates it, and
// persists the migrated form so later loads take the fast path.
func Load(dir string) (*State, error) {
	payload, err := os.ReadFile(Path(dir))
	if err == nil {
		var state State
		if err := json.Unmarshal(payload, &state); err != nil {
			return nil, fmt.Errorf("decode job state: %w", err)
		}
		return &state, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read job state: %w", err)
	}

	legacyPath := filepath.Join(dir, filepath.Base(dir)+".cfg")
	if _, statErr := os.Stat(legacyPath); statErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}

	state, err := loadLegacy(legacyPath)
	if err != nil {
		return nil, err
	}
	if err := state.Save(dir); err != nil {
		return nil, err
	}
	return state, nil
}
