package cropdetect

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

const (
	// defaultSamples is the number of probe points spread across the file.
	defaultSamples = 10
	// defaultWindow is how many seconds of video each probe analyzes.
	defaultWindow = 2.0
	// edgeFraction of the duration is skipped at each end so titles and
	// credits do not skew the consensus.
	edgeFraction = 0.1
)

// Rect is a crop rectangle in ffmpeg crop filter order.
type Rect struct {
	Width  int
	Height int
	X      int
	Y      int
}

// String renders the rectangle as a crop filter argument, "W:H:X:Y".
func (r Rect) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", r.Width, r.Height, r.X, r.Y)
}

// ParseRect parses a "W:H:X:Y" rectangle.
func ParseRect(value string) (Rect, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("crop rect %q: want W:H:X:Y", value)
	}
	nums := make([]int, 4)
	for i, part := range parts {
		parsed, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Rect{}, fmt.Errorf("crop rect %q: %w", value, err)
		}
		nums[i] = parsed
	}
	return Rect{Width: nums[0], Height: nums[1], X: nums[2], Y: nums[3]}, nil
}

// Measurer produces crop rectangle candidates for a window of video starting
// at the given offset.
type Measurer interface {
	Measure(ctx context.Context, path string, start, window float64) ([]Rect, error)
}

var cropPattern = regexp.MustCompile(`crop=(\d+):(\d+):(\d+):(\d+)`)

// FFmpegMeasurer runs ffmpeg's cropdetect filter over a sample window and
// collects the rectangles it reports.
type FFmpegMeasurer struct {
	Binary string
}

// Measure implements Measurer by parsing cropdetect lines from ffmpeg's
// stderr. ffmpeg exits non-zero for the null muxer in some builds, so output
// that contains crop candidates wins over the exit status.
func (m FFmpegMeasurer) Measure(ctx context.Context, path string, start, window float64) ([]Rect, error) {
	binary := m.Binary
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner",
		"-ss", strconv.FormatFloat(start, 'f', 2, 64),
		"-i", path,
		"-t", strconv.FormatFloat(window, 'f', 2, 64),
		"-vf", "cropdetect=24:16:0",
		"-f", "null", "-")
	output, err := cmd.CombinedOutput()

	rects := parseCandidates(string(output))
	if len(rects) == 0 && err != nil {
		return nil, fmt.Errorf("cropdetect sample at %.2fs: %w", start, err)
	}
	return rects, nil
}

func parseCandidates(output string) []Rect {
	matches := cropPattern.FindAllStringSubmatch(output, -1)
	rects := make([]Rect, 0, len(matches))
	for _, match := range matches {
		w, _ := strconv.Atoi(match[1])
		h, _ := strconv.Atoi(match[2])
		x, _ := strconv.Atoi(match[3])
		y, _ := strconv.Atoi(match[4])
		rects = append(rects, Rect{Width: w, Height: h, X: x, Y: y})
	}
	return rects
}

// Detector samples a file at several offsets and picks the modal crop
// rectangle across all candidates.
type Detector struct {
	Measurer Measurer
	Samples  int
	Window   float64
}

// NewDetector returns a Detector with the default sampling scheme backed by
// the given ffmpeg binary.
func NewDetector(ffmpegBinary string) *Detector {
	return &Detector{
		Measurer: FFmpegMeasurer{Binary: ffmpegBinary},
		Samples:  defaultSamples,
		Window:   defaultWindow,
	}
}

// Detect probes the middle 80% of the file at evenly spaced offsets and
// returns the most common rectangle. Ties go to the rectangle seen first.
// A nil Rect means no candidate was found and the source should be encoded
// uncropped.
func (d *Detector) Detect(ctx context.Context, path string, duration float64) (*Rect, error) {
	samples := d.Samples
	if samples <= 0 {
		samples = defaultSamples
	}
	window := d.Window
	if window <= 0 {
		window = defaultWindow
	}

	start := duration * edgeFraction
	span := duration * (1 - 2*edgeFraction)
	interval := 0.0
	if samples > 1 {
		interval = span / float64(samples)
	}

	counts := make(map[Rect]int)
	order := make([]Rect, 0, samples)

	for i := 0; i < samples; i++ {
		offset := start + float64(i)*interval
		rects, err := d.Measurer.Measure(ctx, path, offset, window)
		if err != nil {
			return nil, err
		}
		for _, rect := range rects {
			if counts[rect] == 0 {
				order = append(order, rect)
			}
			counts[rect]++
		}
	}

	if len(order) == 0 {
		return nil, nil
	}

	best := order[0]
	for _, rect := range order[1:] {
		if counts[rect] > counts[best] {
			best = rect
		}
	}
	return &best, nil
}
