package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// VideoStream describes a video stream in the container.
type VideoStream struct {
	Index              int
	Codec              string
	Width              int
	Height             int
	FPS                float64
	Duration           float64
	Bitrate            int64
	PixelFormat        string
	DisplayAspectRatio string
}

// AudioStream describes an audio stream in the container.
type AudioStream struct {
	Index      int
	Codec      string
	Channels   int
	SampleRate int
	Bitrate    int64
	Language   string
}

// SubtitleStream describes a subtitle stream. Index is subtitle-relative so
// it can feed ffmpeg's si= filter option directly.
type SubtitleStream struct {
	Index    int
	Codec    string
	Language string
	Forced   bool
}

// Info is the parsed result of probing a media file.
type Info struct {
	Path      string
	Format    string
	Duration  float64
	Size      int64
	Bitrate   int64
	Video     []VideoStream
	Audio     []AudioStream
	Subtitles []SubtitleStream
}

// PrimaryVideo returns the first video stream, or nil.
func (i Info) PrimaryVideo() *VideoStream {
	if len(i.Video) == 0 {
		return nil
	}
	return &i.Video[0]
}

// PrimaryAudio returns the first audio stream, or nil.
func (i Info) PrimaryAudio() *AudioStream {
	if len(i.Audio) == 0 {
		return nil
	}
	return &i.Audio[0]
}

// ForcedSubtitle returns the forced subtitle track if one exists.
func (i Info) ForcedSubtitle() *SubtitleStream {
	for idx := range i.Subtitles {
		if i.Subtitles[idx].Forced {
			return &i.Subtitles[idx]
		}
	}
	return nil
}

// AudioByLanguage returns the best audio stream for the preferred ISO 639
// language code. Among matches it prefers the track with the most channels
// (5.1 over stereo); with no language match it falls back to the track with
// the most channels overall.
func (i Info) AudioByLanguage(preferred string) *AudioStream {
	if len(i.Audio) == 0 {
		return nil
	}

	var best *AudioStream
	for idx := range i.Audio {
		stream := &i.Audio[idx]
		if !strings.EqualFold(stream.Language, preferred) {
			continue
		}
		if best == nil || stream.Channels > best.Channels {
			best = stream
		}
	}
	if best != nil {
		return best
	}

	best = &i.Audio[0]
	for idx := range i.Audio {
		if i.Audio[idx].Channels > best.Channels {
			best = &i.Audio[idx]
		}
	}
	return best
}

// raw ffprobe JSON shapes.
type rawResult struct {
	Streams []rawStream `json:"streams"`
	Format  rawFormat   `json:"format"`
}

type rawStream struct {
	Index              int               `json:"index"`
	CodecName          string            `json:"codec_name"`
	CodecType          string            `json:"codec_type"`
	Width              int               `json:"width"`
	Height             int               `json:"height"`
	RFrameRate         string            `json:"r_frame_rate"`
	Duration           string            `json:"duration"`
	BitRate            string            `json:"bit_rate"`
	PixFmt             string            `json:"pix_fmt"`
	DisplayAspectRatio string            `json:"display_aspect_ratio"`
	SampleRate         string            `json:"sample_rate"`
	Channels           int               `json:"channels"`
	Tags               map[string]string `json:"tags"`
	Disposition        map[string]int    `json:"disposition"`
}

type rawFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response into a typed Info.
func Inspect(ctx context.Context, binary, path string) (Info, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Info{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"--", path)
	output, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(path, output)
}

// Parse decodes raw ffprobe JSON output for path into Info.
func Parse(path string, payload []byte) (Info, error) {
	var raw rawResult
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Info{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	formatName := raw.Format.FormatName
	if idx := strings.Index(formatName, ","); idx >= 0 {
		formatName = formatName[:idx]
	}

	info := Info{
		Path:     path,
		Format:   formatName,
		Duration: parseFloat(raw.Format.Duration),
		Size:     parseInt(raw.Format.Size),
		Bitrate:  parseInt(raw.Format.BitRate),
	}

	for _, stream := range raw.Streams {
		switch stream.CodecType {
		case "video":
			duration := parseFloat(stream.Duration)
			if duration == 0 {
				duration = info.Duration
			}
			info.Video = append(info.Video, VideoStream{
				Index:              stream.Index,
				Codec:              codecOrUnknown(stream.CodecName),
				Width:              stream.Width,
				Height:             stream.Height,
				FPS:                ParseFrameRate(stream.RFrameRate),
				Duration:           duration,
				Bitrate:            parseInt(stream.BitRate),
				PixelFormat:        stream.PixFmt,
				DisplayAspectRatio: stream.DisplayAspectRatio,
			})
		case "audio":
			info.Audio = append(info.Audio, AudioStream{
				Index:      stream.Index,
				Codec:      codecOrUnknown(stream.CodecName),
				Channels:   stream.Channels,
				SampleRate: int(parseInt(stream.SampleRate)),
				Bitrate:    parseInt(stream.BitRate),
				Language:   stream.Tags["language"],
			})
		case "subtitle":
			info.Subtitles = append(info.Subtitles, SubtitleStream{
				Index:    len(info.Subtitles),
				Codec:    codecOrUnknown(stream.CodecName),
				Language: stream.Tags["language"],
				Forced:   stream.Disposition["forced"] == 1,
			})
		}
	}

	return info, nil
}

// ParseFrameRate parses an ffprobe frame rate string such as "24000/1001" or
// "25".
func ParseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if num, den, ok := strings.Cut(value, "/"); ok {
		n := parseFloat(num)
		d := parseFloat(den)
		if d == 0 {
			return 0
		}
		return n / d
	}
	return parseFloat(value)
}

func codecOrUnknown(name string) string {
	if strings.TrimSpace(name) == "" {
		return "unknown"
	}
	return name
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt(value string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return int64(parseFloat(value))
	}
	return parsed
}
