package encode

import (
	"fmt"
	"path/filepath"
	"strings"

	"mmprocess/internal/config"
	"mmprocess/internal/media/cropdetect"
	"mmprocess/internal/media/ffprobe"
	"mmprocess/internal/sizing"
)

// TempOutputStem is the basename (without extension) of the in-progress
// encode inside a job directory.
const TempOutputStem = "temp_output"

// Plan is everything an encode needs, resolved ahead of time so an
// interrupted job replays the exact same command on resume.
type Plan struct {
	InputPath  string
	OutputPath string
	Container  string

	VideoCodec   string
	CRF          *int
	VideoBitrate int
	VideoOpts    string

	// Width/Height are the scale target; zero means keep source dimensions.
	Width  int
	Height int

	Crop        *cropdetect.Rect
	Deinterlace bool
	Denoise     bool

	// SubtitleFile burns an external file; SubtitleIndex burns an embedded
	// track by subtitle-relative index. SubtitleFile wins when both are set.
	SubtitleFile  string
	SubtitleIndex *int

	AudioStreamIndex int
	AudioCodec       string
	AudioChannels    int
	AudioBitrate     int

	Title       string
	PassLogPath string
}

// Passes returns how many encode passes the plan needs. Stream copy and
// constant-quality encodes are single pass; bitrate-targeted encodes run two
// passes so the rate control can hit the size target.
func (p Plan) Passes() int {
	if p.VideoCodec == "copy" {
		return 1
	}
	if p.CRF != nil {
		return 1
	}
	if p.VideoBitrate > 0 {
		return 2
	}
	return 1
}

// BuildPlan resolves a plan from the probed input, the profile, and the
// sizing results. workDir is the job directory; the temp output and two-pass
// rate control logs land there.
func BuildPlan(
	profile *config.Profile,
	info ffprobe.Info,
	scale sizing.ScaleResult,
	bitrate sizing.BitrateResult,
	crop *cropdetect.Rect,
	audioLanguage string,
	subtitleFile string,
	workDir string,
) (Plan, error) {
	video := info.PrimaryVideo()
	if video == nil {
		return Plan{}, sizing.ErrNoVideoStream
	}

	container := profile.Container
	if container == "" {
		container = "mp4"
	}

	plan := Plan{
		InputPath:    info.Path,
		OutputPath:   filepath.Join(workDir, TempOutputStem+"."+container),
		Container:    container,
		VideoCodec:   profile.Video.Codec,
		CRF:          profile.Video.CRF,
		VideoBitrate: bitrate.VideoBitrate,
		VideoOpts:    profile.Video.Opts,
		Deinterlace:  profile.Processing.Deinterlace,
		Denoise:      profile.Processing.Denoise,
		Title:        strings.TrimSuffix(filepath.Base(info.Path), filepath.Ext(info.Path)),
		PassLogPath:  filepath.Join(workDir, "ffmpeg2pass"),
	}

	if profile.Processing.Crop {
		plan.Crop = crop
	}
	if profile.Processing.Scale && scale.Scaled {
		plan.Width = scale.Width
		plan.Height = scale.Height
	}

	audio := info.AudioByLanguage(audioLanguage)
	if audio != nil {
		plan.AudioStreamIndex = audio.Index
		plan.AudioCodec = profile.Audio.Codec
		if audio.Channels >= 6 && profile.Audio.Channels >= 6 {
			plan.AudioChannels = 6
			plan.AudioBitrate = profile.Audio.Bitrate
		} else {
			plan.AudioChannels = 2
			plan.AudioBitrate = stereoBitrate(profile.Audio.Bitrate)
		}
	}

	if profile.Processing.Subtitles {
		if subtitleFile != "" {
			plan.SubtitleFile = subtitleFile
		} else if forced := info.ForcedSubtitle(); forced != nil {
			idx := forced.Index
			plan.SubtitleIndex = &idx
		}
	}

	return plan, nil
}

func stereoBitrate(profileBitrate int) int {
	if profileBitrate > 0 && profileBitrate < 128 {
		return profileBitrate
	}
	return 128
}

// BuildFilter assembles the -vf chain in fixed order: crop, deinterlace,
// scale, denoise, subtitles. An empty string means no filtering.
func BuildFilter(p Plan) string {
	var filters []string

	if p.Crop != nil {
		filters = append(filters, "crop="+p.Crop.String())
	}
	if p.Deinterlace {
		filters = append(filters, "yadif")
	}
	if p.Width > 0 && p.Height > 0 {
		filters = append(filters, fmt.Sprintf("scale=%d:%d:flags=lanczos", p.Width, p.Height))
	}
	if p.Denoise {
		filters = append(filters, "hqdn3d")
	}
	if p.SubtitleFile != "" {
		filters = append(filters, "subtitles="+escapeFilterPath(p.SubtitleFile))
	} else if p.SubtitleIndex != nil {
		filters = append(filters,
			fmt.Sprintf("subtitles=%s:si=%d", escapeFilterPath(p.InputPath), *p.SubtitleIndex))
	}

	return strings.Join(filters, ",")
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter argument,
// where colons and quotes are structural.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
	)
	return replacer.Replace(path)
}

// BuildArgs renders the full ffmpeg argument list for one pass. Pass numbers
// start at 1. The first pass of a two-pass encode analyzes only, discarding
// output and audio.
func BuildArgs(p Plan, pass int) []string {
	passes := p.Passes()
	analysisPass := passes == 2 && pass == 1

	args := []string{"-y", "-hide_banner", "-i", p.InputPath}

	args = append(args, "-map", "0:v:0")
	if !analysisPass && p.AudioCodec != "" {
		args = append(args, "-map", fmt.Sprintf("0:%d", p.AudioStreamIndex))
	}

	args = append(args, "-fps_mode", "cfr")
	args = append(args, "-c:v", p.VideoCodec)

	if p.VideoCodec != "copy" {
		args = append(args, "-pix_fmt", "yuv420p")
		if p.VideoCodec == "libx265" && p.Container == "mp4" {
			args = append(args, "-tag:v", "hvc1")
		}
		if filter := BuildFilter(p); filter != "" {
			args = append(args, "-vf", filter)
		}
		if p.CRF != nil {
			args = append(args, "-crf", fmt.Sprintf("%d", *p.CRF))
		} else if p.VideoBitrate > 0 {
			args = append(args, "-b:v", fmt.Sprintf("%dk", p.VideoBitrate))
		}
		if p.VideoOpts != "" {
			args = append(args, strings.Fields(p.VideoOpts)...)
		}
		if passes == 2 {
			args = append(args,
				"-pass", fmt.Sprintf("%d", pass),
				"-passlogfile", p.PassLogPath)
		}
	}

	if analysisPass {
		args = append(args, "-an", "-f", "null", "-")
		return args
	}

	if p.AudioCodec != "" {
		args = append(args, "-c:a", p.AudioCodec)
		if p.AudioChannels > 0 {
			args = append(args, "-ac", fmt.Sprintf("%d", p.AudioChannels))
		}
		if p.AudioBitrate > 0 {
			args = append(args, "-b:a", fmt.Sprintf("%dk", p.AudioBitrate))
		}
		if p.AudioChannels == 6 {
			args = append(args, "-af", "channelmap=channel_layout=5.1")
		}
	} else {
		args = append(args, "-an")
	}

	if p.Container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	if p.Title != "" {
		args = append(args, "-metadata", "title="+p.Title)
	}

	args = append(args, p.OutputPath)
	return args
}
