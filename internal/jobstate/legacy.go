package jobstate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Legacy INI records predate the JSON format. Section and key names follow
// the old layout; the "info" step maps onto probe.
var legacyStepKeys = map[string]Stage{
	"info":   StageProbe,
	"probe":  StageProbe,
	"crop":   StageCrop,
	"scale":  StageScale,
	"encode": StageEncode,
	"mux":    StageMux,
	"move":   StageMove,
}

func loadLegacy(path string) (*State, error) {
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, fmt.Errorf("read legacy job record: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	state := &State{
		Version: Version,
		Created: now,
		Updated: now,
	}

	settings := file.Section("settings")
	state.Profile = settings.Key("profile").String()
	if state.Profile == "" {
		state.Profile = "default"
	}

	// Old records that never wrote a STEPS section ran everything.
	steps := file.Section("steps")
	if len(steps.Keys()) == 0 {
		state.StepsEnabled = AllStages()
	} else {
		state.StepsEnabled = legacyFlags(steps)
	}
	state.StepsDone = legacyFlags(file.Section("done"))

	input := file.Section("input")
	state.Input = Input{
		Path:          input.Key("name").String(),
		Size:          legacyInt64(input, "size"),
		Format:        input.Key("format").String(),
		Duration:      legacyFloat(input, "length"),
		VideoCodec:    input.Key("vcodec").String(),
		VideoWidth:    legacyInt(input, "width"),
		VideoHeight:   legacyInt(input, "height"),
		VideoFPS:      legacyFloat(input, "fps"),
		AudioCodec:    input.Key("acodec").String(),
		AudioChannels: legacyInt(input, "ac"),
		AudioBitrate:  legacyInt(input, "abr"),
	}

	output := file.Section("output")
	video := file.Section("video")
	audio := file.Section("audio")
	state.Output = Output{
		Path:          output.Key("name").String(),
		Container:     output.Key("container").String(),
		VideoCodec:    video.Key("codec").String(),
		VideoWidth:    legacyInt(video, "width"),
		VideoHeight:   legacyInt(video, "height"),
		VideoBitrate:  legacyInt(video, "bitrate"),
		AudioCodec:    audio.Key("codec").String(),
		AudioChannels: legacyInt(audio, "ac"),
		AudioBitrate:  legacyInt(audio, "bitrate"),
		CurrentPass:   legacyInt(output, "pass"),
		TotalPasses:   legacyInt(output, "passes"),
	}
	if video.HasKey("crf") {
		crf := legacyInt(video, "crf")
		state.Output.VideoCRF = &crf
	}

	if crop := output.Key("crop").String(); crop != "" {
		rect, err := parseLegacyCrop(crop)
		if err != nil {
			return nil, err
		}
		state.Output.Crop = rect
	}

	return state, nil
}

func legacyFlags(section *ini.Section) StageFlags {
	var flags StageFlags
	for _, key := range section.Keys() {
		stage, ok := legacyStepKeys[strings.ToLower(key.Name())]
		if !ok {
			continue
		}
		if legacyBool(key.String()) {
			flags.Set(stage, true)
		}
	}
	return flags
}

func legacyBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}

func legacyInt(section *ini.Section, name string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(section.Key(name).String()))
	if err != nil {
		return 0
	}
	return parsed
}

func legacyInt64(section *ini.Section, name string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(section.Key(name).String()), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func legacyFloat(section *ini.Section, name string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(section.Key(name).String()), 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseLegacyCrop(value string) ([]int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("legacy crop %q: want w:h:x:y", value)
	}
	rect := make([]int, 4)
	for i, part := range parts {
		parsed, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("legacy crop %q: %w", value, err)
		}
		rect[i] = parsed
	}
	return rect, nil
}
