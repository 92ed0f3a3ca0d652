package sizing

import (
	"errors"
	"math"

	"mmprocess/internal/config"
)

// bppFloor is the absolute lower bound for bits per pixel. Below this the
// output is unusable regardless of what the profile asks for.
const bppFloor = 0.05

// defaultBPP seeds the size estimate when no MB/s target is configured.
const defaultBPP = 0.15

// ScaleResult is the outcome of output geometry calculation.
type ScaleResult struct {
	Width  int
	Height int
	Scaled bool
}

// BitrateResult is the outcome of bitrate calculation. Rates are kbps.
type BitrateResult struct {
	VideoBitrate int
	AudioBitrate int
	TotalBitrate int
	BPP          float64
}

// ScaleParams are the inputs to Scale. Zero values mean "unset".
type ScaleParams struct {
	InputWidth  int
	InputHeight int
	MaxWidth    int
	MaxHeight   int
	CropWidth   int
	CropHeight  int
}

// RoundToMultiple rounds value to the nearest multiple. Codecs require even
// dimensions, so the usual multiple is 2.
func RoundToMultiple(value, multiple int) int {
	return ((value + multiple/2) / multiple) * multiple
}

// Scale computes output dimensions under the width/height constraints. The
// base dimensions are the crop dimensions when present, otherwise the input
// dimensions. The width constraint applies first, then the height constraint
// against the resulting height, so the final aspect ratio is not guaranteed
// exact when both fire. Final dimensions are always even.
func Scale(p ScaleParams) ScaleResult {
	width := p.InputWidth
	height := p.InputHeight
	if p.CropWidth > 0 {
		width = p.CropWidth
	}
	if p.CropHeight > 0 {
		height = p.CropHeight
	}

	aspect := 1.0
	if height > 0 {
		aspect = float64(width) / float64(height)
	}

	if p.MaxWidth > 0 && width > p.MaxWidth {
		width = p.MaxWidth
		height = RoundToMultiple(int(float64(width)/aspect), 2)
	}
	if p.MaxHeight > 0 && height > p.MaxHeight {
		height = p.MaxHeight
		width = RoundToMultiple(int(float64(height)*aspect), 2)
	}

	width = RoundToMultiple(width, 2)
	height = RoundToMultiple(height, 2)

	baseWidth := p.InputWidth
	baseHeight := p.InputHeight
	if p.CropWidth > 0 {
		baseWidth = p.CropWidth
	}
	if p.CropHeight > 0 {
		baseHeight = p.CropHeight
	}

	return ScaleResult{
		Width:  width,
		Height: height,
		Scaled: width != baseWidth || height != baseHeight,
	}
}

// SmartBPP computes the target bits per pixel for a given output pixel
// count. Higher resolutions need fewer bits per pixel for equivalent
// perceived quality because there is more spatial redundancy to exploit:
//
//	target = refBPP - ((pixels - refPixels) * factor / 1000)
//
// minBPP/maxBPP clamp the target when positive; the result never drops below
// the 0.05 floor regardless.
func SmartBPP(pixels int, refBPP float64, refPixels int, factor, minBPP, maxBPP float64) float64 {
	diff := float64(pixels - refPixels)
	target := refBPP - (diff * factor / 1000.0)

	if minBPP > 0 && target < minBPP {
		target = minBPP
	}
	if maxBPP > 0 && target > maxBPP {
		target = maxBPP
	}
	if target < bppFloor {
		target = bppFloor
	}
	return target
}

// BitrateParams are the inputs to Bitrate. Zero values mean "unset" except
// CRF, which is a pointer because zero is a valid constant-quality value.
type BitrateParams struct {
	Width        int
	Height       int
	FPS          float64
	Duration     float64
	MaxSizeMB    int
	MaxBitrate   int
	MinBitrate   int
	AudioBitrate int
	CRF          *int
	MBPS         float64
	MaxBPP       float64
	MinBPP       float64

	InputSize    int64
	CanGrow      bool
	RefBPP       float64
	RefPixels    int
	Factor       float64
	Inflate      bool
	Deflate      bool
	SmartEnabled bool
}

// Bitrate computes the target video bitrate through an ordered refinement:
// size target, hard size caps, SMART bits-per-pixel adjustment, hard BPP
// bounds, size re-checks, and finally absolute bitrate clamps. The implied
// output size never exceeds the input size unless growth is permitted.
func Bitrate(p BitrateParams) BitrateResult {
	pixels := p.Width * p.Height
	pixelsPerSecond := float64(pixels) * p.FPS

	// CRF without SMART sizing: the encoder picks the bitrate.
	if p.CRF != nil && !p.SmartEnabled {
		return BitrateResult{AudioBitrate: p.AudioBitrate}
	}

	audioSizeBytes := float64(p.AudioBitrate) * 1000 * p.Duration / 8

	var targetSizeBytes float64
	if p.MBPS > 0 && p.Duration > 0 {
		targetSizeBytes = p.Duration * p.MBPS * 1024 * 1024
	} else {
		videoSizeBytes := pixelsPerSecond * defaultBPP * p.Duration / 8
		targetSizeBytes = videoSizeBytes + audioSizeBytes
	}

	if p.MaxSizeMB > 0 && p.Duration > 0 {
		maxSizeBytes := float64(p.MaxSizeMB) * 1024 * 1024
		if targetSizeBytes > maxSizeBytes {
			targetSizeBytes = maxSizeBytes
		}
	}

	if p.InputSize > 0 && !p.CanGrow && targetSizeBytes > float64(p.InputSize) {
		targetSizeBytes = float64(p.InputSize)
	}

	videoSizeBytes := targetSizeBytes - audioSizeBytes
	if videoSizeBytes < 0 {
		// Audio alone would exceed the budget; give video 90% of it.
		videoSizeBytes = targetSizeBytes * 0.9
	}

	videoBitrate := 0
	if p.Duration > 0 {
		videoBitrate = int(videoSizeBytes * 8 / p.Duration / 1000)
	}

	initialBPP := 0.0
	if pixelsPerSecond > 0 {
		initialBPP = float64(videoBitrate) * 1000 / pixelsPerSecond
	}

	if p.SmartEnabled && pixelsPerSecond > 0 {
		targetBPP := SmartBPP(pixels, p.RefBPP, p.RefPixels, p.Factor, p.MinBPP, p.MaxBPP)

		switch {
		case initialBPP < targetBPP && p.Inflate:
			newVideoBitrate := int(pixelsPerSecond * targetBPP / 1000)
			newVideoSize := float64(newVideoBitrate) * 1000 * p.Duration / 8
			newTotalSize := newVideoSize + audioSizeBytes

			canInflate := true
			if p.MaxSizeMB > 0 && newTotalSize > float64(p.MaxSizeMB)*1024*1024 {
				canInflate = false
			}
			if p.InputSize > 0 && !p.CanGrow && newTotalSize > float64(p.InputSize) {
				canInflate = false
			}
			if canInflate {
				videoBitrate = newVideoBitrate
			}
		case initialBPP > targetBPP && p.Deflate:
			videoBitrate = int(pixelsPerSecond * targetBPP / 1000)
		}
	}

	// Hard BPP bounds override whatever SMART decided.
	if pixelsPerSecond > 0 {
		currentBPP := float64(videoBitrate) * 1000 / pixelsPerSecond
		if p.MaxBPP > 0 && currentBPP > p.MaxBPP {
			videoBitrate = int(pixelsPerSecond * p.MaxBPP / 1000)
		}
		if p.MinBPP > 0 && currentBPP < p.MinBPP {
			videoBitrate = int(pixelsPerSecond * p.MinBPP / 1000)
		}
	}

	if p.MaxSizeMB > 0 && p.Duration > 0 {
		videoSize := float64(videoBitrate) * 1000 * p.Duration / 8
		maxSizeBytes := float64(p.MaxSizeMB) * 1024 * 1024
		if videoSize+audioSizeBytes > maxSizeBytes {
			videoSize = maxSizeBytes - audioSizeBytes
			videoBitrate = int(videoSize * 8 / p.Duration / 1000)
		}
	}

	if p.InputSize > 0 && !p.CanGrow && p.Duration > 0 {
		videoSize := float64(videoBitrate) * 1000 * p.Duration / 8
		if videoSize+audioSizeBytes > float64(p.InputSize) {
			videoSize = float64(p.InputSize) - audioSizeBytes
			if videoSize < 0 {
				videoSize = float64(p.InputSize) * 0.9
			}
			videoBitrate = int(videoSize * 8 / p.Duration / 1000)
		}
	}

	if p.MaxBitrate > 0 && videoBitrate > p.MaxBitrate {
		videoBitrate = p.MaxBitrate
	}
	if p.MinBitrate > 0 && videoBitrate < p.MinBitrate {
		videoBitrate = p.MinBitrate
	}

	finalBPP := 0.0
	if pixelsPerSecond > 0 {
		finalBPP = float64(videoBitrate) * 1000 / pixelsPerSecond
	}

	return BitrateResult{
		VideoBitrate: videoBitrate,
		AudioBitrate: p.AudioBitrate,
		TotalBitrate: videoBitrate + p.AudioBitrate,
		BPP:          math.Round(finalBPP*1000) / 1000,
	}
}

// EstimateOutputSize returns the implied output size in bytes for the given
// rates and duration.
func EstimateOutputSize(videoBitrate, audioBitrate int, duration float64) int64 {
	totalBits := float64(videoBitrate+audioBitrate) * 1000 * duration
	return int64(totalBits / 8)
}

// Source is the subset of probed media information sizing needs.
type Source struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64
	Size     int64
}

// ErrNoVideoStream reports an input without a usable video stream.
var ErrNoVideoStream = errors.New("no video stream")

// FromProfile computes scale and bitrate for a source under a profile. The
// crop rectangle, when non-nil, supplies the base dimensions for scaling.
func FromProfile(src Source, profile *config.Profile, cropWidth, cropHeight int) (ScaleResult, BitrateResult, error) {
	if src.Width <= 0 || src.Height <= 0 {
		return ScaleResult{}, BitrateResult{}, ErrNoVideoStream
	}

	maxWidth := profile.Limits.MaxWidth
	if maxWidth == 0 {
		maxWidth = profile.Video.MaxWidth
	}
	maxHeight := profile.Limits.MaxHeight
	if maxHeight == 0 {
		maxHeight = profile.Video.MaxHeight
	}

	scale := Scale(ScaleParams{
		InputWidth:  src.Width,
		InputHeight: src.Height,
		MaxWidth:    maxWidth,
		MaxHeight:   maxHeight,
		CropWidth:   cropWidth,
		CropHeight:  cropHeight,
	})

	mbps := 0.0
	if profile.Smart.Enabled {
		mbps = profile.Smart.MBPS
	}

	bitrate := Bitrate(BitrateParams{
		Width:        scale.Width,
		Height:       scale.Height,
		FPS:          src.FPS,
		Duration:     src.Duration,
		MaxSizeMB:    profile.Limits.MaxSizeMB,
		MaxBitrate:   profile.Limits.MaxBitrate,
		MinBitrate:   profile.Limits.MinBitrate,
		AudioBitrate: profile.Audio.Bitrate,
		CRF:          profile.Video.CRF,
		MBPS:         mbps,
		MaxBPP:       profile.Smart.MaxBPP,
		MinBPP:       profile.Smart.MinBPP,
		InputSize:    src.Size,
		CanGrow:      profile.Smart.CanGrow,
		RefBPP:       profile.Smart.RefBPP,
		RefPixels:    profile.Smart.RefPixels,
		Factor:       profile.Smart.Factor,
		Inflate:      profile.Smart.Inflate,
		Deflate:      profile.Smart.Deflate,
		SmartEnabled: profile.Smart.Enabled,
	})

	return scale, bitrate, nil
}
