package sizing

import (
	"math"
	"testing"

	"mmprocess/internal/config"
)

func TestRoundToMultiple(t *testing.T) {
	cases := []struct {
		value, multiple, want int
	}{
		{719, 2, 720},
		{720, 2, 720},
		{721, 2, 722},
		{1, 2, 2},
		{0, 2, 0},
		{15, 16, 16},
	}
	for _, tc := range cases {
		if got := RoundToMultiple(tc.value, tc.multiple); got != tc.want {
			t.Errorf("RoundToMultiple(%d, %d) = %d, want %d", tc.value, tc.multiple, got, tc.want)
		}
	}
}

func TestRoundToMultipleIdempotent(t *testing.T) {
	for v := 0; v < 2000; v += 7 {
		once := RoundToMultiple(v, 2)
		twice := RoundToMultiple(once, 2)
		if once != twice {
			t.Fatalf("rounding not idempotent at %d: %d then %d", v, once, twice)
		}
	}
}

func TestScaleWidthConstraint(t *testing.T) {
	got := Scale(ScaleParams{InputWidth: 1920, InputHeight: 1080, MaxWidth: 1280})
	if got.Width != 1280 || got.Height != 720 || !got.Scaled {
		t.Fatalf("Scale(1920x1080, maxW=1280) = %+v, want 1280x720 scaled", got)
	}
}

func TestScaleNoConstraint(t *testing.T) {
	got := Scale(ScaleParams{InputWidth: 1280, InputHeight: 720, MaxWidth: 1920, MaxHeight: 1080})
	if got.Scaled {
		t.Fatalf("expected no scaling, got %+v", got)
	}
	if got.Width != 1280 || got.Height != 720 {
		t.Fatalf("dimensions changed without constraint: %+v", got)
	}
}

func TestScaleUsesCropBase(t *testing.T) {
	// 1920x800 crop of a 1920x1080 source, then width-limited to 1280.
	got := Scale(ScaleParams{
		InputWidth: 1920, InputHeight: 1080,
		CropWidth: 1920, CropHeight: 800,
		MaxWidth: 1280,
	})
	aspect := 1920.0 / 800.0
	want := RoundToMultiple(int(1280.0/aspect), 2)
	if got.Width != 1280 || got.Height != want {
		t.Fatalf("crop-based scale = %+v, want 1280x%d", got, want)
	}
}

func TestScaleBothConstraintsApplyInOrder(t *testing.T) {
	// 2.4:1 source: the width pass yields a legal height, then the height
	// pass does not fire.
	got := Scale(ScaleParams{InputWidth: 4096, InputHeight: 1716, MaxWidth: 1920, MaxHeight: 800})
	if got.Width > 1920 || got.Height > 800 {
		t.Fatalf("constraints not honored: %+v", got)
	}
	// 4:3 source: the width pass leaves the height over the limit, so both
	// constraints fire sequentially.
	got = Scale(ScaleParams{InputWidth: 2880, InputHeight: 2160, MaxWidth: 1920, MaxHeight: 1080})
	if got.Width > 1920 || got.Height != 1080 {
		t.Fatalf("sequential constraints wrong: %+v", got)
	}
}

func TestScaleAlwaysEven(t *testing.T) {
	params := []ScaleParams{
		{InputWidth: 1919, InputHeight: 1079},
		{InputWidth: 1921, InputHeight: 1081, MaxWidth: 1280},
		{InputWidth: 853, InputHeight: 480, MaxHeight: 360},
		{InputWidth: 1920, InputHeight: 817, MaxWidth: 1280, MaxHeight: 544},
	}
	for _, p := range params {
		got := Scale(p)
		if got.Width%2 != 0 || got.Height%2 != 0 {
			t.Errorf("Scale(%+v) produced odd dimensions %dx%d", p, got.Width, got.Height)
		}
	}
}

func TestScaleAspectPreservedWhenOnlyWidthFires(t *testing.T) {
	p := ScaleParams{InputWidth: 1920, InputHeight: 1080, MaxWidth: 1280}
	got := Scale(p)
	wantAspect := float64(p.InputWidth) / float64(p.InputHeight)
	gotAspect := float64(got.Width) / float64(got.Height)
	// Within one even-rounding unit of height.
	tolerance := wantAspect * 2 / float64(got.Height)
	if math.Abs(gotAspect-wantAspect) > tolerance {
		t.Fatalf("aspect drifted: got %f, want %f", gotAspect, wantAspect)
	}
}

func TestSmartBPPReference(t *testing.T) {
	// 1920x800 = 1,536,000 pixels against the 720x480 reference.
	got := SmartBPP(1536000, 0.225, 345600, 0.000061, 0, 0)
	if math.Abs(got-0.152) > 0.001 {
		t.Fatalf("SmartBPP = %f, want ~0.152", got)
	}
}

func TestSmartBPPNonIncreasing(t *testing.T) {
	prev := math.Inf(1)
	for pixels := 100000; pixels <= 10000000; pixels += 100000 {
		got := SmartBPP(pixels, 0.225, 345600, 0.000061, 0, 0)
		if got > prev {
			t.Fatalf("SmartBPP increased at %d pixels: %f > %f", pixels, got, prev)
		}
		prev = got
	}
}

func TestSmartBPPFloor(t *testing.T) {
	got := SmartBPP(50000000, 0.225, 345600, 0.000061, 0, 0)
	if got != 0.05 {
		t.Fatalf("expected hard floor 0.05, got %f", got)
	}
	// Clamps cannot push below the floor.
	got = SmartBPP(1536000, 0.225, 345600, 0.000061, 0, 0.01)
	if got != 0.05 {
		t.Fatalf("expected floor to override max clamp, got %f", got)
	}
}

func TestSmartBPPClamps(t *testing.T) {
	if got := SmartBPP(1536000, 0.225, 345600, 0.000061, 0.2, 0); got != 0.2 {
		t.Fatalf("min clamp: got %f, want 0.2", got)
	}
	if got := SmartBPP(345600, 0.225, 345600, 0.000061, 0, 0.1); got != 0.1 {
		t.Fatalf("max clamp: got %f, want 0.1", got)
	}
}

func TestBitrateCRFMode(t *testing.T) {
	crf := 20
	got := Bitrate(BitrateParams{
		Width: 1920, Height: 1080, FPS: 24, Duration: 3600,
		AudioBitrate: 384, CRF: &crf,
	})
	if got.VideoBitrate != 0 || got.TotalBitrate != 0 {
		t.Fatalf("CRF mode should leave bitrate to the encoder: %+v", got)
	}
	if got.AudioBitrate != 384 {
		t.Fatalf("audio bitrate lost: %+v", got)
	}
}

func TestBitrateCRFZeroIsStillCRF(t *testing.T) {
	crf := 0
	got := Bitrate(BitrateParams{
		Width: 1280, Height: 720, FPS: 25, Duration: 1800,
		AudioBitrate: 128, CRF: &crf,
	})
	if got.VideoBitrate != 0 {
		t.Fatalf("CRF 0 must count as quality mode: %+v", got)
	}
}

func TestBitrateNeverExceedsInputSize(t *testing.T) {
	params := []BitrateParams{
		{Width: 1920, Height: 1080, FPS: 24, Duration: 3600, AudioBitrate: 384,
			InputSize: 700 * 1024 * 1024, MBPS: 2.0},
		{Width: 1280, Height: 720, FPS: 30, Duration: 1200, AudioBitrate: 192,
			InputSize: 100 * 1024 * 1024, SmartEnabled: true, RefBPP: 0.225,
			RefPixels: 345600, Factor: 0.000061, Inflate: true, Deflate: true, MBPS: 1.5},
		{Width: 720, Height: 480, FPS: 25, Duration: 5400, AudioBitrate: 384,
			InputSize: 400 * 1024 * 1024, SmartEnabled: true, RefBPP: 0.225,
			RefPixels: 345600, Factor: 0.000061, Inflate: true, MinBPP: 0.3},
	}
	for i, p := range params {
		got := Bitrate(p)
		implied := EstimateOutputSize(got.VideoBitrate, got.AudioBitrate, p.Duration)
		// Absolute min_bitrate clamps intentionally override the size bound;
		// none of these cases set one.
		if implied > p.InputSize {
			t.Errorf("case %d: implied size %d exceeds input %d (result %+v)", i, implied, p.InputSize, got)
		}
	}
}

func TestBitrateCanGrowAllowsExceedingInput(t *testing.T) {
	p := BitrateParams{
		Width: 1920, Height: 1080, FPS: 24, Duration: 3600,
		AudioBitrate: 384, InputSize: 10 * 1024 * 1024, CanGrow: true, MBPS: 1.0,
	}
	got := Bitrate(p)
	if implied := EstimateOutputSize(got.VideoBitrate, got.AudioBitrate, p.Duration); implied <= p.InputSize {
		t.Fatalf("growth permitted but output stayed at %d bytes", implied)
	}
}

func TestBitrateSmartDeflate(t *testing.T) {
	// A generous MB/s target should be deflated to the SMART BPP target.
	base := BitrateParams{
		Width: 1920, Height: 800, FPS: 24, Duration: 3600,
		AudioBitrate: 384, MBPS: 3.0,
		RefBPP: 0.225, RefPixels: 345600, Factor: 0.000061,
	}

	plain := Bitrate(base)

	smart := base
	smart.SmartEnabled = true
	smart.Deflate = true
	deflated := Bitrate(smart)

	if deflated.VideoBitrate >= plain.VideoBitrate {
		t.Fatalf("deflate had no effect: %d >= %d", deflated.VideoBitrate, plain.VideoBitrate)
	}
	if math.Abs(deflated.BPP-0.152) > 0.002 {
		t.Fatalf("deflated BPP %f, want ~0.152", deflated.BPP)
	}
}

func TestBitrateSmartInflateRespectsBounds(t *testing.T) {
	// Starved target, inflation wanted, but the input size bound blocks it.
	p := BitrateParams{
		Width: 1920, Height: 800, FPS: 24, Duration: 3600,
		AudioBitrate: 384, MBPS: 0.1,
		InputSize:    500 * 1024 * 1024,
		SmartEnabled: true, Inflate: true,
		RefBPP: 0.225, RefPixels: 345600, Factor: 0.000061,
	}
	got := Bitrate(p)
	if implied := EstimateOutputSize(got.VideoBitrate, got.AudioBitrate, p.Duration); implied > p.InputSize {
		t.Fatalf("inflation violated input bound: %d > %d", implied, p.InputSize)
	}

	// With room to grow, inflation lifts the bitrate to the BPP target.
	p.InputSize = 100 * 1024 * 1024 * 1024
	inflated := Bitrate(p)
	if inflated.VideoBitrate <= got.VideoBitrate {
		t.Fatalf("expected inflation with a large input bound: %d <= %d", inflated.VideoBitrate, got.VideoBitrate)
	}
}

func TestBitrateAbsoluteClamps(t *testing.T) {
	p := BitrateParams{
		Width: 1920, Height: 1080, FPS: 24, Duration: 3600,
		AudioBitrate: 384, MBPS: 5.0, MaxBitrate: 4000,
	}
	if got := Bitrate(p); got.VideoBitrate != 4000 {
		t.Fatalf("max bitrate clamp: got %d", got.VideoBitrate)
	}

	p = BitrateParams{
		Width: 720, Height: 480, FPS: 25, Duration: 3600,
		AudioBitrate: 128, MBPS: 0.05, MinBitrate: 900,
	}
	if got := Bitrate(p); got.VideoBitrate != 900 {
		t.Fatalf("min bitrate clamp: got %d", got.VideoBitrate)
	}
}

func TestBitrateAudioLargerThanBudget(t *testing.T) {
	// Audio alone exceeds the target size; video gets 90% of the budget
	// rather than a negative rate.
	p := BitrateParams{
		Width: 720, Height: 480, FPS: 25, Duration: 3600,
		AudioBitrate: 2000, MBPS: 0.1,
	}
	got := Bitrate(p)
	if got.VideoBitrate <= 0 {
		t.Fatalf("video bitrate must stay positive: %+v", got)
	}
}

func TestBitrateTotalAndBPPReporting(t *testing.T) {
	p := BitrateParams{
		Width: 1280, Height: 720, FPS: 24, Duration: 1800,
		AudioBitrate: 192, MBPS: 1.0,
	}
	got := Bitrate(p)
	if got.TotalBitrate != got.VideoBitrate+got.AudioBitrate {
		t.Fatalf("total mismatch: %+v", got)
	}
	wantBPP := math.Round(float64(got.VideoBitrate)*1000/(1280*720*24)*1000) / 1000
	if got.BPP != wantBPP {
		t.Fatalf("BPP reported %f, want %f", got.BPP, wantBPP)
	}
}

func TestFromProfile(t *testing.T) {
	profile := config.DefaultProfile("test")
	profile.Limits.MaxWidth = 1280
	profile.Smart.Enabled = true

	src := Source{Width: 1920, Height: 1080, FPS: 24, Duration: 3600, Size: 4 * 1024 * 1024 * 1024}
	scale, bitrate, err := FromProfile(src, &profile, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if scale.Width != 1280 || scale.Height != 720 {
		t.Fatalf("scale: %+v", scale)
	}
	if bitrate.VideoBitrate <= 0 {
		t.Fatalf("bitrate: %+v", bitrate)
	}
}

func TestFromProfileNoVideo(t *testing.T) {
	profile := config.DefaultProfile("test")
	if _, _, err := FromProfile(Source{}, &profile, 0, 0); err == nil {
		t.Fatal("expected error for missing video stream")
	}
}

func TestFromProfileLimitsTakePrecedenceOverVideoMax(t *testing.T) {
	profile := config.DefaultProfile("test")
	profile.Video.MaxWidth = 1920
	profile.Limits.MaxWidth = 960

	src := Source{Width: 1920, Height: 1080, FPS: 24, Duration: 600, Size: 1 << 30}
	scale, _, err := FromProfile(src, &profile, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if scale.Width != 960 {
		t.Fatalf("limits.max_width should win: %+v", scale)
	}
}
