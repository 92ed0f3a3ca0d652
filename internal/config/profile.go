package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/ini.v1"
)

// VideoProfile holds video encoding settings. CRF is a pointer because zero
// is a valid constant-quality value and must be distinguishable from unset.
type VideoProfile struct {
	Codec     string `toml:"codec"`
	CRF       *int   `toml:"crf"`
	Bitrate   int    `toml:"bitrate"`
	MaxWidth  int    `toml:"max_width"`
	MaxHeight int    `toml:"max_height"`
	Opts      string `toml:"opts"`
}

// AudioProfile holds audio encoding settings.
type AudioProfile struct {
	Codec      string `toml:"codec"`
	Bitrate    int    `toml:"bitrate"`
	Channels   int    `toml:"channels"`
	SampleRate int    `toml:"sample_rate"`
}

// ProcessingProfile toggles the optional pipeline stages and filters.
type ProcessingProfile struct {
	Crop        bool `toml:"crop"`
	Scale       bool `toml:"scale"`
	Denoise     bool `toml:"denoise"`
	Deinterlace bool `toml:"deinterlace"`
	Subtitles   bool `toml:"subtitles"`
}

// LimitsProfile holds hard output constraints. Zero means unconstrained.
type LimitsProfile struct {
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBitrate int `toml:"max_bitrate"`
	MinBitrate int `toml:"min_bitrate"`
	MaxWidth   int `toml:"max_width"`
	MaxHeight  int `toml:"max_height"`
}

// SmartProfile configures bits-per-pixel-aware bitrate targeting.
//
// The target BPP falls as resolution rises:
//
//	target_bpp = ref_bpp - ((pixels - ref_pixels) * factor / 1000)
type SmartProfile struct {
	Enabled   bool    `toml:"enabled"`
	MBPS      float64 `toml:"mbps"`
	MinBPP    float64 `toml:"min_bpp"`
	MaxBPP    float64 `toml:"max_bpp"`
	RefBPP    float64 `toml:"ref_bpp"`
	RefPixels int     `toml:"ref_pixels"`
	Factor    float64 `toml:"factor"`
	CanGrow   bool    `toml:"can_grow"`
	Inflate   bool    `toml:"inflate"`
	Deflate   bool    `toml:"deflate"`
}

// Tier is a resolution-keyed profile override. A tier matches when the input
// pixel count falls inside [MinPixels, MaxPixels]; MaxPixels zero means
// unbounded. Zero-valued override fields keep the profile's setting.
type Tier struct {
	Name      string  `toml:"name"`
	MinPixels int     `toml:"min_pixels"`
	MaxPixels int     `toml:"max_pixels"`
	MaxWidth  int     `toml:"max_width"`
	MaxHeight int     `toml:"max_height"`
	MBPS      float64 `toml:"mbps"`
	CRF       *int    `toml:"crf"`
	MaxSizeMB int     `toml:"max_size_mb"`
}

// Profile is a complete encoding profile.
type Profile struct {
	Name       string            `toml:"-"`
	Container  string            `toml:"container"`
	Video      VideoProfile      `toml:"video"`
	Audio      AudioProfile      `toml:"audio"`
	Processing ProcessingProfile `toml:"processing"`
	Limits     LimitsProfile     `toml:"limits"`
	Smart      SmartProfile      `toml:"smart"`
	Tiers      []Tier            `toml:"tiers"`
}

// DefaultProfile returns the profile applied when a named profile file does
// not override a field.
func DefaultProfile(name string) Profile {
	return Profile{
		Name: name,
		Video: VideoProfile{
			Codec:     "libx264",
			MaxWidth:  1920,
			MaxHeight: 1080,
		},
		Audio: AudioProfile{
			Codec:    "aac",
			Bitrate:  384,
			Channels: 6,
		},
		Processing: ProcessingProfile{
			Crop:      true,
			Scale:     true,
			Subtitles: true,
		},
		Smart: SmartProfile{
			MBPS:      1.0,
			RefBPP:    0.225,
			RefPixels: 345600,
			Factor:    0.000061,
			Inflate:   true,
			Deflate:   true,
		},
	}
}

// ProfileExists reports whether a profile file (TOML or legacy INI) exists
// for the given name. Input subdirectories only act as profile queues when
// this returns true.
func ProfileExists(cfg *Config, name string) bool {
	if name == "" {
		return false
	}
	for _, candidate := range profileCandidates(cfg, name) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func profileCandidates(cfg *Config, name string) []string {
	return []string{
		filepath.Join(cfg.Paths.ProfilesDir, name+".toml"),
		filepath.Join(cfg.Paths.ProfilesDir, name+".cfg"),
	}
}

// LoadProfile loads the named profile from the profiles directory. A missing
// file yields the defaults, matching the prior system's behavior for the
// built-in "default" profile.
func LoadProfile(cfg *Config, name string) (Profile, error) {
	profile := DefaultProfile(name)

	tomlPath := filepath.Join(cfg.Paths.ProfilesDir, name+".toml")
	if _, err := os.Stat(tomlPath); err == nil {
		data, err := os.ReadFile(tomlPath)
		if err != nil {
			return profile, fmt.Errorf("read profile %s: %w", name, err)
		}
		if err := toml.Unmarshal(data, &profile); err != nil {
			return profile, fmt.Errorf("parse profile %s: %w", name, err)
		}
		profile.Name = name
		return profile, nil
	}

	legacyPath := filepath.Join(cfg.Paths.ProfilesDir, name+".cfg")
	if _, err := os.Stat(legacyPath); err == nil {
		if err := loadLegacyProfile(legacyPath, &profile); err != nil {
			return profile, fmt.Errorf("parse legacy profile %s: %w", name, err)
		}
		return profile, nil
	}

	return profile, nil
}

// loadLegacyProfile maps the prior system's INI profile format onto Profile.
func loadLegacyProfile(path string, profile *Profile) error {
	file, err := ini.Load(path)
	if err != nil {
		return err
	}

	if section := file.Section("steps"); section != nil {
		readBool(section, "smart", &profile.Smart.Enabled)
		readBool(section, "crop", &profile.Processing.Crop)
		readBool(section, "scale", &profile.Processing.Scale)
	}
	if section := file.Section("limits"); section != nil {
		readFloat(section, "mbps", &profile.Smart.MBPS)
		readFloat(section, "maxbpp", &profile.Smart.MaxBPP)
		readFloat(section, "minbpp", &profile.Smart.MinBPP)
		readInt(section, "maxs", &profile.Limits.MaxSizeMB)
		readInt(section, "maxb", &profile.Limits.MaxBitrate)
		readInt(section, "maxw", &profile.Limits.MaxWidth)
		readInt(section, "maxh", &profile.Limits.MaxHeight)
	}
	if section := file.Section("video"); section != nil {
		readString(section, "codec", &profile.Video.Codec)
		readString(section, "opts", &profile.Video.Opts)
	}
	if section := file.Section("audio"); section != nil {
		readInt(section, "bitrate", &profile.Audio.Bitrate)
		readInt(section, "channels", &profile.Audio.Channels)
	}
	if section := file.Section("smart"); section != nil {
		readFloat(section, "ref_b", &profile.Smart.RefBPP)
		readInt(section, "ref_p", &profile.Smart.RefPixels)
		readFloat(section, "factor", &profile.Smart.Factor)
		readBool(section, "inflate", &profile.Smart.Inflate)
		readBool(section, "deflate", &profile.Smart.Deflate)
	}
	if section := file.Section("settings"); section != nil {
		readBool(section, "cangrow", &profile.Smart.CanGrow)
	}
	return nil
}

// SelectTier returns the first tier whose pixel range contains the input
// pixel count, or nil when no tier matches. The thresholds themselves are
// configuration, not code.
func SelectTier(profile *Profile, pixels int) *Tier {
	for i := range profile.Tiers {
		tier := &profile.Tiers[i]
		if pixels < tier.MinPixels {
			continue
		}
		if tier.MaxPixels > 0 && pixels > tier.MaxPixels {
			continue
		}
		return tier
	}
	return nil
}

// ApplyTier overlays a tier's non-zero overrides onto a copy of the profile
// and returns it. The base profile is left untouched so re-running the
// calculation stage with a different input stays deterministic.
func ApplyTier(profile Profile, tier *Tier) Profile {
	if tier == nil {
		return profile
	}
	if tier.MaxWidth > 0 {
		profile.Limits.MaxWidth = tier.MaxWidth
	}
	if tier.MaxHeight > 0 {
		profile.Limits.MaxHeight = tier.MaxHeight
	}
	if tier.MBPS > 0 {
		profile.Smart.MBPS = tier.MBPS
	}
	if tier.CRF != nil {
		crf := *tier.CRF
		profile.Video.CRF = &crf
	}
	if tier.MaxSizeMB > 0 {
		profile.Limits.MaxSizeMB = tier.MaxSizeMB
	}
	return profile
}
