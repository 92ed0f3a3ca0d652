package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory tree a worker operates on. All trees must
// live on the same (possibly network) filesystem so job directories can be
// relocated with a rename.
type Paths struct {
	BaseDir     string `toml:"base_dir"`
	InputDir    string `toml:"input_dir"`
	WorkDir     string `toml:"work_dir"`
	DoneDir     string `toml:"done_dir"`
	OutputDir   string `toml:"output_dir"`
	ErrorDir    string `toml:"error_dir"`
	ProfilesDir string `toml:"profiles_dir"`
	LogDir      string `toml:"log_dir"`
}

// Tools names the external executables the pipeline shells out to.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Defaults holds fallback encoding settings used when a profile leaves them
// unset.
type Defaults struct {
	Profile       string `toml:"profile"`
	Container     string `toml:"container"`
	AudioLanguage string `toml:"audio_language"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for a worker invocation.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Tools    Tools    `toml:"tools"`
	Defaults Defaults `toml:"defaults"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mmprocess/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, resolvedPath, fmt.Errorf("config file not found: %s (run \"mmprocess config init\" to create one)", resolvedPath)
	}

	file, err := os.Open(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("mmprocess.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directory trees a worker needs before
// scanning for work.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.InputDir,
		c.Paths.WorkDir,
		c.Paths.DoneDir,
		c.Paths.OutputDir,
		c.Paths.ErrorDir,
		c.Paths.ProfilesDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) != "" {
		if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log directory %q: %w", c.Paths.LogDir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	expanded, err := expandPath(c.Paths.BaseDir)
	if err != nil {
		return err
	}
	c.Paths.BaseDir = expanded

	for _, field := range []*string{
		&c.Paths.InputDir,
		&c.Paths.WorkDir,
		&c.Paths.DoneDir,
		&c.Paths.OutputDir,
		&c.Paths.ErrorDir,
		&c.Paths.ProfilesDir,
		&c.Paths.LogDir,
	} {
		value := strings.TrimSpace(*field)
		if value == "" {
			continue
		}
		if !filepath.IsAbs(value) && !strings.HasPrefix(value, "~") {
			if c.Paths.BaseDir == "" {
				return errors.New("config: paths.base_dir must be set when other paths are relative")
			}
			*field = filepath.Join(c.Paths.BaseDir, value)
			continue
		}
		expanded, err := expandPath(value)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

// Validate reports configuration that cannot support a worker run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		return errors.New("config: paths.base_dir must be set")
	}
	if strings.TrimSpace(c.Defaults.Profile) == "" {
		return errors.New("config: defaults.profile must be set")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
