package config

// Default returns the repository defaults applied before a config file is
// decoded over them.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:    "in",
			WorkDir:     "work",
			DoneDir:     "done",
			OutputDir:   "out",
			ErrorDir:    "error",
			ProfilesDir: "profiles",
			LogDir:      "log",
		},
		Tools: Tools{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
		},
		Defaults: Defaults{
			Profile:       "default",
			Container:     "mp4",
			AudioLanguage: "eng",
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}
