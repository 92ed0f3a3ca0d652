package config

import (
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// The legacy INI formats spell booleans as yes/no/true/false/1/0/on.
func parseLegacyBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "1", "on":
		return true
	default:
		return false
	}
}

func readBool(section *ini.Section, key string, dst *bool) {
	if section.HasKey(key) {
		*dst = parseLegacyBool(section.Key(key).String())
	}
}

func readInt(section *ini.Section, key string, dst *int) {
	if section.HasKey(key) {
		if value, err := strconv.Atoi(strings.TrimSpace(section.Key(key).String())); err == nil {
			*dst = value
		}
	}
}

func readFloat(section *ini.Section, key string, dst *float64) {
	if section.HasKey(key) {
		if value, err := strconv.ParseFloat(strings.TrimSpace(section.Key(key).String()), 64); err == nil {
			*dst = value
		}
	}
}

func readString(section *ini.Section, key string, dst *string) {
	if section.HasKey(key) {
		if value := strings.TrimSpace(section.Key(key).String()); value != "" {
			*dst = value
		}
	}
}
