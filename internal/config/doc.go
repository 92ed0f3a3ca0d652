// Package config loads, normalizes, and validates mmprocess configuration
// and encoding profiles.
//
// The worker config is TOML with repository defaults; relative directory
// paths resolve against paths.base_dir. Profiles live in the profiles
// directory as either TOML files or the prior system's INI format, and may
// carry resolution tiers that override limits before sizing runs.
//
// Always obtain settings through this package so downstream code receives
// sanitized absolute paths and validated values.
package config
