// Package logging assembles the structured slog loggers used across
// mmprocess.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes typed attribute helpers plus shared field names so
// every component tags jobs, stages, and run IDs the same way. Loggers are
// constructed per invocation and injected; there is no package-level logger.
package logging
