// Package services defines the error taxonomy shared by the pipeline stages
// and the external tool wrappers.
//
// Each pipeline stage tags its failures with one of the exported sentinel
// errors so callers can classify a failed job without string matching. Lock
// contention is deliberately absent from the taxonomy: failing to claim a job
// is a normal "try the next one" signal, not an error.
package services
