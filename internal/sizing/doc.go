// Package sizing computes output geometry and bitrate targets from probed
// media metadata and an encoding profile.
//
// Everything here is pure and deterministic: no I/O, no clock, no
// randomness. The same inputs always yield the same encode parameters, which
// is what makes per-stage resume safe.
package sizing
