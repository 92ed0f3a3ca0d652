// Package pipeline executes a claimed job through its stages: probe, crop
// detection, plan calculation, encode, finalize, relocate. State persists
// before every transition, so any interruption resumes at the last persisted
// point, including mid-encode at pass granularity.
package pipeline
