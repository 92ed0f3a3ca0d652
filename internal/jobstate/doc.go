// Package jobstate persists per-job processing state as a state.json record
// inside the job directory. Writes go through an atomic temp-and-rename so a
// crash never leaves a torn record, and loads transparently migrate the old
// INI format still found in long-lived work trees.
package jobstate
