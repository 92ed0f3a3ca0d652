// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect shells out to ffprobe and returns an Info with the container
// format plus video, audio, and subtitle stream lists. Helper methods cover
// the lookups the pipeline needs: primary streams, forced subtitles, and
// audio selection by preferred language.
package ffprobe
