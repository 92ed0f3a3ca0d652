// Package encode plans and executes ffmpeg encodes. A Plan captures every
// input to the command line up front, so resuming an interrupted two-pass
// encode replays exactly the same arguments for the remaining passes.
package encode
