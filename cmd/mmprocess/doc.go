// Command mmprocess transcodes video files dropped into a shared input
// directory. Multiple instances can run against the same directories; jobs
// are claimed through filesystem locks and survive interruption at any point.
package main
