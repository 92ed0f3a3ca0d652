// Package scanner drives the batch loop: resume an interrupted job from the
// work directory if one exists, otherwise admit the next new file from the
// input directory. Each invocation handles at most one job. Every job is
// guarded by a filesystem claim so multiple workers can share the same
// directories, locally or over NFS.
package scanner
