// Package claim coordinates multiple workers over a shared filesystem.
// A claim is an fcntl record lock on a sibling .lock file next to the job
// directory, which works across machines on NFS where flock does not. Locks
// die with their holder, so no stale-claim cleanup pass is needed.
package claim
