package claim

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Claim holds an exclusive lock on a job directory. The lock lives for as
// long as the file descriptor stays open, so a crashed holder releases it
// automatically.
type Claim struct {
	path string
	file *os.File
}

// LockPath returns the lock file guarding jobDir: a sibling named after the
// directory with a .lock suffix. Keeping it outside the directory means the
// job tree can be moved or removed while the claim is held.
func LockPath(jobDir string) string {
	return filepath.Clean(jobDir) + ".lock"
}

// Acquire attempts a non-blocking exclusive claim on jobDir. It returns
// ok=false without error when another worker already holds the claim.
//
// The lock is an open file description record lock (fcntl F_OFD_SETLK),
// which NFS implements with real byte-range semantics. BSD flock locks
// degrade to advisory no-ops on some NFS configurations and are not used.
func Acquire(jobDir string) (*Claim, bool, error) {
	path := LockPath(jobDir)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open claim lock %s: %w", path, err)
	}

	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: io.SeekStart,
	}
	if err := unix.FcntlFlock(file.Fd(), unix.F_OFD_SETLK, &lock); err != nil {
		file.Close()
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock claim %s: %w", path, err)
	}

	return &Claim{path: path, file: file}, true, nil
}

// Path returns the lock file location.
func (c *Claim) Path() string { return c.path }

// Release drops the claim and removes the lock file. Removal is best effort;
// closing the descriptor is what releases the lock.
func (c *Claim) Release() error {
	if c == nil || c.file == nil {
		return nil
	}

	unlock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: io.SeekStart,
	}
	_ = unix.FcntlFlock(c.file.Fd(), unix.F_OFD_SETLK, &unlock)

	err := c.file.Close()
	c.file = nil
	_ = os.Remove(c.path)
	if err != nil {
		return fmt.Errorf("close claim lock %s: %w", c.path, err)
	}
	return nil
}
