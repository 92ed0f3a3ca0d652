package claim

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	jobDir := filepath.Join(t.TempDir(), "movie")
	if err := os.Mkdir(jobDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	c, ok, err := Acquire(jobDir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected claim to succeed")
	}
	if c.Path() != jobDir+".lock" {
		t.Errorf("lock path = %q, want sibling .lock", c.Path())
	}
	if _, err := os.Stat(c.Path()); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}

	if err := c.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(jobDir + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file still present after release: %v", err)
	}
}

func TestSecondAcquireFails(t *testing.T) {
	jobDir := filepath.Join(t.TempDir(), "movie")
	if err := os.Mkdir(jobDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	first, ok, err := Acquire(jobDir)
	if err != nil || !ok {
		t.Fatalf("first Acquire: ok=%v err=%v", ok, err)
	}
	defer first.Release()

	second, ok, err := Acquire(jobDir)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if ok {
		second.Release()
		t.Fatal("second claim should have been refused")
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	jobDir := filepath.Join(t.TempDir(), "movie")
	if err := os.Mkdir(jobDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	first, ok, err := Acquire(jobDir)
	if err != nil || !ok {
		t.Fatalf("first Acquire: ok=%v err=%v", ok, err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, ok, err := Acquire(jobDir)
	if err != nil || !ok {
		t.Fatalf("reacquire: ok=%v err=%v", ok, err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	jobDir := filepath.Join(t.TempDir(), "movie")
	if err := os.Mkdir(jobDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	c, ok, err := Acquire(jobDir)
	if err != nil || !ok {
		t.Fatalf("Acquire: ok=%v err=%v", ok, err)
	}
	if err := c.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := c.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestClaimsOnDifferentJobsAreIndependent(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"one", "two"} {
		if err := os.Mkdir(filepath.Join(base, name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	one, ok, err := Acquire(filepath.Join(base, "one"))
	if err != nil || !ok {
		t.Fatalf("claim one: ok=%v err=%v", ok, err)
	}
	defer one.Release()

	two, ok, err := Acquire(filepath.Join(base, "two"))
	if err != nil || !ok {
		t.Fatalf("claim two: ok=%v err=%v", ok, err)
	}
	defer two.Release()
}
