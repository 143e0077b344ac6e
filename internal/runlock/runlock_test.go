package runlock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquire_exclusive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pbtv.lock")
	first, err := Acquire(p)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	_, err = Acquire(p)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire err = %v, want ErrLocked", err)
	}
	var le *LockedError
	if !errors.As(err, &le) || le.PID != os.Getpid() {
		t.Fatalf("LockedError = %+v", le)
	}
	// The failed attempt must not disturb the holder.
	owner, err := Owner(p)
	if err != nil || owner != os.Getpid() {
		t.Fatalf("Owner after contention = %d, %v", owner, err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("lock file should be gone, stat err = %v", err)
	}
}

func TestAcquire_staleLockNotReclaimed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pbtv.lock")
	// Owner liveness is never consulted.
	if err := os.WriteFile(p, []byte("999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Acquire(p)
	var le *LockedError
	if !errors.As(err, &le) || le.PID != 999999 {
		t.Fatalf("Acquire err = %v, want LockedError pid=999999", err)
	}
}

func TestRelease_notOwner(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pbtv.lock")
	l, err := Acquire(p)
	if err != nil {
		t.Fatal(err)
	}
	other := strconv.Itoa(os.Getpid()+1) + "\n"
	if err := os.WriteFile(p, []byte(other), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("Release err = %v, want ErrNotOwner", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != other {
		t.Fatalf("foreign lock must be left intact: %q, %v", b, err)
	}
}

func TestRelease_alreadyGone(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pbtv.lock")
	l, err := Acquire(p)
	if err != nil {
		t.Fatal(err)
	}
	os.Remove(p)
	if err := l.Release(); err != nil {
		t.Fatalf("Release of missing lock: %v", err)
	}
}

func TestMarker(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pbtv.recording")
	m, err := CreateMarker(p)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Exists() {
		t.Fatal("marker should exist after create")
	}
	if err := m.Remove(); err != nil {
		t.Fatal(err)
	}
	if m.Exists() {
		t.Fatal("marker should be gone")
	}
	if err := m.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}
