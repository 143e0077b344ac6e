// Package runlock provides the single-instance run lock and the run marker the
// recorder's restart loop polls. Both are advisory, single-host files.
package runlock

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrLocked means another process holds the run lock.
	ErrLocked = errors.New("run lock already held")
	// ErrNotOwner means the lock file on disk was not written by this process.
	ErrNotOwner = errors.New("run lock owned by another process")
)

// LockedError carries the PID recorded in a contended lock file (0 when unreadable).
type LockedError struct {
	Path string
	PID  int
}

func (e *LockedError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s: %v (pid %d)", e.Path, ErrLocked, e.PID)
	}
	return fmt.Sprintf("%s: %v", e.Path, ErrLocked)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// Lock is an acquired run lock.
type Lock struct {
	path string
	pid  int
}

// Acquire creates path exclusively and records the current PID in it. An existing
// file fails with a *LockedError even if its owner is gone: liveness is not inferred.
func Acquire(path string) (*Lock, error) {
	return acquire(path, os.Getpid())
}

func acquire(path string, pid int) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			owner, _ := Owner(path)
			return nil, &LockedError{Path: path, PID: owner}
		}
		return nil, fmt.Errorf("create run lock: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(pid) + "\n")
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write run lock: %w", werr)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release removes the lock file if it still records this lock's PID. When another
// PID is recorded the file is left in place, a warning is logged and ErrNotOwner
// is returned. A lock file that is already gone is not an error.
func (l *Lock) Release() error {
	owner, err := Owner(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		log.Printf("runlock: %s unreadable, leaving it: %v", l.path, err)
		return fmt.Errorf("%s: %w", l.path, ErrNotOwner)
	}
	if owner != l.pid {
		log.Printf("runlock: %s belongs to pid %d, not %d; not removing", l.path, owner, l.pid)
		return fmt.Errorf("%s: %w", l.path, ErrNotOwner)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Owner reads the PID recorded in a lock file.
func Owner(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse run lock %s: %w", path, err)
	}
	return pid, nil
}

// Marker is the run marker: while its file exists, the recorder keeps restarting.
type Marker struct {
	path string
}

// CreateMarker creates (or truncates) the marker file.
func CreateMarker(path string) (*Marker, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create run marker: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &Marker{path: path}, nil
}

// Path returns the marker file location.
func (m *Marker) Path() string { return m.path }

// Exists reports whether the marker file is present.
func (m *Marker) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Remove deletes the marker; a missing marker is not an error.
func (m *Marker) Remove() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
