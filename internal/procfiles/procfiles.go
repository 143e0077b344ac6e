// Package procfiles reports whether a file is still held open by the extraction process.
package procfiles

import (
	"context"
	"log"
	"path/filepath"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Lister returns the open file paths of every process named name.
type Lister func(ctx context.Context, name string) ([]string, error)

// Checker matches candidate paths against the open files of processes named Name.
// When the process table cannot be read it warns once and reports files as not open.
type Checker struct {
	Name string
	List Lister // nil = gopsutil process table

	warnOnce sync.Once
}

func New(name string) *Checker {
	return &Checker{Name: name}
}

// IsOpen reports whether path is open in a process named c.Name.
func (c *Checker) IsOpen(ctx context.Context, path string) (bool, error) {
	want, err := canonical(path)
	if err != nil {
		return false, err
	}
	list := c.List
	if list == nil {
		list = ProcessOpenFiles
	}
	open, err := list(ctx, c.Name)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		c.warnOnce.Do(func() {
			log.Printf("procfiles: cannot enumerate %q processes (%v); treating files as not open", c.Name, err)
		})
		return false, nil
	}
	for _, p := range open {
		if p == want {
			return true, nil
		}
		if q, err := canonical(p); err == nil && q == want {
			return true, nil
		}
	}
	return false, nil
}

// ProcessOpenFiles lists open files of processes named name. Processes that vanish
// or deny access mid-scan are skipped.
func ProcessOpenFiles(ctx context.Context, name string) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil || n != name {
			continue
		}
		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			out = append(out, f.Path)
		}
	}
	return out, nil
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return filepath.Clean(abs), nil
}
