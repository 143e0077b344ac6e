package procfiles

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v4/process"
)

func TestIsOpen_matchesAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	held := filepath.Join(dir, "pbtv-20240101-120000.ts")
	idle := filepath.Join(dir, "pbtv-20240101-120000-1.ts")
	for _, p := range []string{held, idle} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	realHeld, _ := filepath.EvalSymlinks(held)
	var gotName string
	c := &Checker{Name: "streamlink", List: func(_ context.Context, name string) ([]string, error) {
		gotName = name
		return []string{"/dev/null", realHeld}, nil
	}}

	wd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(wd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	open, err := c.IsOpen(context.Background(), filepath.Base(held))
	if err != nil || !open {
		t.Fatalf("held: open=%v err=%v", open, err)
	}
	open, err = c.IsOpen(context.Background(), idle)
	if err != nil || open {
		t.Fatalf("idle: open=%v err=%v", open, err)
	}
	if gotName != "streamlink" {
		t.Errorf("lister name = %q", gotName)
	}
}

func TestIsOpen_listFailureWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	c := &Checker{Name: "streamlink", List: func(context.Context, string) ([]string, error) {
		return nil, errors.New("permission denied")
	}}
	for i := 0; i < 3; i++ {
		open, err := c.IsOpen(context.Background(), "a.ts")
		if err != nil || open {
			t.Fatalf("open=%v err=%v", open, err)
		}
	}
	if n := strings.Count(buf.String(), "cannot enumerate"); n != 1 {
		t.Errorf("warnings = %d, want 1:\n%s", n, buf.String())
	}
}

func TestProcessOpenFiles_self(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("open-file listing is exercised on linux")
	}
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		t.Skip(err)
	}
	name, err := self.Name()
	if err != nil {
		t.Skip(err)
	}
	path := filepath.Join(t.TempDir(), "held.ts")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	c := New(name)
	open, err := c.IsOpen(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !open {
		t.Errorf("%s should be reported open by %q", path, name)
	}
}
