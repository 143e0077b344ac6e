package recorder

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
}

func TestCommand_exitCode(t *testing.T) {
	skipWithoutShell(t)
	c := &Command{Path: "/bin/sh", Grace: time.Second}
	code, err := c.Run(context.Background(), []string{"-c", "echo starting; echo oops >&2; exit 3"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 3 {
		t.Fatalf("code = %d, want 3", code)
	}
}

func TestCommand_cleanExit(t *testing.T) {
	skipWithoutShell(t)
	c := &Command{Path: "/bin/sh"}
	code, err := c.Run(context.Background(), []string{"-c", "true"})
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v", code, err)
	}
}

func TestCommand_cancelStopsChild(t *testing.T) {
	skipWithoutShell(t)
	c := &Command{Path: "/bin/sh", Grace: 500 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	code, err := c.Run(ctx, []string{"-c", "sleep 30"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if el := time.Since(start); el > 5*time.Second {
		t.Fatalf("child outlived cancellation: %v", el)
	}
	if code == 0 {
		t.Fatalf("interrupted child reported success")
	}
}

func TestCommand_startFailure(t *testing.T) {
	c := &Command{Path: "/nonexistent/streamlink"}
	code, err := c.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected start error")
	}
	if code != -1 {
		t.Fatalf("code = %d, want -1", code)
	}
}
