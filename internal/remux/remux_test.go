package remux

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

func TestConcatArgs(t *testing.T) {
	got := ConcatArgs("/tmp/x.concat.txt", "/tmp/x.concat.ts")
	want := []string{
		"-hide_banner", "-nostdin", "-loglevel", "warning", "-n",
		"-f", "concat", "-safe", "0",
		"-i", "/tmp/x.concat.txt",
		"-c", "copy",
		"-f", "mpegts",
		"/tmp/x.concat.ts",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ConcatArgs = %q", got)
	}
}

func TestCopyArgs(t *testing.T) {
	mp4 := CopyArgs("in.ts", "out.MP4")
	if mp4[len(mp4)-1] != "out.MP4" || !strings.Contains(strings.Join(mp4, " "), "-movflags +faststart") {
		t.Errorf("mp4 args = %q", mp4)
	}
	mkv := CopyArgs("in.ts", "out.mkv")
	if strings.Contains(strings.Join(mkv, " "), "movflags") {
		t.Errorf("mkv should not get movflags: %q", mkv)
	}
}

func TestRun_errorCarriesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'concat.txt: Invalid data found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	f := &FFmpeg{Path: script}
	err := f.Concat(context.Background(), "m.txt", "o.ts")
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") || !strings.Contains(err.Error(), "ffmpeg concat") {
		t.Fatalf("err = %v", err)
	}
}

func TestResolve_explicitMissing(t *testing.T) {
	if _, err := Resolve("/nonexistent/ffmpeg"); err == nil {
		t.Fatal("expected error")
	}
}
