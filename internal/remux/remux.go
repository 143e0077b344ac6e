// Package remux drives ffmpeg for stream-copy concatenation and container changes.
package remux

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// FFmpeg runs the ffmpeg binary at Path. Outputs are never overwritten (-n).
type FFmpeg struct {
	Path  string
	Debug bool
}

// Resolve finds ffmpeg: an explicit path first, then $PATH.
func Resolve(path string) (*FFmpeg, error) {
	name := strings.TrimSpace(path)
	if name == "" {
		name = "ffmpeg"
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &FFmpeg{Path: p}, nil
}

// ConcatArgs joins the files listed in manifest into one MPEG-TS file without re-encoding.
func ConcatArgs(manifest, out string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "warning", "-n",
		"-f", "concat", "-safe", "0",
		"-i", manifest,
		"-c", "copy",
		"-f", "mpegts",
		out,
	}
}

// CopyArgs stream-copies in into the container implied by out's extension.
func CopyArgs(in, out string) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "warning", "-n",
		"-i", in,
		"-c", "copy",
	}
	if ext := strings.ToLower(out); strings.HasSuffix(ext, ".mp4") || strings.HasSuffix(ext, ".m4v") || strings.HasSuffix(ext, ".mov") {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, out)
}

func (f *FFmpeg) Concat(ctx context.Context, manifest, out string) error {
	return f.run(ctx, "concat", ConcatArgs(manifest, out))
}

func (f *FFmpeg) Copy(ctx context.Context, in, out string) error {
	return f.run(ctx, "copy", CopyArgs(in, out))
}

func (f *FFmpeg) run(ctx context.Context, phase string, args []string) error {
	if f.Debug {
		log.Printf("remux: %s %s %q", phase, f.Path, args)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ffmpegErr(phase, err, stderr.String())
	}
	return nil
}

func ffmpegErr(phase string, err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if msg != "" {
		if len(msg) > 600 {
			msg = msg[:600] + "..."
		}
		return fmt.Errorf("ffmpeg %s: %w (stderr=%q)", phase, err, msg)
	}
	return fmt.Errorf("ffmpeg %s: %w", phase, err)
}
