// Package selector lets the user pick segment files with an external fuzzy finder.
package selector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ErrCancelled is returned when the finder exits without a selection (fzf exits 130 on Esc/Ctrl-C).
var ErrCancelled = errors.New("selection cancelled")

// Command runs Argv with the candidates on stdin and reads the chosen lines from stdout.
// The finder draws its UI on Stderr (the terminal by default).
type Command struct {
	Argv   []string
	Stderr io.Writer
}

func (c Command) Select(ctx context.Context, candidates []string) ([]string, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("selector: empty command")
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = strings.NewReader(strings.Join(candidates, "\n") + "\n")
	cmd.Stdout = &out
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && (ee.ExitCode() == 1 || ee.ExitCode() == 130) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("selector %s: %w", c.Argv[0], err)
	}
	return ParseSelection(out.String()), nil
}

// ParseSelection splits newline-separated finder output, dropping blank lines.
func ParseSelection(s string) []string {
	var sel []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sel = append(sel, line)
	}
	return sel
}
