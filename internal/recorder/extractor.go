package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Extractor runs one invocation of the stream-extraction command and waits for it.
// A non-zero exit is reported through code with a nil error; err is set only when
// the command could not be started. code is -1 when the process was killed.
type Extractor interface {
	Run(ctx context.Context, args []string) (code int, err error)
}

// Command runs an external extractor binary (streamlink). On cancellation the
// child gets SIGINT and is killed if it is still alive after Grace.
type Command struct {
	Path  string
	Grace time.Duration
}

func (c *Command) Run(ctx context.Context, args []string) (int, error) {
	name := filepath.Base(c.Path)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Cancel = func() error { return signalChild(cmd.Process) }
	cmd.WaitDelay = c.Grace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 8 * time.Second
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		return -1, fmt.Errorf("start %s: %w", name, err)
	}
	log.Printf("recorder: %s pid=%d args=%q", name, cmd.Process.Pid, strings.Join(args, " "))

	var ioWG sync.WaitGroup
	ioWG.Add(2)
	go func() {
		defer ioWG.Done()
		copyPrefixed(name, "stdout", outR)
	}()
	go func() {
		defer ioWG.Done()
		copyPrefixed(name, "stderr", errR)
	}()

	err := cmd.Wait()
	outW.Close()
	errW.Close()
	ioWG.Wait()
	return exitCode(err), nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func signalChild(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(os.Interrupt)
}

func copyPrefixed(name, stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	for sc.Scan() {
		log.Printf("[%s %s] %s", name, stream, sc.Text())
	}
	if err := sc.Err(); err != nil {
		log.Printf("[%s %s] read err=%v", name, stream, err)
		_, _ = io.Copy(io.Discard, r)
	}
}
