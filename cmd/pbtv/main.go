// Command pbtv records the PickleballTV live stream and merges the recorded segments.
//
//	stream    Play or record the stream, restarting the extractor whenever it exits
//	merge     Concatenate segment files into one output per batch
//	resolve   Show the HLS master playlist and the qualities it offers
//	segments  List recorded segments (journal runs, or files on disk)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapetech/pbtv/internal/config"
	"github.com/snapetech/pbtv/internal/merger"
	"github.com/snapetech/pbtv/internal/runlock"
	"github.com/snapetech/pbtv/internal/schedule"
)

// usageError marks invalid input: bad flags, bad start time, nothing to merge.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// signalError is the cancellation cause when a termination signal arrives.
type signalError struct{ sig os.Signal }

func (e signalError) Error() string { return "received " + e.sig.String() }

// notifyContext is signal.NotifyContext with the signal recorded as the cause.
// After the first signal the handler is removed, so a second one kills the process.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		select {
		case sig := <-ch:
			log.Printf("signal: %s; shutting down", sig)
			signal.Stop(ch)
			cancel(signalError{sig})
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel(nil)
	}
}

// exitCode maps a command result to the process exit status.
func exitCode(err error) int {
	var sigErr signalError
	var usage usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &sigErr):
		if s, ok := sigErr.sig.(syscall.Signal); ok {
			return 128 + int(s)
		}
		return 1
	case errors.As(err, &usage),
		errors.Is(err, schedule.ErrInPast),
		errors.Is(err, schedule.ErrInvalid),
		errors.Is(err, merger.ErrNoInput):
		return 2
	default:
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: pbtv <stream|merge|resolve|segments> [flags]\n")
	fmt.Fprintf(w, "  stream    Play (default) or record (-record) the stream; restarts the extractor on every exit\n")
	fmt.Fprintf(w, "  merge     Merge segment files (args, -run <id|latest>, or pick interactively)\n")
	fmt.Fprintf(w, "  resolve   Print the master playlist URL and the offered qualities\n")
	fmt.Fprintf(w, "  segments  List journal runs and their segments, or segment files on disk\n")
	fmt.Fprintf(w, "Stop a recording after the current segment: rm <lock dir>/pbtv.recording\n")
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		usage(stderr)
		return usageError{errors.New("missing command")}
	}
	cfg, err := config.Load()
	if err != nil {
		return usageError{err}
	}
	ctx, stop := notifyContext(context.Background())
	defer stop()

	switch args[0] {
	case "stream":
		return runStream(ctx, cfg, args[1:], stderr)
	case "merge":
		return runMerge(ctx, cfg, args[1:], stderr)
	case "resolve":
		return runResolve(ctx, cfg, args[1:], stdout, stderr)
	case "segments":
		return runSegments(ctx, cfg, args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return usagef("unknown command %q", args[0])
	}
}

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[pbtv] ")

	err := run(os.Args[1:], os.Stdout, os.Stderr)
	var locked *runlock.LockedError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.As(err, &locked):
		log.Printf("Another pbtv stream is running (pid %d, lock %s). If it is gone, remove the lock file by hand.", locked.PID, locked.Path)
	default:
		log.Printf("%v", err)
	}
	os.Exit(exitCode(err))
}
