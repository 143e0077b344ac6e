// Package recorder supervises the stream-extraction command: it restarts the
// command every time it exits, writing one numbered segment file per run, until
// the run marker disappears, the duration elapses or the context is cancelled.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/snapetech/pbtv/internal/journal"
	"github.com/snapetech/pbtv/internal/metrics"
	"github.com/snapetech/pbtv/internal/runlock"
	"github.com/snapetech/pbtv/internal/segment"
)

var errDurationElapsed = errors.New("duration elapsed")

// Options describe one supervised run; zero values take the package defaults.
type Options struct {
	SourceURL string
	Quality   string
	Record    bool   // false = playback through Player
	Player    string // playback mode only
	ExtraArgs []string

	OutputDir string
	Prefix    string
	Ext       string

	Duration     time.Duration // 0 = until interrupted
	RestartPause time.Duration

	LockPath   string
	MarkerPath string

	Debug bool
}

// Ledger receives run and segment bookkeeping. *journal.Journal implements it.
type Ledger interface {
	StartRun(ctx context.Context, r journal.Run) error
	EndRun(ctx context.Context, id string, end time.Time, reason string) error
	StartSegment(ctx context.Context, runID string, idx int, path string, start time.Time) (int64, error)
	FinishSegment(ctx context.Context, id int64, end time.Time, exitCode int, bytes int64) error
}

// Deps are the session's collaborators; only Extractor is required.
type Deps struct {
	Extractor Extractor
	Ledger    Ledger           // optional
	Metrics   *metrics.Metrics // optional
	Now       func() time.Time // optional; time.Now
}

// Session is one supervisor instance. Open acquires the run lock and creates the
// run marker; Close releases both. Close must be called after Run returns.
type Session struct {
	opts    Options
	deps    Deps
	lock    *runlock.Lock
	marker  *runlock.Marker
	namer   segment.Namer
	limiter *rate.Limiter
	runID   string
	index   int
	reason  string

	closeOnce sync.Once
	closeErr  error
}

// Open validates opts, takes the run lock and creates the run marker.
func Open(opts Options, deps Deps) (*Session, error) {
	if strings.TrimSpace(opts.SourceURL) == "" {
		return nil, fmt.Errorf("missing source URL")
	}
	if strings.TrimSpace(opts.Quality) == "" {
		return nil, fmt.Errorf("missing quality")
	}
	if !opts.Record && strings.TrimSpace(opts.Player) == "" {
		return nil, fmt.Errorf("playback mode needs a player")
	}
	if opts.LockPath == "" || opts.MarkerPath == "" {
		return nil, fmt.Errorf("missing lock or marker path")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("missing extractor")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.Prefix == "" {
		opts.Prefix = "pbtv"
	}
	if opts.Ext == "" {
		opts.Ext = "ts"
	}
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if opts.Record {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	lock, err := runlock.Acquire(opts.LockPath)
	if err != nil {
		return nil, err
	}
	marker, err := runlock.CreateMarker(opts.MarkerPath)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	limit := rate.Inf
	if opts.RestartPause > 0 {
		limit = rate.Every(opts.RestartPause)
	}
	now := deps.Now()
	s := &Session{
		opts:    opts,
		deps:    deps,
		lock:    lock,
		marker:  marker,
		namer:   segment.NewNamer(dir, opts.Prefix, opts.Ext, now),
		limiter: rate.NewLimiter(limit, 1),
		runID:   uuid.NewString(),
	}
	if deps.Ledger != nil {
		lctx, cancel := ledgerContext()
		defer cancel()
		err := deps.Ledger.StartRun(lctx, journal.Run{
			ID:      s.runID,
			PID:     os.Getpid(),
			Source:  opts.SourceURL,
			Quality: opts.Quality,
			Started: now,
		})
		if err != nil {
			log.Printf("recorder: journal start run: %v", err)
		}
	}
	log.Printf("recorder: run=%s lock=%s marker=%s record=%t quality=%s duration=%s",
		s.runID, lock.Path(), marker.Path(), opts.Record, opts.Quality, opts.Duration)
	return s, nil
}

// RunID identifies this session in the journal.
func (s *Session) RunID() string { return s.runID }

// Segments returns how many extraction invocations have completed.
func (s *Session) Segments() int { return s.index }

// Run supervises the extractor until the marker is removed (nil), the duration
// elapses (nil), ctx is cancelled (context.Cause) or a fatal error occurs.
func (s *Session) Run(ctx context.Context) error {
	err := s.run(ctx)
	switch {
	case err == nil && s.reason == "":
		s.reason = "marker removed"
	case err != nil:
		s.reason = "stopped: " + err.Error()
	}
	return err
}

func (s *Session) run(ctx context.Context) error {
	if s.opts.Duration <= 0 {
		return s.loop(ctx)
	}
	loopCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan error, 1)
	go func() { done <- s.loop(loopCtx) }()

	timer := time.NewTimer(s.opts.Duration)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		log.Printf("recorder: duration %s elapsed; stopping", s.opts.Duration)
		s.reason = "duration elapsed"
		if err := s.marker.Remove(); err != nil {
			log.Printf("recorder: remove marker: %v", err)
		}
		cancel(errDurationElapsed)
		if err := <-done; err != nil && !errors.Is(err, errDurationElapsed) {
			return err
		}
		return nil
	}
}

func (s *Session) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if s.markerGone() {
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return err
		}
		if s.markerGone() {
			return nil
		}
		path := ""
		if s.opts.Record {
			p, err := s.namer.Next(s.index)
			if err != nil {
				return err
			}
			path = p
		}
		if err := s.runOne(ctx, path); err != nil {
			return err
		}
		s.index++
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		s.debugf("recorder: restarting extractor (next segment %d)", s.index)
	}
}

func (s *Session) markerGone() bool {
	if s.marker.Exists() {
		return false
	}
	log.Printf("recorder: marker %s gone after %d segment(s); not restarting", s.marker.Path(), s.index)
	return true
}

func (s *Session) runOne(ctx context.Context, path string) error {
	args := s.args(path)
	start := s.deps.Now()
	s.deps.Metrics.SegmentStarted()

	var segID int64
	if s.deps.Ledger != nil && path != "" {
		lctx, cancel := ledgerContext()
		id, err := s.deps.Ledger.StartSegment(lctx, s.runID, s.index, path, start)
		cancel()
		if err != nil {
			log.Printf("recorder: journal start segment: %v", err)
		}
		segID = id
	}
	if path != "" {
		log.Printf("recorder: segment=%d output=%s", s.index, path)
	} else {
		log.Printf("recorder: playback %d via %s", s.index, s.opts.Player)
	}
	s.debugf("recorder: extractor args=%q", args)

	code, err := s.deps.Extractor.Run(ctx, args)
	end := s.deps.Now()
	var size int64
	if path != "" {
		if fi, statErr := os.Stat(path); statErr == nil {
			size = fi.Size()
		}
	}
	s.deps.Metrics.ExtractorExited(code, size)
	if segID != 0 {
		lctx, cancel := ledgerContext()
		if lerr := s.deps.Ledger.FinishSegment(lctx, segID, end, code, size); lerr != nil {
			log.Printf("recorder: journal finish segment: %v", lerr)
		}
		cancel()
	}
	if err != nil {
		return fmt.Errorf("segment %d: %w", s.index, err)
	}
	log.Printf("recorder: segment=%d exited code=%d dur=%s bytes=%d", s.index, code, end.Sub(start).Round(time.Millisecond), size)
	return nil
}

// args builds "[extra] --output <path> <url> <quality>" or
// "[extra] --player <player> <url> <quality>".
func (s *Session) args(path string) []string {
	args := make([]string, 0, len(s.opts.ExtraArgs)+4)
	args = append(args, s.opts.ExtraArgs...)
	if s.opts.Record {
		args = append(args, "--output", path)
	} else {
		args = append(args, "--player", s.opts.Player)
	}
	return append(args, s.opts.SourceURL, s.opts.Quality)
}

// Close removes the run marker and releases the run lock if this process still
// owns it. It runs once; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.marker.Remove(); err != nil {
			errs = append(errs, fmt.Errorf("remove marker: %w", err))
		}
		if err := s.lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
		if s.deps.Ledger != nil {
			reason := s.reason
			if reason == "" {
				reason = "closed"
			}
			lctx, cancel := ledgerContext()
			if err := s.deps.Ledger.EndRun(lctx, s.runID, s.deps.Now(), reason); err != nil {
				log.Printf("recorder: journal end run: %v", err)
			}
			cancel()
		}
		log.Printf("recorder: run=%s closed after %d segment(s)", s.runID, s.index)
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Session) debugf(format string, args ...any) {
	if s.opts.Debug {
		log.Printf(format, args...)
	}
}

// Journal writes outlive the supervising context so the final rows land after a signal.
func ledgerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
