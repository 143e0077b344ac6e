// Package merger concatenates recorded segment files into playable outputs,
// one output per batch, by stream-copying through a remuxer.
package merger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/snapetech/pbtv/internal/metrics"
)

var (
	// ErrNoInput means there was nothing to merge at all.
	ErrNoInput      = errors.New("no input files")
	// ErrNoValidInput means every file of a batch was open or missing.
	ErrNoValidInput = errors.New("no valid input files")
	// ErrOutputExists means a batch would overwrite an existing file.
	ErrOutputExists = errors.New("output exists")
)

// Options control batching, naming and cleanup.
type Options struct {
	BatchSize int    // <= 0 = one batch
	Delete    bool   // remove sources after their batch succeeded
	Output    string // explicit output path; "" = named after the batch's first input
	OutputDir string // directory for derived output names; "" = "."
	Ext       string // output container extension; "" = mp4
	Debug     bool   // keep manifests
	Progress  io.Writer
}

// Remuxer produces the intermediate and final files. *remux.FFmpeg implements it.
type Remuxer interface {
	Concat(ctx context.Context, manifest, out string) error
	Copy(ctx context.Context, in, out string) error
}

// OpenChecker reports files still being written. *procfiles.Checker implements it.
type OpenChecker interface {
	IsOpen(ctx context.Context, path string) (bool, error)
}

// Ledger records finished merges. *journal.Journal implements it.
type Ledger interface {
	RecordMerge(ctx context.Context, output string, inputs []string, at time.Time) error
}

// Deps are the merger's collaborators; only Remuxer is required.
type Deps struct {
	Remuxer Remuxer
	Checker OpenChecker      // optional; nil = nothing is open
	Ledger  Ledger           // optional
	Metrics *metrics.Metrics // optional
	Now     func() time.Time // optional; time.Now
}

// Result describes one batch.
type Result struct {
	Batch   int // 1-based
	Output  string
	Inputs  []string // absolute paths that went into Output
	Skipped []string
	Err     error
}

// Merger merges segment lists batch by batch. It is not safe for concurrent use.
type Merger struct {
	opts Options
	deps Deps
}

// New fills in defaults: mp4 output, current directory, time.Now.
func New(opts Options, deps Deps) *Merger {
	if opts.Ext == "" {
		opts.Ext = "mp4"
	}
	opts.Ext = strings.TrimPrefix(opts.Ext, ".")
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Merger{opts: opts, deps: deps}
}

// Batches splits files into consecutive groups of at most size, preserving order.
func Batches(files []string, size int) [][]string {
	if len(files) == 0 {
		return nil
	}
	if size <= 0 || size >= len(files) {
		return [][]string{files}
	}
	out := make([][]string, 0, (len(files)+size-1)/size)
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		out = append(out, files[start:end])
	}
	return out
}

// Merge processes batches in order. A failed batch does not stop the rest; the
// returned error joins every batch failure.
func (m *Merger) Merge(ctx context.Context, files []string) ([]Result, error) {
	if len(files) == 0 {
		return nil, ErrNoInput
	}
	if m.deps.Remuxer == nil {
		return nil, fmt.Errorf("missing remuxer")
	}
	batches := Batches(files, m.opts.BatchSize)
	var bar *progressbar.ProgressBar
	if m.opts.Progress != nil {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(m.opts.Progress),
			progressbar.OptionSetDescription("merging"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	log.Printf("merger: files=%d batches=%d ext=%s delete=%t", len(files), len(batches), m.opts.Ext, m.opts.Delete)

	var results []Result
	var errs []error
	for i, b := range batches {
		if ctx.Err() != nil {
			errs = append(errs, context.Cause(ctx))
			break
		}
		r := m.mergeBatch(ctx, i, b, bar)
		m.deps.Metrics.BatchDone(r.Err == nil)
		if r.Err != nil {
			log.Printf("merger: batch %d/%d failed: %v", r.Batch, len(batches), r.Err)
			errs = append(errs, fmt.Errorf("batch %d: %w", r.Batch, r.Err))
		} else {
			log.Printf("merger: batch %d/%d output=%s inputs=%d skipped=%d", r.Batch, len(batches), r.Output, len(r.Inputs), len(r.Skipped))
		}
		results = append(results, r)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return results, errors.Join(errs...)
}

// mergeBatch advances bar (may be nil) once per input as it is accepted or skipped.
func (m *Merger) mergeBatch(ctx context.Context, n int, files []string, bar *progressbar.ProgressBar) Result {
	r := Result{Batch: n + 1}
	for _, f := range files {
		if bar != nil {
			_ = bar.Add(1)
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			r.Err = err
			return r
		}
		if _, err := os.Stat(abs); err != nil {
			log.Printf("merger: skipping %s: %v", f, err)
			m.deps.Metrics.Skipped("missing")
			r.Skipped = append(r.Skipped, f)
			continue
		}
		if m.deps.Checker != nil {
			open, err := m.deps.Checker.IsOpen(ctx, abs)
			if err != nil {
				r.Err = fmt.Errorf("open-file check %s: %w", f, err)
				return r
			}
			if open {
				log.Printf("merger: skipping %s: still open by the extractor", f)
				m.deps.Metrics.Skipped("open")
				r.Skipped = append(r.Skipped, f)
				continue
			}
		}
		r.Inputs = append(r.Inputs, abs)
	}
	if len(r.Inputs) == 0 {
		r.Err = ErrNoValidInput
		return r
	}

	stem, out := m.outputPath(n, r.Inputs)
	if _, err := os.Lstat(out); err == nil {
		r.Err = fmt.Errorf("%w: %s", ErrOutputExists, out)
		return r
	}
	manifest := stem + ".concat.txt"
	inter := stem + ".concat.ts"
	if _, err := os.Lstat(inter); err == nil {
		r.Err = fmt.Errorf("%w: %s", ErrOutputExists, inter)
		return r
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		r.Err = err
		return r
	}
	if err := WriteManifest(manifest, r.Inputs); err != nil {
		r.Err = err
		return r
	}
	defer func() {
		if r.Err != nil {
			if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
				log.Printf("merger: remove partial %s: %v", out, err)
			}
		}
		if err := os.Remove(inter); err != nil && !os.IsNotExist(err) {
			log.Printf("merger: remove %s: %v", inter, err)
		}
		if m.opts.Debug {
			log.Printf("merger: kept manifest %s", manifest)
			return
		}
		if err := os.Remove(manifest); err != nil && !os.IsNotExist(err) {
			log.Printf("merger: remove %s: %v", manifest, err)
		}
	}()

	if err := m.deps.Remuxer.Concat(ctx, manifest, inter); err != nil {
		r.Err = err
		return r
	}
	if err := m.deps.Remuxer.Copy(ctx, inter, out); err != nil {
		r.Err = err
		return r
	}
	r.Output = out

	if m.deps.Ledger != nil {
		lctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.deps.Ledger.RecordMerge(lctx, out, r.Inputs, m.deps.Now()); err != nil {
			log.Printf("merger: journal record merge: %v", err)
		}
		cancel()
	}
	if m.opts.Delete {
		for _, in := range r.Inputs {
			if err := os.Remove(in); err != nil {
				log.Printf("merger: delete %s: %v", in, err)
			}
		}
	}
	return r
}

// outputPath returns the path stem (used for the manifest and intermediate) and
// the final output path for batch n. A derived name that would land on one of
// the inputs gets a "-merged" suffix.
func (m *Merger) outputPath(n int, inputs []string) (stem, out string) {
	ext := m.opts.Ext
	if m.opts.Output != "" {
		stem = m.opts.Output
		if e := filepath.Ext(stem); e != "" {
			ext = strings.TrimPrefix(e, ".")
			stem = strings.TrimSuffix(stem, e)
		}
		if n > 0 {
			stem += "-" + strconv.Itoa(n)
		}
	} else {
		base := filepath.Base(inputs[0])
		stem = filepath.Join(m.opts.OutputDir, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	if abs, err := filepath.Abs(stem); err == nil {
		stem = abs
	}
	if slices.Contains(inputs, stem+"."+ext) {
		stem += "-merged"
	}
	return stem, stem + "." + ext
}

// WriteManifest writes a concat demuxer list: one "file '<path>'" line per input.
func WriteManifest(path string, inputs []string) error {
	var b strings.Builder
	for _, in := range inputs {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(in, "'", `'\''`))
		b.WriteString("'\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
