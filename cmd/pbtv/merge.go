package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/snapetech/pbtv/internal/config"
	"github.com/snapetech/pbtv/internal/journal"
	"github.com/snapetech/pbtv/internal/merger"
	"github.com/snapetech/pbtv/internal/metrics"
	"github.com/snapetech/pbtv/internal/procfiles"
	"github.com/snapetech/pbtv/internal/remux"
	"github.com/snapetech/pbtv/internal/segment"
	"github.com/snapetech/pbtv/internal/selector"
)

func runMerge(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	batch := fs.Int("batch", cfg.BatchSize, "Files per output (0 = all files in one output)")
	del := fs.Bool("delete", false, "Delete source segments after their batch merged")
	output := fs.String("o", "", "Output path (later batches get -1, -2, ... appended)")
	outdir := fs.String("outdir", ".", "Output directory when -o is not given")
	ext := fs.String("ext", cfg.MergeExt, "Output container extension")
	runID := fs.String("run", "", "Merge the segments of a journal run (<id> or latest)")
	journalPath := fs.String("journal", cfg.JournalPath, "SQLite journal (needed for -run; records merges)")
	textfile := fs.String("metrics-textfile", "", "Write Prometheus metrics here when done")
	debug := fs.Bool("debug", cfg.Debug, "Debug logging; keep concat manifests")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	var j *journal.Journal
	if *journalPath != "" {
		var err error
		if j, err = journal.Open(*journalPath); err != nil {
			return err
		}
		defer j.Close()
	}

	files := fs.Args()
	switch {
	case len(files) > 0:
		if *runID != "" {
			return usagef("merge: -run and file arguments are exclusive")
		}
	case *runID != "":
		if j == nil {
			return usagef("merge: -run needs -journal or PBTV_JOURNAL")
		}
		var err error
		if files, err = runSegmentPaths(ctx, j, *runID); err != nil {
			return err
		}
	default:
		candidates, err := segment.Glob(".", cfg.SegmentExt)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return fmt.Errorf("%w: no *.%s files in the current directory", merger.ErrNoInput, cfg.SegmentExt)
		}
		files, err = selector.Command{Argv: cfg.Selector}.Select(ctx, candidates)
		if err != nil {
			if errors.Is(err, selector.ErrCancelled) {
				return fmt.Errorf("%w: %v", merger.ErrNoInput, err)
			}
			return err
		}
	}
	if len(files) == 0 {
		return merger.ErrNoInput
	}

	ff, err := remux.Resolve(cfg.FFmpegPath)
	if err != nil {
		return err
	}
	ff.Debug = *debug
	m := metrics.New()
	deps := merger.Deps{
		Remuxer: ff,
		Checker: procfiles.New(cfg.ProcessName),
		Metrics: m,
	}
	if j != nil {
		deps.Ledger = j
	}
	opts := merger.Options{
		BatchSize: *batch,
		Delete:    *del,
		Output:    *output,
		OutputDir: *outdir,
		Ext:       *ext,
		Debug:     *debug,
	}
	if !*debug {
		opts.Progress = os.Stderr
	}
	results, mergeErr := merger.New(opts, deps).Merge(ctx, files)
	for _, r := range results {
		if r.Err == nil {
			log.Printf("merge: wrote %s (%d file(s))", r.Output, len(r.Inputs))
		}
	}
	if err := m.WriteTextfile(*textfile); err != nil {
		log.Printf("merge: metrics textfile: %v", err)
	}
	return mergeErr
}

// runSegmentPaths returns the recorded segment files of run id ("latest" = newest run),
// skipping segments already merged.
func runSegmentPaths(ctx context.Context, j *journal.Journal, id string) ([]string, error) {
	if id == "latest" {
		r, err := j.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		id = r.ID
	}
	segs, err := j.Segments(ctx, id)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, s := range segs {
		if s.MergedInto != "" {
			log.Printf("merge: %s already merged into %s; skipping", s.Path, s.MergedInto)
			continue
		}
		paths = append(paths, s.Path)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: run %s has no unmerged segments", merger.ErrNoInput, id)
	}
	return paths, nil
}
