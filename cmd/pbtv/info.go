package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/snapetech/pbtv/internal/config"
	"github.com/snapetech/pbtv/internal/httpclient"
	"github.com/snapetech/pbtv/internal/journal"
	"github.com/snapetech/pbtv/internal/resolve"
	"github.com/snapetech/pbtv/internal/segment"
)

func runResolve(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mediaURL := fs.String("media", cfg.MediaAPIURL, "Player media document URL")
	quality := fs.String("quality", "", "Print only the playlist URL of this quality")
	timeout := fs.Duration("timeout", httpclient.DefaultTimeout, "HTTP timeout")
	debug := fs.Bool("debug", cfg.Debug, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}
	r := &resolve.Resolver{MediaURL: *mediaURL, Client: httpclient.New(*timeout), Debug: *debug}
	res, err := r.Resolve(ctx)
	if err != nil {
		return err
	}
	if *quality != "" {
		s, err := res.Pick(*quality)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, s.URL)
		return nil
	}
	fmt.Fprintf(stdout, "master: %s\n", res.MasterURL)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUALITY\tRESOLUTION\tBANDWIDTH\tURL")
	for _, s := range res.Streams {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, s.Resolution, s.Bandwidth, s.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	best, _ := res.Pick("best")
	worst, _ := res.Pick("worst")
	fmt.Fprintf(stdout, "best=%s worst=%s\n", best.Name, worst.Name)
	return nil
}

func runSegments(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("segments", flag.ContinueOnError)
	fs.SetOutput(stderr)
	journalPath := fs.String("journal", cfg.JournalPath, "SQLite journal (empty = list files on disk)")
	runID := fs.String("run", "", "Show the segments of this run (<id> or latest)")
	limit := fs.Int("n", 10, "Number of runs to list")
	dir := fs.String("dir", cfg.OutputDir, "Directory to list when no journal is configured")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	if *journalPath == "" {
		files, err := segment.Glob(*dir, cfg.SegmentExt)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(stdout, f)
		}
		return nil
	}
	if _, err := os.Stat(*journalPath); err != nil {
		return fmt.Errorf("journal %s: %w", *journalPath, err)
	}
	j, err := journal.Open(*journalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	if *runID == "" {
		runs, err := j.Runs(ctx, *limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "RUN\tPID\tQUALITY\tSTARTED\tENDED\tREASON")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", r.ID, r.PID, r.Quality, stamp(r.Started), stamp(r.Ended), r.EndReason)
		}
		return tw.Flush()
	}
	id := *runID
	if id == "latest" {
		r, err := j.LatestRun(ctx)
		if err != nil {
			return err
		}
		id = r.ID
	}
	segs, err := j.Segments(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "IDX\tPATH\tSTARTED\tDURATION\tEXIT\tBYTES\tMERGED INTO")
	for _, s := range segs {
		dur := "-"
		if !s.Ended.IsZero() {
			dur = s.Ended.Sub(s.Started).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n", s.Index, s.Path, stamp(s.Started), dur, s.ExitCode, s.Bytes, s.MergedInto)
	}
	return tw.Flush()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
