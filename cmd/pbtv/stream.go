package main

import (
	"context"
	"flag"
	"io"
	"log"
	"strings"
	"time"

	"github.com/snapetech/pbtv/internal/config"
	"github.com/snapetech/pbtv/internal/httpclient"
	"github.com/snapetech/pbtv/internal/journal"
	"github.com/snapetech/pbtv/internal/metrics"
	"github.com/snapetech/pbtv/internal/recorder"
	"github.com/snapetech/pbtv/internal/resolve"
	"github.com/snapetech/pbtv/internal/schedule"
)

func runStream(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	fs.SetOutput(stderr)
	record := fs.Bool("record", false, "Record to numbered segment files instead of playing")
	quality := fs.String("quality", cfg.Quality, "Stream quality (e.g. 720p, best, worst; comma list = fallbacks)")
	player := fs.String("player", cfg.Player, "Player for playback mode")
	duration := fs.Duration("duration", 0, "Stop after this long (e.g. 2h30m). 0 = until stopped")
	at := fs.String("at", "", "Delayed start: 21:30, 9pm, +30m, \"in 2h\" or a date/time")
	outdir := fs.String("outdir", cfg.OutputDir, "Directory for segment files (record mode)")
	check := fs.Bool("check", false, "Resolve the stream first and fail if the quality is not offered")
	journalPath := fs.String("journal", cfg.JournalPath, "SQLite journal of runs and segments (empty = off)")
	metricsAddr := fs.String("metrics-addr", cfg.MetricsAddr, "Serve Prometheus /metrics on this address (empty = off)")
	debug := fs.Bool("debug", cfg.Debug, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}
	if fs.NArg() > 0 {
		return usagef("stream: unexpected arguments %q", fs.Args())
	}
	if *duration < 0 {
		return usagef("stream: negative -duration %s", *duration)
	}
	var startAt time.Time
	if strings.TrimSpace(*at) != "" {
		t, err := schedule.Parse(*at, time.Now())
		if err != nil {
			return err
		}
		startAt = t
	}

	if *check {
		r := &resolve.Resolver{MediaURL: cfg.MediaAPIURL, Client: httpclient.New(0), Debug: *debug}
		res, err := r.Resolve(ctx)
		if err != nil {
			return err
		}
		s, err := res.Pick(*quality)
		if err != nil {
			return err
		}
		log.Printf("stream: quality %s -> %s (%s, %d bps)", *quality, s.Name, s.Resolution, s.Bandwidth)
	}

	if !startAt.IsZero() {
		log.Printf("stream: waiting until %s (%s)", startAt.Format(time.RFC1123), time.Until(startAt).Round(time.Second))
		if err := schedule.SleepUntil(ctx, startAt); err != nil {
			return err
		}
	}

	deps := recorder.Deps{
		Extractor: &recorder.Command{Path: cfg.StreamlinkPath, Grace: cfg.StopGrace},
	}
	if *journalPath != "" {
		j, err := journal.Open(*journalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		deps.Ledger = j
	}
	if *metricsAddr != "" {
		m := metrics.New()
		deps.Metrics = m
		go func() {
			if err := m.Serve(ctx, *metricsAddr); err != nil {
				log.Printf("metrics: %v", err)
			}
		}()
	}

	sess, err := recorder.Open(recorder.Options{
		SourceURL:    cfg.SourceURL,
		Quality:      *quality,
		Record:       *record,
		Player:       *player,
		ExtraArgs:    cfg.StreamlinkArgs,
		OutputDir:    *outdir,
		Prefix:       cfg.SegmentPrefix,
		Ext:          cfg.SegmentExt,
		Duration:     *duration,
		RestartPause: cfg.RestartPause,
		LockPath:     cfg.LockPath(),
		MarkerPath:   cfg.MarkerPath(),
		Debug:        *debug,
	}, deps)
	if err != nil {
		return err
	}
	runErr := sess.Run(ctx)
	closeErr := sess.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		log.Printf("stream: shutdown: %v", closeErr)
	}
	return nil
}
