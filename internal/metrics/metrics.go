// Package metrics holds the Prometheus counters shared by the recorder and the merger.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe for concurrent use. A nil *Metrics is a no-op.
type Metrics struct {
	reg *prometheus.Registry

	SegmentsStarted prometheus.Counter
	ExtractorExits  *prometheus.CounterVec
	SegmentBytes    prometheus.Counter
	MergeBatches    *prometheus.CounterVec
	MergeSkipped    *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		SegmentsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pbtv_segments_started_total",
			Help: "Extraction command invocations started.",
		}),
		ExtractorExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pbtv_extractor_exits_total",
			Help: "Extraction command exits by exit code (-1 = did not start or killed).",
		}, []string{"code"}),
		SegmentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pbtv_segment_bytes_total",
			Help: "Bytes written to finished segment files.",
		}),
		MergeBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pbtv_merge_batches_total",
			Help: "Merge batches by result.",
		}, []string{"result"}),
		MergeSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pbtv_merge_skipped_total",
			Help: "Input files skipped by the merger, by reason.",
		}, []string{"reason"}),
	}
	m.reg.MustRegister(m.SegmentsStarted, m.ExtractorExits, m.SegmentBytes, m.MergeBatches, m.MergeSkipped)
	return m
}

// Registry exposes the underlying registry (tests, textfile export).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) SegmentStarted() {
	if m == nil {
		return
	}
	m.SegmentsStarted.Inc()
}

func (m *Metrics) ExtractorExited(code int, bytes int64) {
	if m == nil {
		return
	}
	m.ExtractorExits.WithLabelValues(strconv.Itoa(code)).Inc()
	if bytes > 0 {
		m.SegmentBytes.Add(float64(bytes))
	}
}

func (m *Metrics) BatchDone(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.MergeBatches.WithLabelValues(result).Inc()
}

func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.MergeSkipped.WithLabelValues(reason).Inc()
}

// WriteTextfile writes the registry in text format for a node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("metrics: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
