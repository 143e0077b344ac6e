package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.SegmentStarted()
	m.SegmentStarted()
	m.ExtractorExited(0, 1024)
	m.ExtractorExited(1, 0)
	m.BatchDone(true)
	m.BatchDone(false)
	m.Skipped("open")

	if got := testutil.ToFloat64(m.SegmentsStarted); got != 2 {
		t.Errorf("segments started = %v", got)
	}
	if got := testutil.ToFloat64(m.ExtractorExits.WithLabelValues("1")); got != 1 {
		t.Errorf("exit code 1 = %v", got)
	}
	if got := testutil.ToFloat64(m.SegmentBytes); got != 1024 {
		t.Errorf("bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.MergeBatches.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed batches = %v", got)
	}
	if got := testutil.ToFloat64(m.MergeSkipped.WithLabelValues("open")); got != 1 {
		t.Errorf("skipped open = %v", got)
	}
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics
	m.SegmentStarted()
	m.ExtractorExited(3, 10)
	m.BatchDone(true)
	m.Skipped("missing")
	if err := m.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Fatal(err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.BatchDone(true)
	p := filepath.Join(t.TempDir(), "pbtv.prom")
	if err := m.WriteTextfile(p); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `pbtv_merge_batches_total{result="ok"} 1`) {
		t.Fatalf("textfile missing batch counter:\n%s", b)
	}
}
