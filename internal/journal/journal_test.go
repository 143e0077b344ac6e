package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRunsAndSegments(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)
	t0 := time.UnixMilli(1717236000000)

	require.NoError(t, j.StartRun(ctx, Run{ID: "a", PID: 10, Source: "https://pickleballtv.com", Quality: "720p", Started: t0}))
	require.NoError(t, j.StartRun(ctx, Run{ID: "b", PID: 11, Source: "https://pickleballtv.com", Quality: "best", Started: t0.Add(time.Hour)}))

	id0, err := j.StartSegment(ctx, "a", 0, "/rec/x.ts", t0)
	require.NoError(t, err)
	id1, err := j.StartSegment(ctx, "a", 1, "/rec/x-1.ts", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, j.FinishSegment(ctx, id0, t0.Add(time.Minute), 1, 4096))
	require.NoError(t, j.EndRun(ctx, "a", t0.Add(2*time.Minute), "marker removed"))

	latest, err := j.LatestRun(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", latest.ID)
	require.True(t, latest.Ended.IsZero())

	runs, err := j.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "a", runs[1].ID)
	require.Equal(t, "marker removed", runs[1].EndReason)
	require.True(t, t0.Add(2*time.Minute).Equal(runs[1].Ended))

	segs, err := j.Segments(ctx, "a")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	require.Equal(t, "/rec/x.ts", segs[0].Path)
	require.Equal(t, 1, segs[0].ExitCode)
	require.EqualValues(t, 4096, segs[0].Bytes)
	require.Equal(t, id1, segs[1].ID)
	require.Equal(t, -1, segs[1].ExitCode)
}

func TestLatestRun_empty(t *testing.T) {
	j := openTest(t)
	_, err := j.LatestRun(context.Background())
	require.ErrorIs(t, err, ErrNoRuns)
}

func TestRecordMerge(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)
	now := time.Now()
	require.NoError(t, j.StartRun(ctx, Run{ID: "r", PID: 1, Source: "s", Quality: "q", Started: now}))
	_, err := j.StartSegment(ctx, "r", 0, "/rec/x.ts", now)
	require.NoError(t, err)
	_, err = j.StartSegment(ctx, "r", 1, "/rec/x-1.ts", now)
	require.NoError(t, err)

	require.NoError(t, j.RecordMerge(ctx, "/out/x.mp4", []string{"/rec/x.ts"}, now))

	segs, err := j.Segments(ctx, "r")
	require.NoError(t, err)
	require.Equal(t, "/out/x.mp4", segs[0].MergedInto)
	require.Empty(t, segs[1].MergedInto)
}

func TestOpen_emptyPath(t *testing.T) {
	_, err := Open(" ")
	require.Error(t, err)
}
