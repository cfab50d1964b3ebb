package maintain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bertrandchenal/lakota/pkg/commit"
	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/events"
	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/repo"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/bertrandchenal/lakota/pkg/series"
)

func maintainTestSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		IndexTimestamp("ts", schema.Microsecond).
		Field("value", schema.Float64).
		Build()
	require.NoError(t, err)
	return s
}

// setupDivergedSeries registers "brussels" in the "weather" collection of r
// and gives it two divergent heads by appending both branches off the same
// base revision directly through the changelog, the same way series_test.go
// simulates two concurrent writers.
func setupDivergedSeries(t *testing.T, ctx context.Context, p pod.Pod, r *repo.Repo, s schema.Schema) *series.Series {
	t.Helper()
	col, err := r.CreateCollection(ctx, "weather", nil, "tester", 1000)
	require.NoError(t, err)

	identity := digest.Sum([]byte("brussels"))
	_, err = col.Put(ctx, "brussels", identity, nil, "tester", 1001)
	require.NoError(t, err)
	sr, err := col.OpenSeries(ctx, "brussels", s)
	require.NoError(t, err)

	base := frame.New(s, []frame.Array{frame.TimeArray{10}, frame.Float64Array{1}})
	baseRev, err := sr.Write(ctx, base, "tester", 1002)
	require.NoError(t, err)

	left := frame.New(s, []frame.Array{frame.TimeArray{20}, frame.Float64Array{2}})
	_, leftDigest, err := commit.Build(ctx, p, s, left, "tester", 1003)
	require.NoError(t, err)
	_, err = sr.Changelog().Append(ctx, baseRev.Own, leftDigest)
	require.NoError(t, err)

	right := frame.New(s, []frame.Array{frame.TimeArray{30}, frame.Float64Array{3}})
	_, rightDigest, err := commit.Build(ctx, p, s, right, "tester", 1003)
	require.NoError(t, err)
	_, err = sr.Changelog().Append(ctx, baseRev.Own, rightDigest)
	require.NoError(t, err)

	return sr
}

func TestCycleDetectsDivergenceOnWatchedSeries(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	r := repo.Open(p, "default")
	defer r.Close()

	s := maintainTestSchema(t)
	setupDivergedSeries(t, ctx, p, r, s)

	sched := NewScheduler(r, time.Hour)
	sched.Watch("weather", "brussels", s)

	sub := r.Events().Subscribe()
	defer r.Events().Unsubscribe(sub)

	require.NoError(t, sched.cycle(ctx))

	select {
	case ev := <-sub:
		require.Equal(t, events.EventDivergenceDetected, ev.Type)
		require.Equal(t, "brussels", ev.Series)
	case <-time.After(time.Second):
		t.Fatal("maintenance cycle never published a divergence event")
	}
}

func TestCycleAutoMergeConvergesWatchedSeries(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	r := repo.Open(p, "default")
	defer r.Close()

	s := maintainTestSchema(t)
	sr := setupDivergedSeries(t, ctx, p, r, s)

	sched := NewScheduler(r, time.Hour)
	sched.SetAutoMerge(true)
	sched.Watch("weather", "brussels", s)

	require.NoError(t, sched.cycle(ctx))

	heads, err := sr.Heads(ctx)
	require.NoError(t, err)
	require.Len(t, heads, 2, "merge re-parents off each original head, leaving two converged heads")

	out, err := sr.Read(ctx, series.Query{})
	require.NoError(t, err)
	require.Equal(t, frame.TimeArray{10, 20, 30}, out.Column(0), "auto-merge must not change the materialised view")
}

func TestCycleSweepsUnreachableBlobsPastSafetyHorizon(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	r := repo.Open(p, "default")
	defer r.Close()

	s := maintainTestSchema(t)
	col, err := r.CreateCollection(ctx, "weather", nil, "tester", 1000)
	require.NoError(t, err)
	identity := digest.Sum([]byte("brussels"))
	_, err = col.Put(ctx, "brussels", identity, nil, "tester", 1001)
	require.NoError(t, err)
	sr, err := col.OpenSeries(ctx, "brussels", s)
	require.NoError(t, err)

	for i := int64(0); i < 5; i++ {
		f := frame.New(s, []frame.Array{frame.TimeArray{i}, frame.Float64Array{float64(i)}})
		_, err := sr.Write(ctx, f, "tester", 1000+i)
		require.NoError(t, err)
	}
	require.NoError(t, sr.Defrag(ctx, "tester", 999999))

	sched := NewScheduler(r, time.Hour)
	// A negative horizon sweeps every unreachable blob regardless of age
	// (0 would fall back to gc's 60s default and sweep nothing here).
	sched.SetSafetyHorizon(-time.Second)
	sched.Watch("weather", "brussels", s)

	require.NoError(t, sched.cycle(ctx))

	out, err := sr.Read(ctx, series.Query{})
	require.NoError(t, err)
	require.Equal(t, 5, out.Len(), "gc sweep must never remove a blob reachable from a live revision")
}
