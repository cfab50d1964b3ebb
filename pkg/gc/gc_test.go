package gc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bertrandchenal/lakota/pkg/commit"
	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/bertrandchenal/lakota/pkg/series"
)

func gcTestSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		IndexTimestamp("ts", schema.Microsecond).
		Field("value", schema.Float64).
		Build()
	require.NoError(t, err)
	return s
}

func TestSweepDeletesOnlyUnreachableAndAged(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	s := gcTestSchema(t)

	sr := series.Open(p, s, digest.Sum([]byte("sensor-a")))
	f := frame.New(s, []frame.Array{frame.TimeArray{1, 2}, frame.Float64Array{1, 2}})
	_, err := sr.Write(ctx, f, "tester", 1000)
	require.NoError(t, err)

	reachable := NewReachable()
	cl := sr.Changelog()
	require.NoError(t, CollectChangelog(ctx, p, s, cl, reachable))

	// A stray orphan commit blob, old enough to clear the safety horizon.
	orphan := frame.New(s, []frame.Array{frame.TimeArray{99}, frame.Float64Array{9}})
	_, _, err = commit.Build(ctx, p, s, orphan, "tester", 2000)
	require.NoError(t, err)

	deleted, err := Sweep(ctx, p, reachable, -time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, deleted, "only the orphan commit should be swept")

	// The reachable data is still readable after gc.
	out, err := sr.Read(ctx, series.Query{})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
}

func TestSweepRespectsSafetyHorizon(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	s := gcTestSchema(t)

	orphan := frame.New(s, []frame.Array{frame.TimeArray{1}, frame.Float64Array{1}})
	_, _, err := commit.Build(ctx, p, s, orphan, "tester", 1000)
	require.NoError(t, err)

	deleted, err := Sweep(ctx, p, NewReachable(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, deleted, "a blob younger than the safety horizon must survive")
}
