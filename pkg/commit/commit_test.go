package commit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/schema"
)

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		Index("ts", schema.Int64).
		Field("value", schema.Float64).
		Build()
	require.NoError(t, err)
	return s
}

func TestBuildEmbedsSmallFrame(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	s := testSchema(t)
	f := frame.New(s, []frame.Array{
		frame.Int64Array{1, 2, 3},
		frame.Float64Array{10, 20, 30},
	})

	_, d, err := Build(ctx, p, s, f, "tester", 1000)
	require.NoError(t, err)

	c, err := Load(ctx, p, d)
	require.NoError(t, err)
	require.NotNil(t, c.Embedded)
	require.True(t, c.Segment.IsZero())
	require.Equal(t, uint64(3), c.RowCount)
}

func TestBuildWritesSegmentForLargeFrame(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	s := testSchema(t)

	n := EmbedThreshold + 1
	ts := make(frame.Int64Array, n)
	vals := make(frame.Float64Array, n)
	for i := 0; i < n; i++ {
		ts[i] = int64(i)
		vals[i] = float64(i)
	}
	f := frame.New(s, []frame.Array{ts, vals})

	_, d, err := Build(ctx, p, s, f, "tester", 1000)
	require.NoError(t, err)

	c, err := Load(ctx, p, d)
	require.NoError(t, err)
	require.Nil(t, c.Embedded)
	require.False(t, c.Segment.IsZero())
}

func TestSliceEmbedded(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	s := testSchema(t)
	f := frame.New(s, []frame.Array{
		frame.Int64Array{1, 2, 3, 4, 5},
		frame.Float64Array{10, 20, 30, 40, 50},
	})

	_, d, err := Build(ctx, p, s, f, "tester", 1000)
	require.NoError(t, err)
	c, err := Load(ctx, p, d)
	require.NoError(t, err)

	start, err := indexTuple(s, f, 1) // ts=2
	require.NoError(t, err)
	stop, err := indexTuple(s, f, 3) // ts=4
	require.NoError(t, err)

	out, err := c.Slice(ctx, p, s, start, stop)
	require.NoError(t, err)
	require.Equal(t, frame.Int64Array{2, 3, 4}, out.Column(0))
}

func TestIntersectDisjoint(t *testing.T) {
	s := testSchema(t)
	f := frame.New(s, []frame.Array{frame.Int64Array{10, 20}, frame.Float64Array{1, 2}})
	start, _ := indexTuple(s, f, 0)
	stop, _ := indexTuple(s, f, 1)
	c := Commit{Start: start, Stop: stop}

	qf := frame.New(s, []frame.Array{frame.Int64Array{100, 200}, frame.Float64Array{1, 2}})
	qStart, _ := indexTuple(s, qf, 0)
	qStop, _ := indexTuple(s, qf, 1)

	require.Equal(t, Disjoint, c.Intersect(qStart, qStop))
}

func TestIntersectEqual(t *testing.T) {
	s := testSchema(t)
	f := frame.New(s, []frame.Array{frame.Int64Array{10, 20}, frame.Float64Array{1, 2}})
	start, _ := indexTuple(s, f, 0)
	stop, _ := indexTuple(s, f, 1)
	c := Commit{Start: start, Stop: stop}

	require.Equal(t, Equal, c.Intersect(start, stop))
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	s := testSchema(t)
	f := frame.New(s, []frame.Array{frame.Int64Array{1, 2}, frame.Float64Array{1, 2}})
	start, _ := indexTuple(s, f, 0)
	stop, _ := indexTuple(s, f, 1)

	c := Commit{Start: start, Stop: stop, RowCount: 2, Embedded: []byte{1, 2, 3}, Author: "a", Tstamp: 42}
	raw := Encode(c)
	out, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, c.Start, out.Start)
	require.Equal(t, c.Stop, out.Stop)
	require.Equal(t, c.RowCount, out.RowCount)
	require.Equal(t, c.Embedded, out.Embedded)
	require.Equal(t, c.Author, out.Author)
	require.Equal(t, c.Tstamp, out.Tstamp)
}

func TestBuildEmptyFrameIsEmptyWrite(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	s := testSchema(t)
	f := frame.New(s, []frame.Array{frame.Int64Array{}, frame.Float64Array{}})

	_, _, err := Build(ctx, p, s, f, "tester", 1000)
	require.Error(t, err)
}
