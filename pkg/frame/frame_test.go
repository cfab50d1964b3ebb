package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

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

func TestSortedUniqueKeepsLastOccurrence(t *testing.T) {
	s := testSchema(t)
	f := New(s, []Array{
		Int64Array{3, 1, 2, 1},
		Float64Array{30, 10, 20, 99},
	})

	out := f.SortedUnique()
	require.Equal(t, Int64Array{1, 2, 3}, out.Column(0))
	require.Equal(t, Float64Array{99, 20, 30}, out.Column(1))
}

func TestConcatPreservesOrder(t *testing.T) {
	s := testSchema(t)
	a := New(s, []Array{Int64Array{1, 2}, Float64Array{1, 2}})
	b := New(s, []Array{Int64Array{3, 4}, Float64Array{3, 4}})

	out := Concat(s, []*Frame{a, b})
	require.Equal(t, 4, out.Len())
	require.Equal(t, Int64Array{1, 2, 3, 4}, out.Column(0))
}

func TestCompareIndex(t *testing.T) {
	s := testSchema(t)
	a := New(s, []Array{Int64Array{1, 5}, Float64Array{0, 0}})
	require.Equal(t, -1, CompareIndex(a, 0, a, 1))
	require.Equal(t, 0, CompareIndex(a, 0, a, 0))
	require.Equal(t, 1, CompareIndex(a, 1, a, 0))
}

func TestSliceReturnsSubrange(t *testing.T) {
	s := testSchema(t)
	f := New(s, []Array{Int64Array{1, 2, 3, 4}, Float64Array{10, 20, 30, 40}})
	out := f.Slice(1, 3)
	require.Equal(t, Int64Array{2, 3}, out.Column(0))
	require.Equal(t, Float64Array{20, 30}, out.Column(1))
}
