package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/schema"
)

func roundtrip(t *testing.T, col schema.Column, arr frame.Array, rowCount int) frame.Array {
	t.Helper()
	enc, err := Encode(col, arr)
	require.NoError(t, err)
	dec, err := Decode(col, enc, rowCount)
	require.NoError(t, err)
	return dec
}

func TestInt64Roundtrip(t *testing.T) {
	col := schema.Column{Name: "k", Type: schema.Int64, Index: true}
	arr := frame.Int64Array{10, 10, -5, 1 << 40, 0}
	dec := roundtrip(t, col, arr, len(arr))
	require.Equal(t, arr, dec)
}

func TestFloat64Roundtrip(t *testing.T) {
	col := schema.Column{Name: "v", Type: schema.Float64}
	arr := frame.Float64Array{1.5, -2.25, 0, 3.14159265}
	dec := roundtrip(t, col, arr, len(arr))
	require.Equal(t, arr, dec)
}

func TestBoolRoundtrip(t *testing.T) {
	col := schema.Column{Name: "b", Type: schema.Bool}
	arr := frame.BoolArray{true, false, false, true, true, true, false, false, true}
	dec := roundtrip(t, col, arr, len(arr))
	require.Equal(t, arr, dec)
}

func TestTimestampRoundtrip(t *testing.T) {
	col := schema.Column{Name: "ts", Type: schema.Timestamp, Unit: schema.Microsecond, Index: true}
	arr := frame.TimeArray{100, 200, 200, 500, 1000000}
	dec := roundtrip(t, col, arr, len(arr))
	require.Equal(t, arr, dec)
}

func TestStringRoundtrip(t *testing.T) {
	col := schema.Column{Name: "s", Type: schema.String}
	arr := frame.StringArray{"hello", "", "world", "héllo"}
	dec := roundtrip(t, col, arr, len(arr))
	require.Equal(t, arr, dec)
}

func TestBytesRoundtrip(t *testing.T) {
	col := schema.Column{Name: "b", Type: schema.Bytes}
	arr := frame.BytesArray{[]byte("a"), {}, []byte{0, 1, 2, 255}}
	dec := roundtrip(t, col, arr, len(arr))
	require.Equal(t, arr, dec)
}

func TestEncodeDeterministic(t *testing.T) {
	col := schema.Column{Name: "v", Type: schema.Float64}
	arr := frame.Float64Array{1, 2, 3}
	a, err := Encode(col, arr)
	require.NoError(t, err)
	b, err := Encode(col, arr)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
