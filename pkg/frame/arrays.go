package frame

import (
	"bytes"
	"fmt"

	"github.com/bertrandchenal/lakota/pkg/schema"
)

// Array is one column's worth of values. Concrete implementations are
// plain slices; lakota's core never binds to a third-party dataframe or
// array library, so these are hand-rolled rather than borrowed.
type Array interface {
	Len() int
	Type() schema.Type
	// Slice returns the sub-array covering [lo, hi).
	Slice(lo, hi int) Array
	// Take returns a new array containing the rows at the given indices,
	// in order. Used to apply a sort/dedup permutation.
	Take(idx []int) Array
}

type Int64Array []int64

func (a Int64Array) Len() int                  { return len(a) }
func (a Int64Array) Type() schema.Type         { return schema.Int64 }
func (a Int64Array) Slice(lo, hi int) Array    { return append(Int64Array(nil), a[lo:hi]...) }
func (a Int64Array) Take(idx []int) Array {
	out := make(Int64Array, len(idx))
	for i, j := range idx {
		out[i] = a[j]
	}
	return out
}

type Float64Array []float64

func (a Float64Array) Len() int               { return len(a) }
func (a Float64Array) Type() schema.Type      { return schema.Float64 }
func (a Float64Array) Slice(lo, hi int) Array { return append(Float64Array(nil), a[lo:hi]...) }
func (a Float64Array) Take(idx []int) Array {
	out := make(Float64Array, len(idx))
	for i, j := range idx {
		out[i] = a[j]
	}
	return out
}

type BoolArray []bool

func (a BoolArray) Len() int               { return len(a) }
func (a BoolArray) Type() schema.Type      { return schema.Bool }
func (a BoolArray) Slice(lo, hi int) Array { return append(BoolArray(nil), a[lo:hi]...) }
func (a BoolArray) Take(idx []int) Array {
	out := make(BoolArray, len(idx))
	for i, j := range idx {
		out[i] = a[j]
	}
	return out
}

// TimeArray holds raw integer ticks for a Timestamp or Date column; the
// tick unit (ns/us/ms/s, or days for Date) is carried by the owning
// schema.Column, not the array.
type TimeArray []int64

func (a TimeArray) Len() int               { return len(a) }
func (a TimeArray) Type() schema.Type      { return schema.Timestamp }
func (a TimeArray) Slice(lo, hi int) Array { return append(TimeArray(nil), a[lo:hi]...) }
func (a TimeArray) Take(idx []int) Array {
	out := make(TimeArray, len(idx))
	for i, j := range idx {
		out[i] = a[j]
	}
	return out
}

type StringArray []string

func (a StringArray) Len() int               { return len(a) }
func (a StringArray) Type() schema.Type      { return schema.String }
func (a StringArray) Slice(lo, hi int) Array { return append(StringArray(nil), a[lo:hi]...) }
func (a StringArray) Take(idx []int) Array {
	out := make(StringArray, len(idx))
	for i, j := range idx {
		out[i] = a[j]
	}
	return out
}

type BytesArray [][]byte

func (a BytesArray) Len() int               { return len(a) }
func (a BytesArray) Type() schema.Type      { return schema.Bytes }
func (a BytesArray) Slice(lo, hi int) Array { return append(BytesArray(nil), a[lo:hi]...) }
func (a BytesArray) Take(idx []int) Array {
	out := make(BytesArray, len(idx))
	for i, j := range idx {
		out[i] = a[j]
	}
	return out
}

// compare returns -1, 0 or 1 comparing element i of a against element j of b.
// a and b must hold the same concrete array type.
func compare(a Array, i int, b Array, j int) int {
	switch av := a.(type) {
	case Int64Array:
		bv := b.(Int64Array)
		return cmpOrdered(av[i], bv[j])
	case Float64Array:
		bv := b.(Float64Array)
		return cmpOrdered(av[i], bv[j])
	case BoolArray:
		bv := b.(BoolArray)
		return cmpOrdered(boolRank(av[i]), boolRank(bv[j]))
	case TimeArray:
		bv := b.(TimeArray)
		return cmpOrdered(av[i], bv[j])
	case StringArray:
		bv := b.(StringArray)
		return cmpOrdered(av[i], bv[j])
	case BytesArray:
		bv := b.(BytesArray)
		return bytes.Compare(av[i], bv[j])
	default:
		panic(fmt.Sprintf("frame: unsupported array type %T", a))
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmpOrdered[T int64 | float64 | int | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
