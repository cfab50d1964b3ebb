package frame

import (
	"fmt"
	"sort"

	"github.com/bertrandchenal/lakota/pkg/schema"
)

// Frame is an in-memory columnar tuple of equal-length arrays, one per
// schema column, sorted lexicographically by the index columns with no
// duplicate index rows. Frames are immutable once produced by New,
// SortedUnique or Concat.
type Frame struct {
	schema  schema.Schema
	columns []Array
}

// New wraps columns (already cast to the right types, in schema order)
// into a Frame without sorting or deduplicating. Callers that need the
// Frame invariants enforced should call SortedUnique afterwards.
func New(s schema.Schema, columns []Array) *Frame {
	return &Frame{schema: s, columns: columns}
}

// Empty returns a zero-row Frame whose columns are concrete, typed empty
// arrays rather than nils, so callers can type-assert columns without
// first guarding on the row count.
func Empty(s schema.Schema) *Frame {
	columns := make([]Array, len(s.Columns))
	for i, c := range s.Columns {
		columns[i] = emptyArray(c.Type)
	}
	return &Frame{schema: s, columns: columns}
}

func emptyArray(t schema.Type) Array {
	switch t {
	case schema.Int64:
		return Int64Array{}
	case schema.Float64:
		return Float64Array{}
	case schema.Bool:
		return BoolArray{}
	case schema.Timestamp, schema.Date:
		return TimeArray{}
	case schema.String:
		return StringArray{}
	case schema.Bytes:
		return BytesArray{}
	default:
		return nil
	}
}

// Schema returns the Frame's schema.
func (f *Frame) Schema() schema.Schema { return f.schema }

// Len returns the row count, or 0 for an empty/degenerate Frame.
func (f *Frame) Len() int {
	for _, c := range f.columns {
		if c != nil {
			return c.Len()
		}
	}
	return 0
}

// Column returns the array at column index i, which may be nil if that
// column was not loaded (a partial read).
func (f *Frame) Column(i int) Array { return f.columns[i] }

// ColumnByName returns the array named name, or nil if absent or unloaded.
func (f *Frame) ColumnByName(name string) Array {
	i := f.schema.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	return f.columns[i]
}

// Slice returns the sub-frame covering rows [lo, hi).
func (f *Frame) Slice(lo, hi int) *Frame {
	out := make([]Array, len(f.columns))
	for i, c := range f.columns {
		if c == nil {
			continue
		}
		out[i] = c.Slice(lo, hi)
	}
	return &Frame{schema: f.schema, columns: out}
}

// CompareIndex compares row i of f against row j of g over their shared
// index columns, in index-column order. f and g must share a schema.
func CompareIndex(f *Frame, i int, g *Frame, j int) int {
	for _, col := range f.schema.IndexColumns() {
		ci := f.schema.ColumnIndex(col.Name)
		cj := g.schema.ColumnIndex(col.Name)
		if c := compare(f.columns[ci], i, g.columns[cj], j); c != 0 {
			return c
		}
	}
	return 0
}

// SortedUnique returns a new Frame with rows sorted by index columns and
// deduplicated on equal index tuples, keeping the last occurrence of each.
func (f *Frame) SortedUnique() *Frame {
	n := f.Len()
	if n == 0 {
		return f
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return CompareIndex(f, idx[a], f, idx[b]) < 0
	})

	kept := make([]int, 0, n)
	for i := 0; i < len(idx); i++ {
		if i+1 < len(idx) && CompareIndex(f, idx[i], f, idx[i+1]) == 0 {
			continue // a later occurrence of the same index tuple follows
		}
		kept = append(kept, idx[i])
	}

	out := make([]Array, len(f.columns))
	for i, c := range f.columns {
		if c == nil {
			continue
		}
		out[i] = c.Take(kept)
	}
	return &Frame{schema: f.schema, columns: out}
}

// Concat concatenates frames in order, assuming each already respects the
// index ordering the caller wants preserved (Concat does not re-sort).
func Concat(s schema.Schema, frames []*Frame) *Frame {
	columns := make([]Array, len(s.Columns))
	for ci := range s.Columns {
		var parts []Array
		for _, fr := range frames {
			if fr.Len() == 0 {
				continue
			}
			parts = append(parts, fr.columns[ci])
		}
		columns[ci] = concatArrays(parts, s.Columns[ci].Type)
	}
	return &Frame{schema: s, columns: columns}
}

func concatArrays(parts []Array, typ schema.Type) Array {
	if len(parts) == 0 {
		return emptyArray(typ)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	first := parts[0]
	acc := first.Slice(0, first.Len())
	for _, p := range parts[1:] {
		acc = appendArray(acc, p)
	}
	return acc
}

func appendArray(a, b Array) Array {
	switch av := a.(type) {
	case Int64Array:
		return append(av, b.(Int64Array)...)
	case Float64Array:
		return append(av, b.(Float64Array)...)
	case BoolArray:
		return append(av, b.(BoolArray)...)
	case TimeArray:
		return append(av, b.(TimeArray)...)
	case StringArray:
		return append(av, b.(StringArray)...)
	case BytesArray:
		return append(av, b.(BytesArray)...)
	default:
		panic(fmt.Sprintf("frame: unsupported array type %T", a))
	}
}
