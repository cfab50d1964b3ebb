// Package commit implements the immutable write record: a commit binds a
// [start, stop] index range and row count to either a segment digest or,
// for small frames, an embedded miniature segment.
package commit

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/pierrec/lz4/v4"

	"github.com/bertrandchenal/lakota/pkg/codec"
	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/bertrandchenal/lakota/pkg/segment"
)

// EmbedThreshold is the row count at or below which a commit embeds its
// payload inline instead of writing a separate segment.
const EmbedThreshold = 1024

const commitVersion = 1

// commitPrefix namespaces commit blobs under the Pod.
const commitPrefix = "commits"

// CommitPrefix is the exported form of commitPrefix, for gc's reachability
// sweep.
const CommitPrefix = commitPrefix

// Overlap classifies how a commit's range relates to a query range.
type Overlap int

const (
	Disjoint Overlap = iota
	Contains
	Contained
	OverlapLeft
	OverlapRight
	Equal
)

// Commit is the immutable record describing one durable write.
type Commit struct {
	Start    []byte // column-serialised index tuple, inclusive lower bound
	Stop     []byte // column-serialised index tuple, inclusive upper bound
	RowCount uint64
	Segment  digest.Digest // zero if Embedded is set
	Embedded []byte        // lz4-compressed miniature segment, or nil
	Author   string
	Tstamp   int64 // µs epoch, metadata only
}

// Build materialises frame f (already sorted/deduplicated by the caller)
// as a commit: a segment for large frames, or an lz4-compressed embedded
// payload for frames at or below EmbedThreshold. Returns the encoded
// commit bytes and its digest.
func Build(ctx context.Context, p pod.Pod, s schema.Schema, f *frame.Frame, author string, tstampUnixMicro int64) ([]byte, digest.Digest, error) {
	if f.Len() == 0 {
		return nil, digest.Digest{}, fmt.Errorf("commit: build: %w", lakotaerrs.EmptyWrite)
	}

	start, err := indexTuple(s, f, 0)
	if err != nil {
		return nil, digest.Digest{}, err
	}
	stop, err := indexTuple(s, f, f.Len()-1)
	if err != nil {
		return nil, digest.Digest{}, err
	}

	c := Commit{
		Start:    start,
		Stop:     stop,
		RowCount: uint64(f.Len()),
		Author:   author,
		Tstamp:   tstampUnixMicro,
	}

	if f.Len() <= EmbedThreshold {
		payload, err := encodeEmbedded(s, f)
		if err != nil {
			return nil, digest.Digest{}, fmt.Errorf("commit: embed: %w", err)
		}
		c.Embedded, err = compressLZ4(payload)
		if err != nil {
			return nil, digest.Digest{}, fmt.Errorf("commit: lz4 compress embedded payload: %w", err)
		}
	} else {
		segDigest, err := segment.Write(ctx, p, s, f)
		if err != nil {
			return nil, digest.Digest{}, fmt.Errorf("commit: write segment: %w", err)
		}
		c.Segment = segDigest
	}

	// Digest only the content-addressed portion (EncodeContent): author and
	// tstamp are metadata, not load-bearing for correctness, so they must
	// not perturb the commit digest two otherwise-identical writes produce.
	d := digest.Sum(EncodeContent(c))
	encoded := Encode(c)
	key := d.PodKey(commitPrefix)
	if err := pod.WithRetry(ctx, func() error { return p.Put(ctx, key, encoded) }); err != nil {
		return nil, digest.Digest{}, fmt.Errorf("commit: put commit blob: %w", err)
	}
	return encoded, d, nil
}

// Load fetches and decodes the commit blob at d.
func Load(ctx context.Context, p pod.Pod, d digest.Digest) (Commit, error) {
	key := d.PodKey(commitPrefix)
	var raw []byte
	err := pod.WithRetry(ctx, func() error {
		v, err := p.Get(ctx, key)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit: load %s: %w", d, lakotaerrs.DataMissing)
	}
	c, err := Decode(raw)
	if err != nil {
		return Commit{}, fmt.Errorf("commit: decode %s: %w", d, err)
	}
	return c, nil
}

// Intersect classifies how c's range relates to the query range [qStart,
// qStop]. A nil bound means unbounded in that direction.
func (c Commit) Intersect(qStart, qStop []byte) Overlap {
	// cStartBeforeQStart: commit starts strictly before the query's lower
	// bound (always false if the query is unbounded below).
	cStartBeforeQStart := qStart != nil && bytes.Compare(c.Start, qStart) < 0
	cStopAfterQStop := qStop != nil && bytes.Compare(c.Stop, qStop) > 0

	cStopBeforeQStart := qStart != nil && bytes.Compare(c.Stop, qStart) < 0
	cStartAfterQStop := qStop != nil && bytes.Compare(c.Start, qStop) > 0
	if cStopBeforeQStart || cStartAfterQStop {
		return Disjoint
	}

	if qStart != nil && qStop != nil && bytes.Equal(c.Start, qStart) && bytes.Equal(c.Stop, qStop) {
		return Equal
	}

	if qStart != nil && qStop != nil && !cStartBeforeQStart && !cStopAfterQStop {
		return Contained // query fully covers the commit
	}

	cContainsQ := qStart != nil && qStop != nil &&
		bytes.Compare(c.Start, qStart) <= 0 && bytes.Compare(c.Stop, qStop) >= 0
	if cContainsQ {
		return Contains
	}

	if cStartBeforeQStart {
		return OverlapLeft
	}
	return OverlapRight
}

// Slice loads the rows of c whose index tuple lies in [start, stop]
// (inclusive). The whole commit is decoded first (embedded payload or
// segment), then both bounds are found by binary search over its index
// columns.
func (c Commit) Slice(ctx context.Context, p pod.Pod, s schema.Schema, start, stop []byte) (*frame.Frame, error) {
	var full *frame.Frame
	var err error
	if c.Embedded != nil {
		full, err = decodeEmbedded(s, c.Embedded)
	} else {
		full, err = segment.Read(ctx, p, s, c.Segment, nil, 0, int(c.RowCount))
	}
	if err != nil {
		return nil, fmt.Errorf("commit: slice: %w", err)
	}

	lo := 0
	if start != nil {
		lo = sort.Search(full.Len(), func(i int) bool {
			tuple, _ := indexTuple(s, full, i)
			return bytes.Compare(tuple, start) >= 0
		})
	}
	hi := full.Len()
	if stop != nil {
		hi = sort.Search(full.Len(), func(i int) bool {
			tuple, _ := indexTuple(s, full, i)
			return bytes.Compare(tuple, stop) > 0
		})
	}
	if lo > hi {
		lo = hi
	}
	return full.Slice(lo, hi), nil
}

func columnCodecEncode(col schema.Column, arr frame.Array) ([]byte, error) {
	return codec.Encode(col, arr)
}

func columnCodecDecode(col schema.Column, data []byte, rowCount int) (frame.Array, error) {
	return codec.Decode(col, data, rowCount)
}

// IndexTuple encodes row's index-column values into the same
// order-preserving byte tuple used internally as Start/Stop, so callers
// (the Series read path) can build query bounds comparable against them.
func IndexTuple(s schema.Schema, f *frame.Frame, row int) ([]byte, error) {
	return indexTuple(s, f, row)
}

func indexTuple(s schema.Schema, f *frame.Frame, row int) ([]byte, error) {
	var buf bytes.Buffer
	for _, col := range s.IndexColumns() {
		ci := s.ColumnIndex(col.Name)
		arr := f.Column(ci)
		if arr == nil {
			return nil, fmt.Errorf("commit: index column %q not loaded", col.Name)
		}
		b, err := encodeIndexValue(arr, row)
		if err != nil {
			return nil, err
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf.Write(lenBuf[:])
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// EncodeBound encodes a tuple of scalar values (one per index column, in
// index-column order) into the same byte representation IndexTuple
// produces from a Frame row, so a caller can express a Series query bound
// (e.g. a single timestamp) without constructing a Frame.
func EncodeBound(s schema.Schema, values []any) ([]byte, error) {
	indexCols := s.IndexColumns()
	if len(values) != len(indexCols) {
		return nil, fmt.Errorf("commit: bound has %d values, schema has %d index columns", len(values), len(indexCols))
	}
	var buf bytes.Buffer
	for i, col := range indexCols {
		b, err := encodeScalar(col, values[i])
		if err != nil {
			return nil, fmt.Errorf("commit: encode bound column %q: %w", col.Name, err)
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf.Write(lenBuf[:])
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func encodeScalar(col schema.Column, v any) ([]byte, error) {
	switch col.Type {
	case schema.Int64, schema.Timestamp, schema.Date:
		i, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("expected int64, got %T", v)
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(i)^(1<<63))
		return b[:], nil
	case schema.String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return []byte(s), nil
	case schema.Bytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", v)
		}
		return b, nil
	case schema.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	default:
		return nil, fmt.Errorf("unsupported index column type %q", col.Type)
	}
}

func encodeIndexValue(arr frame.Array, row int) ([]byte, error) {
	switch v := arr.(type) {
	case frame.Int64Array:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v[row])^(1<<63)) // order-preserving for signed ints
		return b[:], nil
	case frame.TimeArray:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v[row])^(1<<63))
		return b[:], nil
	case frame.StringArray:
		return []byte(v[row]), nil
	case frame.BytesArray:
		return v[row], nil
	case frame.BoolArray:
		if v[row] {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	default:
		return nil, fmt.Errorf("commit: unsupported index column type %T", arr)
	}
}

func compressLZ4(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeEmbedded serialises f into a miniature layout of codec-encoded
// (per-column compressed) columns (a stripped-down Segment manifest+columns
// pair without Pod round-trips), suitable for lz4-compressing as one blob.
func encodeEmbedded(s schema.Schema, f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	var rowBuf [8]byte
	binary.BigEndian.PutUint64(rowBuf[:], uint64(f.Len()))
	buf.Write(rowBuf[:])

	for i, col := range s.Columns {
		arr := f.Column(i)
		encoded, err := columnCodecEncode(col, arr)
		if err != nil {
			return nil, err
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
		buf.Write(lenBuf[:])
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

func decodeEmbedded(s schema.Schema, compressed []byte) (*frame.Frame, error) {
	raw, err := decompressLZ4(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress embedded payload: %w", err)
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("embedded payload too short")
	}
	rowCount := int(binary.BigEndian.Uint64(raw[:8]))
	offset := 8

	arrays := make([]frame.Array, len(s.Columns))
	for i, col := range s.Columns {
		if offset+4 > len(raw) {
			return nil, fmt.Errorf("embedded payload truncated at column %d", i)
		}
		n := int(binary.BigEndian.Uint32(raw[offset:]))
		offset += 4
		if offset+n > len(raw) {
			return nil, fmt.Errorf("embedded payload truncated at column %d body", i)
		}
		arr, err := columnCodecDecode(col, raw[offset:offset+n], rowCount)
		if err != nil {
			return nil, err
		}
		arrays[i] = arr
		offset += n
	}
	return frame.New(s, arrays), nil
}
