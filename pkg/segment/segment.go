// Package segment implements the persisted, content-addressed columnar
// chunk: one blob per column plus a manifest blob that lists each column's
// digest, length and row count.
package segment

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/bertrandchenal/lakota/pkg/codec"
	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/bertrandchenal/lakota/pkg/workerpool"
)

// manifestVersion is bumped if the binary layout ever changes.
const manifestVersion = 1

// columnPrefix and manifestPrefix namespace a segment's blobs under the Pod
// so segment and commit keys never collide.
const (
	columnPrefix   = "columns"
	manifestPrefix = "segments"
)

// ColumnPrefix and ManifestPrefix are the exported forms of the above,
// for callers (gc's reachability sweep) that need to know which Pod key
// ranges segment blobs live under without reaching into this package's
// internals.
const (
	ColumnPrefix   = columnPrefix
	ManifestPrefix = manifestPrefix
)

// columnEntry is one row of the manifest: a column's compressed length, row
// count and content digest, plus a fast xxhash checksum guarding against
// silent corruption in the Pod backend (the codec's zstd frames do not
// self-checksum their input).
type columnEntry struct {
	length   uint32
	rowCount uint64
	digest   digest.Digest
	checksum uint64
}

// Write encodes each column of f, PUTs each column blob keyed by its own
// digest, builds and PUTs the manifest blob, and returns the manifest's
// digest — the segment digest.
func Write(ctx context.Context, p pod.Pod, s schema.Schema, f *frame.Frame) (digest.Digest, error) {
	if f.Len() == 0 {
		return digest.Digest{}, fmt.Errorf("segment: write: %w", lakotaerrs.EmptyWrite)
	}

	// Each column is encoded and PUT independently, so fan them out across
	// a bounded worker pool; every Pod PUT may block independently.
	entries, err := workerpool.Map(ctx, workerpool.DefaultConcurrency, s.Columns, func(ctx context.Context, col schema.Column) (columnEntry, error) {
		i := s.ColumnIndex(col.Name)
		arr := f.Column(i)
		encoded, err := codec.Encode(col, arr)
		if err != nil {
			return columnEntry{}, fmt.Errorf("segment: encode column %q: %w", col.Name, err)
		}

		d := digest.Sum(encoded)
		key := d.PodKey(columnPrefix)
		if err := pod.WithRetry(ctx, func() error { return p.Put(ctx, key, encoded) }); err != nil {
			return columnEntry{}, fmt.Errorf("segment: put column %q: %w", col.Name, err)
		}

		return columnEntry{
			length:   uint32(len(encoded)),
			rowCount: uint64(arr.Len()),
			digest:   d,
			checksum: xxhash.Sum64(encoded),
		}, nil
	})
	if err != nil {
		return digest.Digest{}, err
	}

	manifest := encodeManifest(entries)
	manifestDigest := digest.Sum(manifest)
	manifestKey := manifestDigest.PodKey(manifestPrefix)
	if err := pod.WithRetry(ctx, func() error { return p.Put(ctx, manifestKey, manifest) }); err != nil {
		return digest.Digest{}, fmt.Errorf("segment: put manifest: %w", err)
	}

	return manifestDigest, nil
}

// Read loads the manifest for segmentDigest, then only the requested
// columns, decodes them, and returns a frame sliced to [rowLo, rowHi).
// Passing columnsWanted == nil reads every column in s.
func Read(ctx context.Context, p pod.Pod, s schema.Schema, segmentDigest digest.Digest, columnsWanted []string, rowLo, rowHi int) (*frame.Frame, error) {
	manifestKey := segmentDigest.PodKey(manifestPrefix)
	manifestBytes, err := getWithRetry(ctx, p, manifestKey)
	if err != nil {
		return nil, fmt.Errorf("segment: load manifest %s: %w", segmentDigest, err)
	}

	entries, err := decodeManifest(manifestBytes, len(s.Columns))
	if err != nil {
		return nil, fmt.Errorf("segment: decode manifest %s: %w", segmentDigest, err)
	}

	wanted := wantedSet(s, columnsWanted)
	rowCount := -1
	if len(entries) > 0 {
		rowCount = int(entries[0].rowCount)
	}

	// Fetch and decode the wanted columns in parallel, the read-side half
	// of the same per-column fan-out Write uses.
	type loaded struct {
		idx int
		arr frame.Array
	}
	var wantedCols []schema.Column
	for _, col := range s.Columns {
		if wanted[col.Name] {
			wantedCols = append(wantedCols, col)
		}
	}

	results, err := workerpool.Map(ctx, workerpool.DefaultConcurrency, wantedCols, func(ctx context.Context, col schema.Column) (loaded, error) {
		i := s.ColumnIndex(col.Name)
		entry := entries[i]
		key := entry.digest.PodKey(columnPrefix)
		raw, err := getWithRetry(ctx, p, key)
		if err != nil {
			return loaded{}, fmt.Errorf("segment: load column %q: %w", col.Name, lakotaerrs.DataMissing)
		}
		if xxhash.Sum64(raw) != entry.checksum {
			return loaded{}, fmt.Errorf("segment: column %q: %w", col.Name, lakotaerrs.DataMissing)
		}
		arr, err := codec.Decode(col, raw, int(entry.rowCount))
		if err != nil {
			return loaded{}, fmt.Errorf("segment: decode column %q: %w", col.Name, err)
		}
		return loaded{idx: i, arr: arr}, nil
	})
	if err != nil {
		return nil, err
	}

	arrays := make([]frame.Array, len(s.Columns))
	for _, r := range results {
		arrays[r.idx] = r.arr
	}

	if rowCount == -1 {
		rowCount = 0
	}
	lo, hi := clampRange(rowLo, rowHi, rowCount)
	for i, arr := range arrays {
		if arr == nil {
			continue
		}
		arrays[i] = arr.Slice(lo, hi)
	}

	return frame.New(s, arrays), nil
}

// Keys returns every Pod key a segment occupies: the manifest blob's own
// key, plus every column blob key it lists. It decodes only the manifest
// header, never a column payload, so gc's reachability sweep can compute
// the live key set cheaply.
func Keys(ctx context.Context, p pod.Pod, s schema.Schema, segmentDigest digest.Digest) ([]string, error) {
	manifestKey := segmentDigest.PodKey(manifestPrefix)
	manifestBytes, err := getWithRetry(ctx, p, manifestKey)
	if err != nil {
		return nil, fmt.Errorf("segment: load manifest %s: %w", segmentDigest, err)
	}
	entries, err := decodeManifest(manifestBytes, len(s.Columns))
	if err != nil {
		return nil, fmt.Errorf("segment: decode manifest %s: %w", segmentDigest, err)
	}

	keys := make([]string, 0, len(entries)+1)
	keys = append(keys, manifestKey)
	for _, e := range entries {
		keys = append(keys, e.digest.PodKey(columnPrefix))
	}
	return keys, nil
}

func clampRange(lo, hi, rowCount int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi < 0 || hi > rowCount {
		hi = rowCount
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

func wantedSet(s schema.Schema, columns []string) map[string]bool {
	if columns == nil {
		out := make(map[string]bool, len(s.Columns))
		for _, c := range s.Columns {
			out[c.Name] = true
		}
		return out
	}
	out := make(map[string]bool, len(columns))
	for _, c := range columns {
		out[c] = true
	}
	return out
}

func getWithRetry(ctx context.Context, p pod.Pod, key string) ([]byte, error) {
	var out []byte
	err := pod.WithRetry(ctx, func() error {
		v, err := p.Get(ctx, key)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func encodeManifest(entries []columnEntry) []byte {
	var buf bytes.Buffer
	buf.WriteByte(manifestVersion)

	var countBuf [2]byte
	binary.LittleEndian.PutUint16(countBuf[:], uint16(len(entries)))
	buf.Write(countBuf[:])

	for _, e := range entries {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], e.length)
		buf.Write(lenBuf[:])

		var rowBuf [8]byte
		binary.LittleEndian.PutUint64(rowBuf[:], e.rowCount)
		buf.Write(rowBuf[:])

		buf.Write(e.digest[:])

		var checksumBuf [8]byte
		binary.LittleEndian.PutUint64(checksumBuf[:], e.checksum)
		buf.Write(checksumBuf[:])
	}
	return buf.Bytes()
}

func decodeManifest(raw []byte, wantColumns int) ([]columnEntry, error) {
	if len(raw) < 3 {
		return nil, fmt.Errorf("manifest too short")
	}
	version := raw[0]
	if version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", version)
	}
	columnCount := int(binary.LittleEndian.Uint16(raw[1:3]))
	if columnCount != wantColumns {
		return nil, fmt.Errorf("manifest has %d columns, schema has %d: %w", columnCount, wantColumns, lakotaerrs.SchemaMismatch)
	}

	entrySize := 4 + 8 + digest.Size + 8
	offset := 3
	entries := make([]columnEntry, columnCount)
	for i := 0; i < columnCount; i++ {
		if offset+entrySize > len(raw) {
			return nil, fmt.Errorf("manifest truncated at column %d", i)
		}
		length := binary.LittleEndian.Uint32(raw[offset:])
		offset += 4
		rowCount := binary.LittleEndian.Uint64(raw[offset:])
		offset += 8
		var d digest.Digest
		copy(d[:], raw[offset:offset+digest.Size])
		offset += digest.Size
		checksum := binary.LittleEndian.Uint64(raw[offset:])
		offset += 8

		entries[i] = columnEntry{length: length, rowCount: rowCount, digest: d, checksum: checksum}
	}
	return entries, nil
}
