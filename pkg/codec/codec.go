// Package codec implements the column encode/decode contract: one
// (array → bytes) and (bytes → array) pair per logical column type.
// Codec identity is implicit in the schema, never stored inline, so a
// column's encoding never changes once a collection exists.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
	"github.com/bertrandchenal/lakota/pkg/metrics"
	"github.com/bertrandchenal/lakota/pkg/schema"
)

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// Encode serializes arr (a column's values) to bytes, choosing the raw
// layout by col.Type and compressing the result with zstd. Integers are
// delta+zigzag encoded first so that monotonic index columns (the common
// case for a timestamp column) compress well.
func Encode(col schema.Column, arr frame.Array) ([]byte, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CodecEncodeDuration, string(col.Type))

	raw, err := encodeRaw(col, arr)
	if err != nil {
		return nil, fmt.Errorf("codec: encode column %q: %w", col.Name, err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

// Decode reverses Encode, given the column's schema definition and the
// expected row count (carried separately in the segment manifest, since
// compressed size alone cannot recover it).
func Decode(col schema.Column, data []byte, rowCount int) (frame.Array, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CodecDecodeDuration, string(col.Type))

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: decode column %q: %w", col.Name, lakotaerrs.DataMissing)
	}
	arr, err := decodeRaw(col, raw, rowCount)
	if err != nil {
		return nil, fmt.Errorf("codec: decode column %q: %w", col.Name, err)
	}
	return arr, nil
}

func encodeRaw(col schema.Column, arr frame.Array) ([]byte, error) {
	switch col.Type {
	case schema.Int64:
		v, ok := arr.(frame.Int64Array)
		if !ok {
			return nil, fmt.Errorf("expected Int64Array, got %T", arr)
		}
		return encodeInt64Delta(v), nil
	case schema.Float64:
		v, ok := arr.(frame.Float64Array)
		if !ok {
			return nil, fmt.Errorf("expected Float64Array, got %T", arr)
		}
		return encodeFloat64(v), nil
	case schema.Bool:
		v, ok := arr.(frame.BoolArray)
		if !ok {
			return nil, fmt.Errorf("expected BoolArray, got %T", arr)
		}
		return encodeBool(v), nil
	case schema.Timestamp, schema.Date:
		v, ok := arr.(frame.TimeArray)
		if !ok {
			return nil, fmt.Errorf("expected TimeArray, got %T", arr)
		}
		return encodeInt64Delta(frame.Int64Array(v)), nil
	case schema.String:
		v, ok := arr.(frame.StringArray)
		if !ok {
			return nil, fmt.Errorf("expected StringArray, got %T", arr)
		}
		return encodeStrings(v), nil
	case schema.Bytes:
		v, ok := arr.(frame.BytesArray)
		if !ok {
			return nil, fmt.Errorf("expected BytesArray, got %T", arr)
		}
		return encodeBytesArray(v), nil
	default:
		return nil, fmt.Errorf("unknown column type %q", col.Type)
	}
}

func decodeRaw(col schema.Column, raw []byte, rowCount int) (frame.Array, error) {
	switch col.Type {
	case schema.Int64:
		return decodeInt64Delta(raw, rowCount)
	case schema.Float64:
		return decodeFloat64(raw, rowCount)
	case schema.Bool:
		return decodeBool(raw, rowCount)
	case schema.Timestamp, schema.Date:
		ints, err := decodeInt64Delta(raw, rowCount)
		if err != nil {
			return nil, err
		}
		return frame.TimeArray(ints.(frame.Int64Array)), nil
	case schema.String:
		return decodeStrings(raw, rowCount)
	case schema.Bytes:
		return decodeBytesArray(raw, rowCount)
	default:
		return nil, fmt.Errorf("unknown column type %q", col.Type)
	}
}

// zigzag maps signed deltas onto unsigned varints without losing the sign.
func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

func encodeInt64Delta(v frame.Int64Array) []byte {
	buf := make([]byte, 0, len(v)*2)
	var prev int64
	tmp := make([]byte, binary.MaxVarintLen64)
	for _, x := range v {
		delta := x - prev
		prev = x
		n := binary.PutUvarint(tmp, zigzagEncode(delta))
		buf = append(buf, tmp[:n]...)
	}
	return buf
}

func decodeInt64Delta(raw []byte, rowCount int) (frame.Array, error) {
	out := make(frame.Int64Array, 0, rowCount)
	r := bytes.NewReader(raw)
	var prev int64
	for i := 0; i < rowCount; i++ {
		u, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("truncated int64 stream at row %d: %w", i, err)
		}
		prev += zigzagDecode(u)
		out = append(out, prev)
	}
	return out, nil
}

func encodeFloat64(v frame.Float64Array) []byte {
	buf := make([]byte, len(v)*8)
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeFloat64(raw []byte, rowCount int) (frame.Array, error) {
	if len(raw) != rowCount*8 {
		return nil, fmt.Errorf("float64 stream length %d, want %d", len(raw), rowCount*8)
	}
	out := make(frame.Float64Array, rowCount)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

func encodeBool(v frame.BoolArray) []byte {
	buf := make([]byte, (len(v)+7)/8)
	for i, b := range v {
		if b {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	return buf
}

func decodeBool(raw []byte, rowCount int) (frame.Array, error) {
	out := make(frame.BoolArray, rowCount)
	for i := range out {
		byteIdx := i / 8
		if byteIdx >= len(raw) {
			return nil, fmt.Errorf("truncated bool stream at row %d", i)
		}
		out[i] = raw[byteIdx]&(1<<uint(i%8)) != 0
	}
	return out, nil
}

func encodeStrings(v frame.StringArray) []byte {
	var buf bytes.Buffer
	lenBuf := make([]byte, binary.MaxVarintLen64)
	for _, s := range v {
		n := binary.PutUvarint(lenBuf, uint64(len(s)))
		buf.Write(lenBuf[:n])
		buf.WriteString(s)
	}
	return buf.Bytes()
}

func decodeStrings(raw []byte, rowCount int) (frame.Array, error) {
	out := make(frame.StringArray, 0, rowCount)
	r := bytes.NewReader(raw)
	for i := 0; i < rowCount; i++ {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("truncated string stream at row %d: %w", i, err)
		}
		s := make([]byte, n)
		if _, err := io.ReadFull(r, s); err != nil {
			return nil, fmt.Errorf("truncated string payload at row %d: %w", i, err)
		}
		out = append(out, string(s))
	}
	return out, nil
}

func encodeBytesArray(v frame.BytesArray) []byte {
	var buf bytes.Buffer
	lenBuf := make([]byte, binary.MaxVarintLen64)
	for _, b := range v {
		n := binary.PutUvarint(lenBuf, uint64(len(b)))
		buf.Write(lenBuf[:n])
		buf.Write(b)
	}
	return buf.Bytes()
}

func decodeBytesArray(raw []byte, rowCount int) (frame.Array, error) {
	out := make(frame.BytesArray, 0, rowCount)
	r := bytes.NewReader(raw)
	for i := 0; i < rowCount; i++ {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("truncated bytes stream at row %d: %w", i, err)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("truncated bytes payload at row %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}
