package commit

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bertrandchenal/lakota/pkg/digest"
)

const (
	flagEmbedded byte = 1 << 0
)

// EncodeContent serialises the content-addressed portion of c as
// header+body: version u8; start/stop (length-prefixed,
// column-serialised); row_count u64; flags; body (segment digest or
// embedded payload). Author and tstamp are deliberately excluded — they
// are metadata only, not load-bearing for correctness, so two commits
// carrying identical rows at different wall-clock times or under different
// authors must still hash identically. Build digests this, not Encode's
// full output.
func EncodeContent(c Commit) []byte {
	var buf bytes.Buffer
	buf.WriteByte(commitVersion)

	writeLenPrefixed(&buf, c.Start)
	writeLenPrefixed(&buf, c.Stop)

	var rowBuf [8]byte
	binary.BigEndian.PutUint64(rowBuf[:], c.RowCount)
	buf.Write(rowBuf[:])

	var flags byte
	if c.Embedded != nil {
		flags |= flagEmbedded
	}
	buf.WriteByte(flags)

	if c.Embedded != nil {
		writeLenPrefixed(&buf, c.Embedded)
	} else {
		buf.Write(c.Segment[:])
	}

	return buf.Bytes()
}

// Encode serialises c for storage: EncodeContent's bytes followed by
// author (length-prefixed) and tstamp (i64), appended after rather than
// interleaved with the content-addressed portion so that EncodeContent
// alone remains a prefix-free view of what the digest covers.
func Encode(c Commit) []byte {
	var buf bytes.Buffer
	buf.Write(EncodeContent(c))

	writeLenPrefixed(&buf, []byte(c.Author))

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(c.Tstamp))
	buf.Write(tsBuf[:])

	return buf.Bytes()
}

// Decode reverses Encode.
func Decode(raw []byte) (Commit, error) {
	r := bytes.NewReader(raw)

	version, err := r.ReadByte()
	if err != nil {
		return Commit{}, fmt.Errorf("commit: empty blob")
	}
	if version != commitVersion {
		return Commit{}, fmt.Errorf("commit: unsupported version %d", version)
	}

	start, err := readLenPrefixed(r)
	if err != nil {
		return Commit{}, fmt.Errorf("commit: read start: %w", err)
	}
	stop, err := readLenPrefixed(r)
	if err != nil {
		return Commit{}, fmt.Errorf("commit: read stop: %w", err)
	}

	var rowBuf [8]byte
	if _, err := readFull(r, rowBuf[:]); err != nil {
		return Commit{}, fmt.Errorf("commit: read row_count: %w", err)
	}
	rowCount := binary.BigEndian.Uint64(rowBuf[:])

	flags, err := r.ReadByte()
	if err != nil {
		return Commit{}, fmt.Errorf("commit: read flags: %w", err)
	}

	c := Commit{
		Start:    start,
		Stop:     stop,
		RowCount: rowCount,
	}

	if flags&flagEmbedded != 0 {
		embedded, err := readLenPrefixed(r)
		if err != nil {
			return Commit{}, fmt.Errorf("commit: read embedded payload: %w", err)
		}
		c.Embedded = embedded
	} else {
		var segBuf [digest.Size]byte
		if _, err := readFull(r, segBuf[:]); err != nil {
			return Commit{}, fmt.Errorf("commit: read segment digest: %w", err)
		}
		copy(c.Segment[:], segBuf[:])
	}

	author, err := readLenPrefixed(r)
	if err != nil {
		return Commit{}, fmt.Errorf("commit: read author: %w", err)
	}
	c.Author = string(author)

	var tsBuf [8]byte
	if _, err := readFull(r, tsBuf[:]); err != nil {
		return Commit{}, fmt.Errorf("commit: read tstamp: %w", err)
	}
	c.Tstamp = int64(binary.BigEndian.Uint64(tsBuf[:]))

	return c, nil
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil // a zero-length field at end-of-stream is not EOF
	}
	n, err := r.Read(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, fmt.Errorf("short read: got %d, want %d", n, len(b))
	}
	return n, nil
}
