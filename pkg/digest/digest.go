// Package digest implements lakota's content-addressing primitive: a
// fixed-width digest over byte content, and the Pod-key layout derived
// from it.
package digest

import (
	"encoding/hex"
	"fmt"

	sha256simd "github.com/minio/sha256-simd"
)

// Size is the width, in bytes, of a Digest. sha256-simd gives us a
// hardware-accelerated SHA-256 without pulling in a different hash per
// platform.
const Size = 32

// Digest is a fixed-width content identifier. Equal content always
// produces an equal Digest.
type Digest [Size]byte

// Zero is the sentinel digest used as a changelog root's parent.
var Zero Digest

// Sum returns the digest of content.
func Sum(content []byte) Digest {
	var d Digest
	sum := sha256simd.Sum256(content)
	copy(d[:], sum[:])
	return d
}

// String renders the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero sentinel.
func (d Digest) IsZero() bool {
	return d == Zero
}

// Parse decodes a hex string into a Digest.
func Parse(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest %q: %w", s, err)
	}
	if len(b) != Size {
		return d, fmt.Errorf("parse digest %q: want %d bytes, got %d", s, Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// PodKey splits the digest's hex form into the bounded-fan-out directory
// layout from the design: two 2-hex-char directories, then the remainder.
//
//	aa/bb/ccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc
func (d Digest) PodKey(prefix string) string {
	h := d.String()
	key := h[0:2] + "/" + h[2:4] + "/" + h[4:]
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
