// Package objhash defines the content hash used to address every object in
// the local store: a 20-byte SHA-1 digest, the same width and hex rendering
// as a git object id.
package objhash

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Size is the width in bytes of a Hash.
const Size = sha1.Size

// Hash identifies an object by the SHA-1 digest of its framed contents.
type Hash [Size]byte

// Zero is the sentinel hash used for "no object" (e.g. a newly created file
// with no flushed content, or a not-yet-assigned root).
var Zero Hash

// Sum computes the hash of b.
func Sum(b []byte) Hash {
	return Hash(sha1.Sum(b))
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// String renders h as lowercase hex, matching git's object id format.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Compare returns -1, 0 or 1 as h is byte-wise less than, equal to, or
// greater than other.
func (h Hash) Compare(other Hash) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Parse decodes a hex string produced by String back into a Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	if len(s) != Size*2 {
		return h, fmt.Errorf("objhash: wrong length %d for hash %q", len(s), s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("objhash: %w", err)
	}
	copy(h[:], b)
	return h, nil
}
