// Package hashing computes the BlockHash identity used to address
// blocks in the blockdir. The wire format fixes one algorithm,
// unkeyed BLAKE2b-256 over the uncompressed block body (no key is
// passed to blake2b.New256), unlike the teacher's name-dispatched
// sha256/blake3 GetHasher, so there is nothing to select between here.
package hashing

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Size is the length in bytes of a BlockHash.
const Size = blake2b.Size256

// Sum returns the hex-encoded BlockHash of buf.
func Sum(buf []byte) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an oversized key; nil never triggers it.
		panic(err)
	}
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil))
}

// Validate reports whether buf hashes to the given hex-encoded BlockHash.
func Validate(buf []byte, want string) bool {
	return Sum(buf) == want
}
