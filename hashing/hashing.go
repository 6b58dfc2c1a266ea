// Package hashing implements the USCN engine's Hasher contract
// (spec.md §4.5): a deterministic digest over a canonical byte
// sequence, used both to produce audit hash references and the
// automaton's 32-byte pattern fingerprint.
//
// The reference design calls for a 32-bit non-cryptographic mixer;
// this implementation upgrades to SHA3-256 (the teacher's own choice
// in crypto/devstd.go) and derives the 32-bit value from its leading
// bytes, which spec.md §9 calls out as an acceptable local change
// confined to the hasher.
package hashing

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// PatternHashSize is the fixed on-buffer width of a pattern_hash field
// (spec.md §3, §6): 4 bytes of 32-bit hash, little-endian, zero-padded
// to 32 bytes.
const PatternHashSize = 32

// Sum256 returns the SHA3-256 digest of data. It is the canonical
// reference used to build both the audit hash_reference and the
// pattern fingerprint, satisfying the Hasher contract: equal inputs
// produce equal outputs, and a one-byte change anywhere in the input
// changes the digest with overwhelming probability.
func Sum256(data []byte) [32]byte {
	return sha3.Sum256(data)
}

// HexRef returns the hex encoding of Sum256(data), the form spec.md
// §4.6 requires for an audit entry's hash_reference field.
func HexRef(data []byte) string {
	sum := Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sum32 derives the 32-bit mixer value spec.md §4.5 describes from the
// leading 4 bytes of Sum256(data), interpreted little-endian.
func Sum32(data []byte) uint32 {
	sum := Sum256(data)
	return binary.LittleEndian.Uint32(sum[:4])
}

// PatternHash produces the 32-byte, zero-padded pattern_hash encoding
// spec.md §4.2/§6 mandates: the first 4 bytes are Sum32(data) in
// little-endian order, the remaining 28 bytes are zero.
func PatternHash(data []byte) [PatternHashSize]byte {
	var out [PatternHashSize]byte
	binary.LittleEndian.PutUint32(out[:4], Sum32(data))
	return out
}
