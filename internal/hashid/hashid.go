// Package hashid provides the two primitives every derivation in docgraph
// is anchored on: deterministic content hashing and opaque id minting.
package hashid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// hashPrefix marks a content hash as SHA-256, matching the provenance
// ledger's "content_hash required, prefixed" invariant.
const hashPrefix = "sha256:"

// ContentHash returns the sha256: prefixed hex digest of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// ContentHashString is a convenience wrapper over ContentHash for text input.
func ContentHashString(text string) string {
	return ContentHash([]byte(text))
}

// IsPrefixed reports whether hash carries the expected sha256: prefix and a
// non-empty digest, the exact check the provenance ledger's create()
// performs before accepting a record.
func IsPrefixed(hash string) bool {
	return strings.HasPrefix(hash, hashPrefix) && len(hash) > len(hashPrefix)
}

// New mints an opaque v4 UUID string, used for every row's primary key in
// the system.
func New() string {
	return uuid.NewString()
}
