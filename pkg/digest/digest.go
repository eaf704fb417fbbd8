// Package digest implements the canonical object identity used throughout
// the content-addressed store: a (hash, size, is-tree) triple, plus the
// native/compatible hashing-flavor selector that every digest-creation site
// threads through instead of relying on a module-level static flag.
package digest

import (
	"crypto/sha1" //nolint:gosec // native mode intentionally mirrors git's object hash
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// HashFlavor selects the hash function used to derive digests.
//
// Native hashes an object's raw bytes with SHA-1. No git object header is
// prepended and trees are hashed in pkg/cas's plain-text tree encoding, so
// native digests are not git object ids. Compatible hashes every object —
// including trees — as a flat blob with SHA-256.
type HashFlavor int

const (
	// Native hashes an object's raw bytes with SHA-1 (no git object header).
	Native HashFlavor = iota
	// Compatible hashes every object as a flat blob (SHA-256).
	Compatible
)

// String returns a human-readable flavor name.
func (f HashFlavor) String() string {
	switch f {
	case Native:
		return "native"
	case Compatible:
		return "compatible"
	default:
		return "unknown"
	}
}

// New returns a fresh hash.Hash for the given flavor.
func (f HashFlavor) New() hash.Hash {
	if f == Compatible {
		return sha256.New()
	}

	return sha1.New() //nolint:gosec // see Native doc comment
}

// Digest identifies a stored object by the hash of its bytes, its size, and
// whether it denotes a tree. Equality is by Hash alone; Size may be zero for
// unknown-size references (e.g. a digest quoted from an action's declared
// output before the action has run).
type Digest struct {
	Hash   string
	Size   int64
	IsTree bool
}

// Empty reports whether d is the zero Digest.
func (d Digest) Empty() bool {
	return d.Hash == ""
}

// Equal reports hash equality, ignoring Size/IsTree (equality is by hash
// alone).
func (d Digest) Equal(other Digest) bool {
	return d.Hash == other.Hash
}

// String renders the digest as "hash:size" ("hash:size:tree" for trees),
// used as a stable map key and for logging.
func (d Digest) String() string {
	if d.IsTree {
		return fmt.Sprintf("%s:%d:tree", d.Hash, d.Size)
	}

	return fmt.Sprintf("%s:%d", d.Hash, d.Size)
}

// Of computes the digest of bytes under the given flavor.
func Of(flavor HashFlavor, data []byte, isTree bool) Digest {
	h := flavor.New()
	h.Write(data) //nolint:errcheck // hash.Hash.Write never returns an error

	return Digest{
		Hash:   hex.EncodeToString(h.Sum(nil)),
		Size:   int64(len(data)),
		IsTree: isTree,
	}
}

// FromHex builds a Digest from an already-computed hash string, as produced
// e.g. by a remote peer supplying a digest the caller must verify against.
func FromHex(hexHash string, size int64, isTree bool) Digest {
	return Digest{Hash: hexHash, Size: size, IsTree: isTree}
}
