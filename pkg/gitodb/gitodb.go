// Package gitodb wraps libgit2 (via git2go) with the narrow surface the
// build-tool core needs from a git object database: reading
// tree entries, creating trees, committing a working directory, annotated
// tagging, fetching from a local path through a temporary repository, and
// resolving an object under a path inside a tree. It is adapted from the
// pkg/gitlib, trading that package's history-mining read surface
// (diffs, batch blob loading, revision walks) for the smaller read/write
// surface a content-addressed build graph needs.
package gitodb

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrFakeHandleMutation is returned when a mutating operation is attempted
// on a fake (read-only, ODB-only) handle.
var ErrFakeHandleMutation = errors.New("gitodb: mutating operation on a fake handle")

// Hash is a git object id (always SHA-1: git's own object format, regardless
// of the CAS hashing flavor the rest of the build tool selects for its own
// digests — see pkg/digest.HashFlavor).
type Hash [20]byte

// ZeroHash is the all-zero hash, used as a parentless-commit sentinel.
func ZeroHash() Hash { return Hash{} }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}

	return true
}

// String returns h's hex encoding.
func (h Hash) String() string {
	const hexChars = "0123456789abcdef"

	buf := make([]byte, 40)

	for i, b := range h {
		buf[i*2] = hexChars[b>>4]
		buf[i*2+1] = hexChars[b&0x0f]
	}

	return string(buf)
}

func hashFromOid(oid *git2go.Oid) Hash {
	var h Hash

	copy(h[:], oid[:])

	return h
}

func (h Hash) toOid() *git2go.Oid {
	oid := new(git2go.Oid)

	copy(oid[:], h[:])

	return oid
}

// Handle is an open git object database, either real (owns the repository;
// mutating operations are valid but non-thread-safe — callers must serialize
// through Worker) or fake (wraps only the ODB; all reads are safe to call
// from many goroutines at once, but mutations return ErrFakeHandleMutation).
type Handle struct {
	repo *git2go.Repository
	real bool
	path string
}

// Open opens an existing repository at path as a real (mutating-capable)
// handle.
func Open(path string) (*Handle, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("gitodb: open repository %s: %w", path, err)
	}

	return &Handle{repo: repo, real: true, path: path}, nil
}

// InitRepository creates a fresh repository at path (bare or with a working
// tree) and opens it as a real handle. Used to build the temporary repo a
// computed root's staged directory is committed into before being fetched
// into the process-wide object database.
func InitRepository(path string, bare bool) (*Handle, error) {
	repo, err := git2go.InitRepository(path, bare)
	if err != nil {
		return nil, fmt.Errorf("gitodb: init repository %s: %w", path, err)
	}

	return &Handle{repo: repo, real: true, path: path}, nil
}

// SetHeadToCommit points refName (e.g. "refs/heads/main") at hash, creating
// the reference if absent.
func (h *Handle) SetHeadToCommit(refName string, hash Hash) error {
	if !h.real {
		return ErrFakeHandleMutation
	}

	ref, err := h.repo.References.Create(refName, hash.toOid(), true, "")
	if err != nil {
		return fmt.Errorf("gitodb: set %s to %s: %w", refName, hash, err)
	}
	defer ref.Free()

	return nil
}

// OpenFake opens path's object database only, yielding a handle whose reads
// are safe for concurrent use but whose mutating operations always fail.
func OpenFake(path string) (*Handle, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("gitodb: open repository %s: %w", path, err)
	}

	return &Handle{repo: repo, real: false, path: path}, nil
}

// Path returns the repository's on-disk path.
func (h *Handle) Path() string { return h.path }

// IsReal reports whether h owns the repository for mutation.
func (h *Handle) IsReal() bool { return h.real }

// Close releases the underlying repository.
func (h *Handle) Close() {
	if h.repo != nil {
		h.repo.Free()
		h.repo = nil
	}
}

// Native exposes the underlying libgit2 repository for operations this
// package does not wrap directly.
func (h *Handle) Native() *git2go.Repository { return h.repo }

// HasCommit reports whether hash names a commit present in the ODB.
func (h *Handle) HasCommit(hash Hash) bool {
	_, err := h.repo.LookupCommit(hash.toOid())

	return err == nil
}

// HasTree reports whether hash names a tree present in the ODB.
func (h *Handle) HasTree(hash Hash) bool {
	_, err := h.repo.LookupTree(hash.toOid())

	return err == nil
}

// HasBlob reports whether hash names a blob present in the ODB.
func (h *Handle) HasBlob(hash Hash) bool {
	odb, err := h.repo.Odb()
	if err != nil {
		return false
	}

	return odb.Exists(hash.toOid())
}
