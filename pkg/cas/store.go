// Package cas implements the content-addressed object store
// and its large-object extension (C3): every object is identified by the
// digest of its bytes, stored under a two-level hex fanout, and — when an
// entry is too large to keep as a single file — transparently decomposed
// into a chunked parts list that reconstructs to the same digest on demand.
package cas

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

// Sentinel errors surfaced to callers.
var (
	// ErrDigestMismatch is returned when stored bytes do not hash to the
	// digest the caller asserted.
	ErrDigestMismatch = errors.New("cas: digest mismatch")
	// ErrTreeInvariant is returned when a tree references an entry absent
	// from the store.
	ErrTreeInvariant = errors.New("cas: tree invariant violated")
	// ErrNotFound is returned when an object cannot be located.
	ErrNotFound = errors.New("cas: object not found")
)

// ExistsFunc is the uplink hook indirecting every CAS read and presence
// check. The live CAS wires a closure that performs a deep generational
// uplink before reporting success; a GC worker view wires a plain
// filesystem-exists check.
type ExistsFunc func(d digest.Digest, objType digest.ObjectType) bool

// defaultExists is used when no ExistsFunc is supplied: a plain presence
// check with no uplink side effect.
func defaultExists(s *Store) ExistsFunc {
	return func(d digest.Digest, objType digest.ObjectType) bool {
		_, ok := s.localPath(d, objType)

		return ok
	}
}

// dirPerm/filePerm mirror the checkpoint directory permissions used
// (pkg/checkpoint/manager.go).
const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// Store is a single-generation content-addressed object store backed by
// three physical directories (file, executable, tree) under Root, each a
// two-level hex fanout. In Compatible mode the tree store is aliased to the
// file store.
type Store struct {
	Root   string
	Flavor digest.HashFlavor
	Exists ExistsFunc

	large *largeStore
}

// New constructs a Store rooted at dir. If exists is nil, a local
// presence-only check is installed (no uplink).
func New(dir string, flavor digest.HashFlavor, exists ExistsFunc) *Store {
	s := &Store{Root: dir, Flavor: flavor}
	if exists == nil {
		s.Exists = defaultExists(s)
	} else {
		s.Exists = exists
	}

	s.large = newLargeStore(s)

	return s
}

// kindDir returns the top-level store directory name for an object type.
func (s *Store) kindDir(objType digest.ObjectType) string {
	switch objType {
	case digest.Executable:
		return "x"
	case digest.Tree:
		if s.Flavor == digest.Compatible {
			return "f"
		}

		return "t"
	case digest.File, digest.Symlink:
		return "f"
	default:
		return "f"
	}
}

// siblingKindDir returns the "other" permission-variant directory used by
// the file/executable sync rule; empty for kinds with no sibling.
func (s *Store) siblingKindDir(objType digest.ObjectType) string {
	switch objType {
	case digest.File, digest.Symlink:
		return "x"
	case digest.Executable:
		return "f"
	default:
		return ""
	}
}

func fanout(root, kind, hash string) string {
	if len(hash) < 2 {
		return filepath.Join(root, kind, "00", hash)
	}

	return filepath.Join(root, kind, hash[:2], hash[2:])
}

// localPath returns the path of d within this generation only, without
// consulting Exists (no uplink), and whether it was found — trying the
// primary kind directory first, then the sibling (file/executable sync).
func (s *Store) localPath(d digest.Digest, objType digest.ObjectType) (string, bool) {
	primary := fanout(s.Root, s.kindDir(objType), d.Hash)
	if _, err := os.Stat(primary); err == nil {
		return primary, true
	}

	if sibling := s.siblingKindDir(objType); sibling != "" {
		siblingPath := fanout(s.Root, sibling, d.Hash)
		if _, err := os.Stat(siblingPath); err == nil {
			return siblingPath, true
		}
	}

	return "", false
}

// Has reports whether d is present, consulting Exists (so a live CAS
// triggers its uplink as a side effect).
func (s *Store) Has(d digest.Digest, objType digest.ObjectType) bool {
	return s.Exists(d, objType)
}

// LocalHas reports whether d is present in this generation only, bypassing
// Exists. pkg/gc uses this to probe each generation in turn without
// recursing into its own uplink callback.
func (s *Store) LocalHas(d digest.Digest, objType digest.ObjectType) bool {
	_, ok := s.localPath(d, objType)

	return ok
}

// BlobPath returns the on-disk path for a blob digest of the given
// executable-ness, uplinking/syncing as needed. Returns ok=false if absent.
func (s *Store) BlobPath(d digest.Digest, executable bool) (string, bool) {
	objType := digest.File
	if executable {
		objType = digest.Executable
	}

	if !s.Exists(d, objType) {
		return "", false
	}

	path, ok := s.localPath(d, objType)
	if !ok {
		return "", false
	}

	return s.syncVariant(d, objType, path)
}

// TreePath returns the on-disk path for a tree digest, uplinking as needed.
func (s *Store) TreePath(d digest.Digest) (string, bool) {
	if !s.Exists(d, digest.Tree) {
		return "", false
	}

	return s.localPath(d, digest.Tree)
}

// syncVariant handles a lookup for one permission variant that finds the
// blob only under the other permission variant, transparently copying the
// content into the requested store.
func (s *Store) syncVariant(d digest.Digest, wantType digest.ObjectType, foundPath string) (string, bool) {
	wantPath := fanout(s.Root, s.kindDir(wantType), d.Hash)
	if foundPath == wantPath {
		return foundPath, true
	}

	data, err := os.ReadFile(foundPath)
	if err != nil {
		return foundPath, true
	}

	if err := s.writeAtomic(wantPath, data); err != nil {
		return foundPath, true
	}

	return wantPath, true
}

// StoreBytes computes the digest of data and stores it, returning the
// computed digest. First-write wins within a generation: if the path
// already exists, the existing bytes are trusted as-is (CAS entries are
// never mutated).
func (s *Store) StoreBytes(data []byte, objType digest.ObjectType) (digest.Digest, error) {
	d := digest.Of(s.Flavor, data, objType == digest.Tree)

	return d, s.storeBytesAt(d, data, objType)
}

// StoreBytesExpecting stores data, failing with ErrDigestMismatch if it does
// not hash to want — the path exercised when bytes arrive from a network
// receive path that already asserts a digest.
func (s *Store) StoreBytesExpecting(want digest.Digest, data []byte, objType digest.ObjectType) error {
	got := digest.Of(s.Flavor, data, objType == digest.Tree)
	if !got.Equal(want) {
		return fmt.Errorf("%w: expected %s, computed %s (%s)", ErrDigestMismatch, want.Hash, got.Hash, humanize.Bytes(uint64(len(data))))
	}

	return s.storeBytesAt(want, data, objType)
}

func (s *Store) storeBytesAt(d digest.Digest, data []byte, objType digest.ObjectType) error {
	path := fanout(s.Root, s.kindDir(objType), d.Hash)
	if _, err := os.Stat(path); err == nil {
		return nil // first-write wins
	}

	return s.writeAtomic(path, data)
}

// writeAtomic writes data to path via a temp file + rename, matching the
// persist package's atomic-write pattern (pkg/persist/codec.go).
func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("cas: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("cas: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if writeErr != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup

		return fmt.Errorf("cas: write temp file: %w", writeErr)
	}

	if closeErr != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup

		return fmt.Errorf("cas: close temp file: %w", closeErr)
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup

		return fmt.Errorf("cas: chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup

		return fmt.Errorf("cas: rename temp file: %w", err)
	}

	return nil
}

// StoreFile stores the file at srcPath. If ownership is true the caller
// asserts it owns srcPath exclusively and a hard link is attempted before
// falling back to a copy.
func (s *Store) StoreFile(srcPath string, objType digest.ObjectType, ownership bool) (digest.Digest, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("cas: read %s: %w", srcPath, err)
	}

	d := digest.Of(s.Flavor, data, objType == digest.Tree)
	path := fanout(s.Root, s.kindDir(objType), d.Hash)

	if _, statErr := os.Stat(path); statErr == nil {
		return d, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return digest.Digest{}, fmt.Errorf("cas: mkdir: %w", err)
	}

	if ownership {
		if err := os.Link(srcPath, path); err == nil {
			return d, nil
		}
		// Fall through to a byte copy if hard-linking is not possible
		// (e.g. cross-device).
	}

	return d, s.writeAtomic(path, data)
}

// ReadBytes reads the bytes stored at digest d, triggering uplink via Exists.
func (s *Store) ReadBytes(d digest.Digest, objType digest.ObjectType) ([]byte, error) {
	var (
		path string
		ok   bool
	)

	if objType == digest.Tree {
		path, ok = s.TreePath(d)
	} else {
		path, ok = s.BlobPath(d, objType == digest.Executable)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cas: read %s: %w", path, err)
	}

	return data, nil
}

// CheckTreeInvariant parses a raw tree blob (a newline-separated sequence of
// "<hash> <istree:0|1> <name>" records — this package's tree encoding, as
// written by EncodeTreeEntries) and asserts every referenced entry is present in this store,
// recursively. It fails with ErrTreeInvariant naming the first missing
// child.
func (s *Store) CheckTreeInvariant(treeBytes []byte) error {
	entries, err := parseTreeEntries(treeBytes)
	if err != nil {
		return err
	}

	for _, e := range entries {
		childType := digest.File
		if e.isTree {
			childType = digest.Tree
		}

		if !s.Has(e.digest, childType) {
			return fmt.Errorf("%w: missing child %q (%s)", ErrTreeInvariant, e.name, e.digest.Hash)
		}

		if e.isTree {
			childBytes, err := s.ReadBytes(e.digest, digest.Tree)
			if err != nil {
				return fmt.Errorf("%w: cannot read child tree %q: %v", ErrTreeInvariant, e.name, err)
			}

			if err := s.CheckTreeInvariant(childBytes); err != nil {
				return err
			}
		}
	}

	return nil
}

type treeEntry struct {
	digest digest.Digest
	name   string
	isTree bool
}

// parseTreeEntries decodes the plain-text tree format written by
// EncodeTreeEntries: one record per line, "<hash> <0|1> <name>".
func parseTreeEntries(treeBytes []byte) ([]treeEntry, error) {
	var entries []treeEntry

	lines := bytes.Split(bytes.TrimRight(treeBytes, "\n"), []byte("\n"))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}

		fields := bytes.SplitN(line, []byte(" "), 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: malformed tree record %q", ErrTreeInvariant, line)
		}

		isTree := string(fields[1]) == "1"
		entries = append(entries, treeEntry{
			digest: digest.FromHex(string(fields[0]), 0, isTree),
			isTree: isTree,
			name:   string(fields[2]),
		})
	}

	return entries, nil
}

// TreeEntry is the exported form of a tree record, used by pkg/gc to walk a
// tree's children during deep uplink without reaching into cas internals.
type TreeEntry struct {
	Digest digest.Digest
	Name   string
	IsTree bool
}

// ParseTreeEntriesForUplink decodes treeBytes into the exported TreeEntry
// form (pkg/gc "deep uplink").
func ParseTreeEntriesForUplink(treeBytes []byte) ([]TreeEntry, error) {
	entries, err := parseTreeEntries(treeBytes)
	if err != nil {
		return nil, err
	}

	out := make([]TreeEntry, len(entries))
	for i, e := range entries {
		out[i] = TreeEntry{Digest: e.digest, Name: e.name, IsTree: e.isTree}
	}

	return out, nil
}

// EncodeTreeEntries is the inverse of parseTreeEntries, used by
// StoreDirectory and by pkg/analysis when materialising a merged stage as a
// tree blob.
func EncodeTreeEntries(names []string, digests []digest.Digest, isTree []bool) []byte {
	var buf bytes.Buffer

	for i, name := range names {
		treeFlag := "0"
		if isTree[i] {
			treeFlag = "1"
		}

		fmt.Fprintf(&buf, "%s %s %s\n", digests[i].Hash, treeFlag, name)
	}

	return buf.Bytes()
}

// Split decomposes d into a parts list.
func (s *Store) Split(d digest.Digest, objType digest.ObjectType) ([]digest.Digest, error) {
	return s.large.split(d, objType)
}

// Splice reconstructs d from parts.
func (s *Store) Splice(d digest.Digest, parts []digest.Digest, objType digest.ObjectType) (digest.Digest, error) {
	return s.large.splice(d, parts, objType)
}

// Compactify performs the background sweep: it removes directories found
// inside a fanout (malformed entries) and proactively splits entries over
// threshold bytes. Entries that also have a parts-list record are left in
// place. It returns the number of entries touched.
func (s *Store) Compactify(threshold int64) (int, error) {
	touched := 0

	for _, kind := range []string{"f", "x", "t"} {
		kindDir := filepath.Join(s.Root, kind)

		entries, err := os.ReadDir(kindDir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return touched, fmt.Errorf("cas: read %s: %w", kindDir, err)
		}

		for _, fanoutEntry := range entries {
			if !fanoutEntry.IsDir() || len(fanoutEntry.Name()) != 2 {
				continue
			}

			n, err := s.compactifyFanout(kind, filepath.Join(kindDir, fanoutEntry.Name()), threshold)
			if err != nil {
				return touched, err
			}

			touched += n
		}
	}

	return touched, nil
}

func (s *Store) compactifyFanout(kind, dir string, threshold int64) (int, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("cas: read %s: %w", dir, err)
	}

	touched := 0

	for _, item := range items {
		if item.IsDir() {
			// Malformed entry: the fanout must be file-only two-level.
			os.RemoveAll(filepath.Join(dir, item.Name())) //nolint:errcheck
			touched++

			continue
		}

		info, err := item.Info()
		if err != nil {
			continue
		}

		if info.Size() > threshold {
			hash := filepath.Base(dir) + item.Name()

			objType := kindToObjectType(kind)
			d := digest.FromHex(hash, info.Size(), objType == digest.Tree)

			if _, err := s.Split(d, objType); err == nil {
				touched++
			}
		}
	}

	return touched, nil
}

func kindToObjectType(kind string) digest.ObjectType {
	switch kind {
	case "x":
		return digest.Executable
	case "t":
		return digest.Tree
	default:
		return digest.File
	}
}
