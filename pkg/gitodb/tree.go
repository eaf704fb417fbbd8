package gitodb

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// EntryKind mirrors git's tree entry filemodes, collapsed to the kinds the
// build tool distinguishes.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindExecutable
	KindSymlink
	KindTree
)

func kindFromFilemode(mode git2go.Filemode) EntryKind {
	switch mode {
	case git2go.FilemodeTree:
		return KindTree
	case git2go.FilemodeBlobExecutable:
		return KindExecutable
	case git2go.FilemodeLink:
		return KindSymlink
	default:
		return KindFile
	}
}

func (k EntryKind) filemode() git2go.Filemode {
	switch k {
	case KindTree:
		return git2go.FilemodeTree
	case KindExecutable:
		return git2go.FilemodeBlobExecutable
	case KindSymlink:
		return git2go.FilemodeLink
	default:
		return git2go.FilemodeBlob
	}
}

// NamedEntry is one named occurrence of a shared raw object id within a
// tree.
type NamedEntry struct {
	Name string
	Kind EntryKind
}

// ReadTree returns every entry of the tree at hash, grouped by the raw
// object id they reference.
func (h *Handle) ReadTree(hash Hash, check SymlinksCheckFunc) (map[Hash][]NamedEntry, error) {
	tree, err := h.repo.LookupTree(hash.toOid())
	if err != nil {
		return nil, fmt.Errorf("gitodb: lookup tree %s: %w", hash, err)
	}
	defer tree.Free()

	out := make(map[Hash][]NamedEntry)

	count := tree.EntryCount()
	for i := uint64(0); i < count; i++ {
		entry := tree.EntryByIndex(i)
		if entry == nil {
			continue
		}

		entryHash := hashFromOid(entry.Id)
		kind := kindFromFilemode(entry.Filemode)

		if kind == KindSymlink && check != nil {
			if err := check(h, entryHash, entry.Name); err != nil {
				return nil, fmt.Errorf("gitodb: symlink check failed for %q: %w", entry.Name, err)
			}
		}

		out[entryHash] = append(out[entryHash], NamedEntry{Name: entry.Name, Kind: kind})
	}

	return out, nil
}

// TreeEntrySpec describes one entry to place into a created tree.
type TreeEntrySpec struct {
	Name string
	Hash Hash
	Kind EntryKind
}

// CreateTree builds a shallow tree object from entries and returns its
// hash. Only a single level is built — callers assemble nested trees
// bottom-up, referencing already-created subtree hashes by KindTree
// entries.
func (h *Handle) CreateTree(entries []TreeEntrySpec) (Hash, error) {
	if !h.real {
		return Hash{}, ErrFakeHandleMutation
	}

	builder, err := h.repo.TreeBuilder()
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: new tree builder: %w", err)
	}
	defer builder.Free()

	for _, e := range entries {
		if err := builder.Insert(e.Name, e.Hash.toOid(), e.Kind.filemode()); err != nil {
			return Hash{}, fmt.Errorf("gitodb: insert %q into tree: %w", e.Name, err)
		}
	}

	oid, err := builder.Write()
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: write tree: %w", err)
	}

	return hashFromOid(oid), nil
}

// ObjectInfo is the result of looking up the object at a path inside a tree.
type ObjectInfo struct {
	Hash           Hash
	Kind           EntryKind
	SymlinkContent string // populated only when Kind == KindSymlink
}

// EntryAtPath resolves path (slash-separated, relative to the tree at hash)
// to an ObjectInfo.
func (h *Handle) EntryAtPath(hash Hash, path string) (ObjectInfo, error) {
	tree, err := h.repo.LookupTree(hash.toOid())
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("gitodb: lookup tree %s: %w", hash, err)
	}
	defer tree.Free()

	entry, err := tree.EntryByPath(path)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("gitodb: entry at path %q: %w", path, err)
	}

	info := ObjectInfo{
		Hash: hashFromOid(entry.Id),
		Kind: kindFromFilemode(entry.Filemode),
	}

	if info.Kind == KindSymlink {
		blob, err := h.repo.LookupBlob(entry.Id)
		if err != nil {
			return ObjectInfo{}, fmt.Errorf("gitodb: lookup symlink blob at %q: %w", path, err)
		}
		defer blob.Free()

		info.SymlinkContent = string(blob.Contents())
	}

	return info, nil
}

// BlobContents returns the raw bytes of the blob at hash.
func (h *Handle) BlobContents(hash Hash) ([]byte, error) {
	blob, err := h.repo.LookupBlob(hash.toOid())
	if err != nil {
		return nil, fmt.Errorf("gitodb: lookup blob %s: %w", hash, err)
	}
	defer blob.Free()

	return blob.Contents(), nil
}

// CreateBlob stores data as a blob and returns its hash.
func (h *Handle) CreateBlob(data []byte) (Hash, error) {
	if !h.real {
		return Hash{}, ErrFakeHandleMutation
	}

	oid, err := h.repo.CreateBlobFromBuffer(data)
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: create blob: %w", err)
	}

	return hashFromOid(oid), nil
}
