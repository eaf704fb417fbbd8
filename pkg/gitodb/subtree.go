package gitodb

import "fmt"

// SubtreeFromCommit resolves path within the tree of the commit at hash and
// returns the subtree's hash. path == "" returns the commit's root tree.
func (h *Handle) SubtreeFromCommit(hash Hash, path string) (Hash, error) {
	treeHash, err := h.CommitTreeHash(hash)
	if err != nil {
		return Hash{}, err
	}

	if path == "" || path == "." {
		return treeHash, nil
	}

	info, err := h.EntryAtPath(treeHash, path)
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: resolve subtree %q: %w", path, err)
	}

	if info.Kind != KindTree {
		return Hash{}, fmt.Errorf("gitodb: %q is not a tree (kind %d)", path, info.Kind)
	}

	return info.Hash, nil
}
