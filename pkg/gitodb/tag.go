package gitodb

import (
	"fmt"
)

// Tag creates an annotated tag named name pointing at the commit at hash,
// keeping the computed-root commit reachable across GC. Must be called on
// a real handle.
func (h *Handle) Tag(name string, hash Hash, message string, sig Signature) (Hash, error) {
	if !h.real {
		return Hash{}, ErrFakeHandleMutation
	}

	commit, err := h.repo.LookupCommit(hash.toOid())
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: lookup commit %s: %w", hash, err)
	}
	defer commit.Free()

	oid, err := h.repo.Tags.CreateAnnotated(name, commit, sig.native(), message)
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: create tag %q: %w", name, err)
	}

	return hashFromOid(oid), nil
}

// DeleteTag removes a previously created tag.
func (h *Handle) DeleteTag(name string) error {
	if !h.real {
		return ErrFakeHandleMutation
	}

	if err := h.repo.Tags.Remove(name); err != nil {
		return fmt.Errorf("gitodb: delete tag %q: %w", name, err)
	}

	return nil
}
