package gitodb

import (
	"fmt"

	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

// SymlinksCheckFunc is consulted for every symlink entry encountered while
// reading a tree. It resolves the referenced blob's content and asserts it
// is an acceptable link target; returning a non-nil error turns the tree
// read into an error.
type SymlinksCheckFunc func(h *Handle, blobHash Hash, entryName string) error

// NonUpwardsSymlinksCheck rejects any symlink whose target would escape the
// tree it is defined in, reusing the upwards-path test shared with the CAS
// tree invariant (pkg/digest.IsUpwards).
func NonUpwardsSymlinksCheck(h *Handle, blobHash Hash, entryName string) error {
	content, err := h.BlobContents(blobHash)
	if err != nil {
		return fmt.Errorf("resolve symlink %q: %w", entryName, err)
	}

	if digest.IsUpwards(string(content)) {
		return fmt.Errorf("symlink %q targets %q, which escapes its tree", entryName, content)
	}

	return nil
}
