package gitodb

import (
	"fmt"
	"time"

	git2go "github.com/libgit2/git2go/v34"
)

// Signature is the minimal commit/tag author identity the build tool needs;
// it never reflects a real person, only a fixed, reproducible identity so
// commit hashes stay a pure function of tree content and message.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) native() *git2go.Signature {
	return &git2go.Signature{Name: s.Name, Email: s.Email, When: s.When}
}

// CommitDirectory creates a commit whose tree is treeHash, with the given
// parent commits (possibly none, for a root commit), message, and a fixed
// signature. Must be called on a real handle, serialized through Worker.
func (h *Handle) CommitDirectory(treeHash Hash, parents []Hash, message string, sig Signature) (Hash, error) {
	if !h.real {
		return Hash{}, ErrFakeHandleMutation
	}

	tree, err := h.repo.LookupTree(treeHash.toOid())
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: lookup tree %s: %w", treeHash, err)
	}
	defer tree.Free()

	parentCommits := make([]*git2go.Commit, 0, len(parents))

	defer func() {
		for _, c := range parentCommits {
			c.Free()
		}
	}()

	for _, p := range parents {
		c, err := h.repo.LookupCommit(p.toOid())
		if err != nil {
			return Hash{}, fmt.Errorf("gitodb: lookup parent commit %s: %w", p, err)
		}

		parentCommits = append(parentCommits, c)
	}

	sigNative := sig.native()

	oid, err := h.repo.CreateCommit("", sigNative, sigNative, message, tree, parentCommits...)
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: create commit: %w", err)
	}

	return hashFromOid(oid), nil
}

// CommitTreeHash returns the tree id referenced by the commit at hash.
func (h *Handle) CommitTreeHash(hash Hash) (Hash, error) {
	commit, err := h.repo.LookupCommit(hash.toOid())
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: lookup commit %s: %w", hash, err)
	}
	defer commit.Free()

	return hashFromOid(commit.TreeId()), nil
}
