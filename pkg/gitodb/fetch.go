package gitodb

import (
	"fmt"
	"os"

	git2go "github.com/libgit2/git2go/v34"
)

// FetchFromPath fetches refName from the repository at sourcePath into h,
// via a temporary local "repo" remote, returning the fetched commit's hash.
// The temporary remote is removed again once the fetch completes, win or
// lose.
func (h *Handle) FetchFromPath(sourcePath, refName string) (Hash, error) {
	if !h.real {
		return Hash{}, ErrFakeHandleMutation
	}

	const tempRemoteName = "justbuild-computed-root-fetch"

	_ = h.repo.Remotes.Delete(tempRemoteName) //nolint:errcheck // best-effort cleanup of a stale remote

	remote, err := h.repo.Remotes.Create(tempRemoteName, "file://"+sourcePath)
	if err != nil {
		return Hash{}, fmt.Errorf("gitodb: create temp remote for %s: %w", sourcePath, err)
	}

	defer func() {
		remote.Free()
		_ = h.repo.Remotes.Delete(tempRemoteName) //nolint:errcheck // best-effort cleanup
	}()

	if err := remote.Fetch([]string{refName}, nil, ""); err != nil {
		return Hash{}, fmt.Errorf("gitodb: fetch %q from %s: %w", refName, sourcePath, err)
	}

	fetchHeadRef := fmt.Sprintf("refs/remotes/%s/%s", tempRemoteName, refName)

	ref, err := h.repo.References.Lookup(fetchHeadRef)
	if err != nil {
		// Some local setups fetch directly to FETCH_HEAD rather than a
		// tracking ref; fall back to that.
		ref, err = h.repo.References.Lookup("FETCH_HEAD")
		if err != nil {
			return Hash{}, fmt.Errorf("gitodb: resolve fetched ref %q: %w", refName, err)
		}
	}
	defer ref.Free()

	return hashFromOid(ref.Target()), nil
}

// CloneBare creates a bare mirror of sourcePath at destPath, used to give a
// computed-root fetch a stable, lock-protected on-disk source even when
// sourcePath is itself a live working repository.
func CloneBare(sourcePath, destPath string) error {
	if err := os.MkdirAll(destPath, 0o750); err != nil {
		return fmt.Errorf("gitodb: mkdir clone dest %s: %w", destPath, err)
	}

	opts := &git2go.CloneOptions{Bare: true}

	repo, err := git2go.Clone(sourcePath, destPath, opts)
	if err != nil {
		return fmt.Errorf("gitodb: clone %s: %w", sourcePath, err)
	}

	repo.Free()

	return nil
}
