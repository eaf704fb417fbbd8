package cas

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

// StoreDirectory walks path recursively and stores every regular file,
// symlink, and directory level as CAS objects, returning the digest of the
// root tree. It is the inverse of ExpandTree, used to capture an action's
// declared output directory after local execution, when the directory's
// shape is only known once the command has run.
func (s *Store) StoreDirectory(path string) (digest.Digest, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("cas: read dir %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	sort.Strings(names)

	digests := make([]digest.Digest, len(names))
	isTree := make([]bool, len(names))

	for i, name := range names {
		childPath := filepath.Join(path, name)

		info, lstatErr := os.Lstat(childPath)
		if lstatErr != nil {
			return digest.Digest{}, fmt.Errorf("cas: lstat %s: %w", childPath, lstatErr)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, readErr := os.Readlink(childPath)
			if readErr != nil {
				return digest.Digest{}, fmt.Errorf("cas: readlink %s: %w", childPath, readErr)
			}

			d, storeErr := s.StoreBytes([]byte(target), digest.Symlink)
			if storeErr != nil {
				return digest.Digest{}, storeErr
			}

			digests[i] = d
		case info.IsDir():
			d, storeErr := s.StoreDirectory(childPath)
			if storeErr != nil {
				return digest.Digest{}, storeErr
			}

			digests[i] = d
			isTree[i] = true
		default:
			objType := digest.File
			if info.Mode()&0o111 != 0 {
				objType = digest.Executable
			}

			d, storeErr := s.StoreFile(childPath, objType, false)
			if storeErr != nil {
				return digest.Digest{}, storeErr
			}

			digests[i] = d
		}
	}

	treeBytes := EncodeTreeEntries(names, digests, isTree)

	return s.StoreBytes(treeBytes, digest.Tree)
}

// ExpandTree materialises the tree digest d as a directory tree rooted at
// destDir, recursively expanding nested trees. destDir must not already
// exist. It is the inverse of StoreDirectory, used to stage an
// already-run action's output artifacts as inputs to a dependent action.
func (s *Store) ExpandTree(d digest.Digest, destDir string) error {
	if err := os.MkdirAll(destDir, dirPerm); err != nil {
		return fmt.Errorf("cas: mkdir %s: %w", destDir, err)
	}

	treeBytes, err := s.ReadBytes(d, digest.Tree)
	if err != nil {
		return fmt.Errorf("cas: read tree %s: %w", d.Hash, err)
	}

	entries, err := ParseTreeEntriesForUplink(treeBytes)
	if err != nil {
		return fmt.Errorf("cas: parse tree %s: %w", d.Hash, err)
	}

	for _, e := range entries {
		childPath := filepath.Join(destDir, e.Name)

		if e.IsTree {
			if expandErr := s.ExpandTree(e.Digest, childPath); expandErr != nil {
				return expandErr
			}

			continue
		}

		if linkErr := s.WriteBlob(childPath, e.Digest); linkErr != nil {
			return linkErr
		}
	}

	return nil
}

// WriteBlob writes d's content to dest, probing the executable, plain file,
// and symlink variants in turn — a bare digest does not itself say which
// representation produced it, only BlobPath/Exists does, the same probing
// BlobPath's own callers already rely on. Used both by ExpandTree's per-leaf
// expansion and directly by any caller materialising a single resolved
// artifact (e.g. pkg/localexec staging an action's blob inputs).
func (s *Store) WriteBlob(dest string, d digest.Digest) error {
	if path, ok := s.BlobPath(d, true); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cas: read %s: %w", path, err)
		}

		return os.WriteFile(dest, data, 0o750)
	}

	if path, ok := s.BlobPath(d, false); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cas: read %s: %w", path, err)
		}

		return os.WriteFile(dest, data, 0o640)
	}

	if target, err := s.ReadBytes(d, digest.Symlink); err == nil {
		return os.Symlink(string(target), dest)
	}

	return fmt.Errorf("cas: blob %s not found in any variant", d.Hash)
}
