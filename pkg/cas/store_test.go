package cas_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/cas"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

func newStore(t *testing.T) *cas.Store {
	t.Helper()

	dir := t.TempDir()

	return cas.New(filepath.Join(dir, "gen-0"), digest.Native, nil)
}

func TestStoreBytesRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	d, err := s.StoreBytes([]byte("hello"), digest.File)
	require.NoError(t, err)

	require.True(t, s.Has(d, digest.File))

	got, err := s.ReadBytes(d, digest.File)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestStoreBytesIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	d1, err := s.StoreBytes([]byte("same"), digest.File)
	require.NoError(t, err)

	d2, err := s.StoreBytes([]byte("same"), digest.File)
	require.NoError(t, err)

	require.Equal(t, d1, d2)
}

func TestStoreBytesExpectingMismatch(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	wrong := digest.Of(digest.Native, []byte("other"), false)

	err := s.StoreBytesExpecting(wrong, []byte("hello"), digest.File)
	require.ErrorIs(t, err, cas.ErrDigestMismatch)
}

func TestFileExecutableSync(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	d, err := s.StoreBytes([]byte("script"), digest.File)
	require.NoError(t, err)

	// Looking it up as executable should transparently copy it over.
	path, ok := s.BlobPath(d, true)
	require.True(t, ok)
	require.FileExists(t, path)
}

func TestTreeInvariantDetectsMissingChild(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	missing := digest.Of(digest.Native, []byte("not stored"), false)
	treeBytes := cas.EncodeTreeEntries([]string{"a.txt"}, []digest.Digest{missing}, []bool{false})

	err := s.CheckTreeInvariant(treeBytes)
	require.ErrorIs(t, err, cas.ErrTreeInvariant)
}

func TestTreeInvariantSatisfiedWhenChildPresent(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	child, err := s.StoreBytes([]byte("child bytes"), digest.File)
	require.NoError(t, err)

	treeBytes := cas.EncodeTreeEntries([]string{"a.txt"}, []digest.Digest{child}, []bool{false})

	require.NoError(t, s.CheckTreeInvariant(treeBytes))
}

func TestSplitSpliceRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	data := make([]byte, 8*1024*1024) // 8 MiB, large enough to force >=2 chunks
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test fixture, not security-sensitive
	rng.Read(data)

	d, err := s.StoreBytes(data, digest.File)
	require.NoError(t, err)

	parts, err := s.Split(d, digest.File)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(parts), 2)

	spliced, err := s.Splice(d, parts, digest.File)
	require.NoError(t, err)
	require.Equal(t, d, spliced)

	got, err := s.ReadBytes(d, digest.File)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestSplitIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	data := make([]byte, 4*1024*1024)
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic test fixture
	rng.Read(data)

	d, err := s.StoreBytes(data, digest.File)
	require.NoError(t, err)

	parts1, err := s.Split(d, digest.File)
	require.NoError(t, err)

	parts2, err := s.Split(d, digest.File)
	require.NoError(t, err)

	require.Equal(t, parts1, parts2)
}

func TestSplitSingletonReturnsUnsplit(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	d, err := s.StoreBytes([]byte("tiny"), digest.File)
	require.NoError(t, err)

	parts, err := s.Split(d, digest.File)
	require.NoError(t, err)
	require.Equal(t, []digest.Digest{d}, parts)
}

func TestSpliceTreeChecksInvariant(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	missing := digest.Of(digest.Native, []byte("ghost"), false)
	treeBytes := cas.EncodeTreeEntries([]string{"x"}, []digest.Digest{missing}, []bool{false})
	treeDigest := digest.Of(digest.Native, treeBytes, true)

	require.NoError(t, s.StoreBytesExpecting(treeDigest, treeBytes, digest.Tree))

	parts, err := s.Split(treeDigest, digest.Tree)
	require.NoError(t, err)

	// Remove the spliced tree so Splice has to rebuild from parts.
	require.NoError(t, forceDeleteTree(s, treeDigest))

	_, err = s.Splice(treeDigest, parts, digest.Tree)
	require.ErrorIs(t, err, cas.ErrTreeInvariant)
}

func forceDeleteTree(s *cas.Store, d digest.Digest) error {
	path, ok := s.TreePath(d)
	if !ok {
		return nil
	}

	return os.Remove(path)
}
