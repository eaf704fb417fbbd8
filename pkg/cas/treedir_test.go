package cas_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDirectoryAndExpandTreeRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o640))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(src, "run.sh"), []byte("#!/bin/sh\n"), 0o750))

	d, err := s.StoreDirectory(src)
	require.NoError(t, err)
	assert.True(t, d.IsTree)

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, s.ExpandTree(d, dest))

	gotA, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(gotA))

	gotB, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(gotB))

	info, err := os.Stat(filepath.Join(dest, "run.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestExpandTreeIsDeterministicDigest(t *testing.T) {
	t.Parallel()

	s1 := newStore(t)
	s2 := newStore(t)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "x"), []byte("x"), 0o640))

	d1, err := s1.StoreDirectory(src)
	require.NoError(t, err)

	d2, err := s2.StoreDirectory(src)
	require.NoError(t, err)

	assert.Equal(t, d1.Hash, d2.Hash)
}
