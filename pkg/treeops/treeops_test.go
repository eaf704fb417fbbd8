package treeops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/gitodb"
	"github.com/Sumatoshi-tech/codefang/pkg/treeops"
)

func newRepo(t *testing.T) *gitodb.Handle {
	t.Helper()

	h, err := gitodb.InitRepository(t.TempDir(), true)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	return h
}

func blob(t *testing.T, h *gitodb.Handle, content string) gitodb.Hash {
	t.Helper()

	hash, err := h.CreateBlob([]byte(content))
	require.NoError(t, err)

	return hash
}

func tree(t *testing.T, h *gitodb.Handle, entries ...gitodb.TreeEntrySpec) gitodb.Hash {
	t.Helper()

	hash, err := h.CreateTree(entries)
	require.NoError(t, err)

	return hash
}

func TestMergeDisjointEntries(t *testing.T) {
	t.Parallel()

	h := newRepo(t)

	base := tree(t, h, gitodb.TreeEntrySpec{Name: "a.txt", Hash: blob(t, h, "a"), Kind: gitodb.KindFile})
	overlay := tree(t, h, gitodb.TreeEntrySpec{Name: "b.txt", Hash: blob(t, h, "b"), Kind: gitodb.KindFile})

	merged, err := treeops.Merge(h, base, overlay, false)
	require.NoError(t, err)

	desc, err := treeops.Describe(h, merged)
	require.NoError(t, err)
	assert.Contains(t, desc, "a.txt")
	assert.Contains(t, desc, "b.txt")
}

func TestMergeConflictRejectedWithoutOverlap(t *testing.T) {
	t.Parallel()

	h := newRepo(t)

	base := tree(t, h, gitodb.TreeEntrySpec{Name: "a.txt", Hash: blob(t, h, "base content"), Kind: gitodb.KindFile})
	overlay := tree(t, h, gitodb.TreeEntrySpec{Name: "a.txt", Hash: blob(t, h, "overlay content"), Kind: gitodb.KindFile})

	_, err := treeops.Merge(h, base, overlay, false)
	require.ErrorIs(t, err, treeops.ErrConflict)
}

func TestMergeConflictOverlayWinsWithOverlap(t *testing.T) {
	t.Parallel()

	h := newRepo(t)

	baseBlob := blob(t, h, "base content")
	overlayBlob := blob(t, h, "overlay content")

	base := tree(t, h, gitodb.TreeEntrySpec{Name: "a.txt", Hash: baseBlob, Kind: gitodb.KindFile})
	overlay := tree(t, h, gitodb.TreeEntrySpec{Name: "a.txt", Hash: overlayBlob, Kind: gitodb.KindFile})

	merged, err := treeops.Merge(h, base, overlay, true)
	require.NoError(t, err)

	entries, err := h.ReadTree(merged, nil)
	require.NoError(t, err)
	require.Contains(t, entries, overlayBlob)
	require.NotContains(t, entries, baseBlob)
}

func TestMergeRecursesIntoNestedTrees(t *testing.T) {
	t.Parallel()

	h := newRepo(t)

	baseSub := tree(t, h, gitodb.TreeEntrySpec{Name: "x.txt", Hash: blob(t, h, "x"), Kind: gitodb.KindFile})
	overlaySub := tree(t, h, gitodb.TreeEntrySpec{Name: "y.txt", Hash: blob(t, h, "y"), Kind: gitodb.KindFile})

	base := tree(t, h, gitodb.TreeEntrySpec{Name: "dir", Hash: baseSub, Kind: gitodb.KindTree})
	overlay := tree(t, h, gitodb.TreeEntrySpec{Name: "dir", Hash: overlaySub, Kind: gitodb.KindTree})

	merged, err := treeops.Merge(h, base, overlay, false)
	require.NoError(t, err)

	topEntries, err := h.ReadTree(merged, nil)
	require.NoError(t, err)

	var subHash gitodb.Hash
	for hash, named := range topEntries {
		for _, n := range named {
			if n.Name == "dir" {
				subHash = hash
			}
		}
	}

	require.NotEqual(t, gitodb.Hash{}, subHash)

	subEntries, err := h.ReadTree(subHash, nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, named := range subEntries {
		for _, n := range named {
			names[n.Name] = true
		}
	}

	assert.True(t, names["x.txt"])
	assert.True(t, names["y.txt"])
}

func TestDiffRendersAddedAndRemovedPaths(t *testing.T) {
	t.Parallel()

	h := newRepo(t)

	left := tree(t, h, gitodb.TreeEntrySpec{Name: "a.txt", Hash: blob(t, h, "a"), Kind: gitodb.KindFile})
	right := tree(t, h, gitodb.TreeEntrySpec{Name: "b.txt", Hash: blob(t, h, "b"), Kind: gitodb.KindFile})

	out, err := treeops.Diff(h, left, right)
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "b.txt")
}

func TestMergeWithNilSideReturnsOtherSide(t *testing.T) {
	t.Parallel()

	h := newRepo(t)

	overlay := tree(t, h, gitodb.TreeEntrySpec{Name: "only.txt", Hash: blob(t, h, "only"), Kind: gitodb.KindFile})

	merged, err := treeops.Merge(h, treeops.Nil, overlay, false)
	require.NoError(t, err)
	assert.Equal(t, overlay, merged)
}
