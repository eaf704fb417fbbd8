package gitodb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/gitodb"
)

func newTestHandle(t *testing.T) *gitodb.Handle {
	t.Helper()

	dir := t.TempDir()

	h, err := gitodb.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(h.Close)

	return h
}

func testSignature() gitodb.Signature {
	return gitodb.Signature{Name: "justbuild", Email: "justbuild@localhost", When: time.Unix(0, 0)}
}

func TestCreateTreeAndReadBack(t *testing.T) {
	t.Parallel()

	h := newTestHandle(t)

	blob, err := h.CreateBlob([]byte("hello"))
	require.NoError(t, err)

	treeHash, err := h.CreateTree([]gitodb.TreeEntrySpec{
		{Name: "a.txt", Hash: blob, Kind: gitodb.KindFile},
	})
	require.NoError(t, err)

	entries, err := h.ReadTree(treeHash, nil)
	require.NoError(t, err)
	require.Contains(t, entries, blob)
	require.Equal(t, "a.txt", entries[blob][0].Name)
}

func TestCreateTreeDedupesSharedBlob(t *testing.T) {
	t.Parallel()

	h := newTestHandle(t)

	blob, err := h.CreateBlob([]byte("shared"))
	require.NoError(t, err)

	treeHash, err := h.CreateTree([]gitodb.TreeEntrySpec{
		{Name: "a.txt", Hash: blob, Kind: gitodb.KindFile},
		{Name: "b.txt", Hash: blob, Kind: gitodb.KindFile},
	})
	require.NoError(t, err)

	entries, err := h.ReadTree(treeHash, nil)
	require.NoError(t, err)
	require.Len(t, entries[blob], 2)
}

func TestCommitDirectoryAndSubtree(t *testing.T) {
	t.Parallel()

	h := newTestHandle(t)

	blob, err := h.CreateBlob([]byte("payload"))
	require.NoError(t, err)

	treeHash, err := h.CreateTree([]gitodb.TreeEntrySpec{
		{Name: "payload.txt", Hash: blob, Kind: gitodb.KindFile},
	})
	require.NoError(t, err)

	commitHash, err := h.CommitDirectory(treeHash, nil, "initial", testSignature())
	require.NoError(t, err)

	got, err := h.SubtreeFromCommit(commitHash, "")
	require.NoError(t, err)
	require.Equal(t, treeHash, got)
}

func TestTagPointsAtCommit(t *testing.T) {
	t.Parallel()

	h := newTestHandle(t)

	treeHash, err := h.CreateTree(nil)
	require.NoError(t, err)

	commitHash, err := h.CommitDirectory(treeHash, nil, "empty", testSignature())
	require.NoError(t, err)

	_, err = h.Tag("kept-root", commitHash, "keep this root reachable", testSignature())
	require.NoError(t, err)

	require.True(t, h.HasCommit(commitHash))
}

func TestFakeHandleRejectsMutation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	real, err := gitodb.InitRepository(dir, false)
	require.NoError(t, err)
	defer real.Close()

	fake, err := gitodb.OpenFake(dir)
	require.NoError(t, err)
	defer fake.Close()

	_, err = fake.CreateTree(nil)
	require.ErrorIs(t, err, gitodb.ErrFakeHandleMutation)
}

func TestNonUpwardsSymlinksCheckRejectsEscape(t *testing.T) {
	t.Parallel()

	h := newTestHandle(t)

	target, err := h.CreateBlob([]byte("../../etc/passwd"))
	require.NoError(t, err)

	err = gitodb.NonUpwardsSymlinksCheck(h, target, "evil-link")
	require.Error(t, err)
}

func TestNonUpwardsSymlinksCheckAllowsRelative(t *testing.T) {
	t.Parallel()

	h := newTestHandle(t)

	target, err := h.CreateBlob([]byte("sibling/file.txt"))
	require.NoError(t, err)

	require.NoError(t, gitodb.NonUpwardsSymlinksCheck(h, target, "fine-link"))
}
