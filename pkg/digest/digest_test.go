package digest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

func TestOfIsDeterministic(t *testing.T) {
	t.Parallel()

	a := digest.Of(digest.Native, []byte("hello"), false)
	b := digest.Of(digest.Native, []byte("hello"), false)

	assert.Equal(t, a, b)
	assert.True(t, a.Equal(b))
}

func TestOfDistinguishesFlavors(t *testing.T) {
	t.Parallel()

	native := digest.Of(digest.Native, []byte("hello"), false)
	compat := digest.Of(digest.Compatible, []byte("hello"), false)

	assert.NotEqual(t, native.Hash, compat.Hash)
}

func TestEqualIgnoresSizeAndTreeTag(t *testing.T) {
	t.Parallel()

	a := digest.Digest{Hash: "abc", Size: 1, IsTree: false}
	b := digest.Digest{Hash: "abc", Size: 2, IsTree: true}

	assert.True(t, a.Equal(b))
	assert.NotEqual(t, a, b)
}

func TestIsUpwards(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"foo/bar":    false,
		"./foo":      false,
		"../foo":     true,
		"foo/../bar": false,
		"foo/../../x": true,
		"/abs/path":  true,
		"":           false,
	}

	for target, want := range cases {
		target, want := target, want
		t.Run(target, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, want, digest.IsUpwards(target))
		})
	}
}
