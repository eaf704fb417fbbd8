package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/codefang/pkg/cas"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

// treeNode is either a leaf Artifact or a directory of further treeNodes,
// used to fold a flat Stage (slash-separated logical paths) into the
// nested shape a git-style tree object records.
type treeNode struct {
	leaf     *Artifact
	children map[string]*treeNode
}

func (n *treeNode) childFor(name string) *treeNode {
	if n.children == nil {
		n.children = map[string]*treeNode{}
	}

	child, ok := n.children[name]
	if !ok {
		child = &treeNode{}
		n.children[name] = child
	}

	return child
}

// buildTree materialises stage as a (possibly nested) CAS tree object,
// implementing the "tree" rule: building a tree artifact whose contents
// are the merged, normalised stage. Every staged artifact must already be
// a resolved blob or tree; an artifact that is still an unresolved action
// output cannot be folded into a tree object before the traverser runs its
// producing action, and is reported as an error here.
func (e *Engine) buildTree(stage Stage) (digest.Digest, []digest.Digest, []digest.Digest, error) {
	root := &treeNode{}

	paths := make([]string, 0, len(stage))
	for p := range stage {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for _, path := range paths {
		a := stage[path]
		if a.Kind == ArtifactActionOutput {
			return digest.Digest{}, nil, nil, fmt.Errorf(
				"tree: %q is not yet resolved (action output %s/%s); run the traverser first",
				path, a.ActionID, a.OutputPath,
			)
		}

		segments := strings.Split(path, "/")
		node := root

		for _, seg := range segments[:len(segments)-1] {
			node = node.childFor(seg)
		}

		leaf := a
		node.childFor(segments[len(segments)-1]).leaf = &leaf
	}

	var blobs, trees []digest.Digest

	rootDigest, err := e.materialiseNode(root, &blobs, &trees)
	if err != nil {
		return digest.Digest{}, nil, nil, err
	}

	return rootDigest, blobs, trees, nil
}

func (e *Engine) materialiseNode(n *treeNode, blobs, trees *[]digest.Digest) (digest.Digest, error) {
	if n.leaf != nil && len(n.children) == 0 {
		*blobs = append(*blobs, n.leaf.Digest)

		return n.leaf.Digest, nil
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}

	sort.Strings(names)

	digests := make([]digest.Digest, len(names))
	isTree := make([]bool, len(names))

	for i, name := range names {
		child := n.children[name]

		if child.leaf != nil && len(child.children) == 0 {
			digests[i] = child.leaf.Digest
			isTree[i] = child.leaf.Kind == ArtifactKnownTree

			if isTree[i] {
				*trees = append(*trees, digests[i])
			} else {
				*blobs = append(*blobs, digests[i])
			}

			continue
		}

		childDigest, err := e.materialiseNode(child, blobs, trees)
		if err != nil {
			return digest.Digest{}, err
		}

		digests[i] = childDigest
		isTree[i] = true
	}

	encoded := cas.EncodeTreeEntries(names, digests, isTree)

	d, err := e.Store.StoreBytes(encoded, digest.Tree)
	if err != nil {
		return digest.Digest{}, err
	}

	*trees = append(*trees, d)

	return d, nil
}
