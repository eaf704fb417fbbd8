// Package treeops implements the tree overlay operation: a recursive merge
// of two git tree digests into a new tree, with optional disjointness
// enforcement. It is grounded on pkg/gitlib/tree.go's Files()/EntryByPath
// traversal, generalised from "iterate one tree" into "walk two trees in
// lockstep, merging their entries level by level" and rebuilt via
// pkg/gitodb.CreateTree rather than mutating a libgit2 tree in place.
// Diff renders two trees' entry listings as a textual diff with
// github.com/sergi/go-diff/diffmatchpatch's line-oriented API.
package treeops

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/codefang/pkg/gitodb"
)

// ErrConflict is returned by Merge when overlay and base both define the
// same path with incompatible content and allowOverlap is false.
var ErrConflict = errors.New("treeops: conflicting path in overlay")

// Nil is the zero Hash, used to mean "no tree" for one side of a Merge.
var Nil gitodb.Hash

// Merge overlays overlay's entries onto base's, recursing into any path
// present as a tree on both sides, and returns the resulting tree's hash.
// When allowOverlap is false, a path defined as non-identical content (or
// as a tree on one side and a non-tree on the other) on both sides is an
// error; when true, overlay's entry wins, exactly as artifact-stage
// overlaying does for dependency inputs (runfiles then artifacts, artifacts
// win).
func Merge(h *gitodb.Handle, base, overlay gitodb.Hash, allowOverlap bool) (gitodb.Hash, error) {
	baseEntries, err := listTree(h, base)
	if err != nil {
		return gitodb.Hash{}, fmt.Errorf("treeops: list base tree: %w", err)
	}

	overlayEntries, err := listTree(h, overlay)
	if err != nil {
		return gitodb.Hash{}, fmt.Errorf("treeops: list overlay tree: %w", err)
	}

	names := make(map[string]struct{}, len(baseEntries)+len(overlayEntries))
	for name := range baseEntries {
		names[name] = struct{}{}
	}

	for name := range overlayEntries {
		names[name] = struct{}{}
	}

	specs := make([]gitodb.TreeEntrySpec, 0, len(names))

	for name := range names {
		baseEntry, inBase := baseEntries[name]
		overlayEntry, inOverlay := overlayEntries[name]

		switch {
		case inBase && !inOverlay:
			specs = append(specs, gitodb.TreeEntrySpec{Name: name, Hash: baseEntry.Hash, Kind: baseEntry.Kind})
		case !inBase && inOverlay:
			specs = append(specs, gitodb.TreeEntrySpec{Name: name, Hash: overlayEntry.Hash, Kind: overlayEntry.Kind})
		case baseEntry.Kind == gitodb.KindTree && overlayEntry.Kind == gitodb.KindTree:
			mergedHash, err := Merge(h, baseEntry.Hash, overlayEntry.Hash, allowOverlap)
			if err != nil {
				return gitodb.Hash{}, err
			}

			specs = append(specs, gitodb.TreeEntrySpec{Name: name, Hash: mergedHash, Kind: gitodb.KindTree})
		case baseEntry.Hash == overlayEntry.Hash && baseEntry.Kind == overlayEntry.Kind:
			specs = append(specs, gitodb.TreeEntrySpec{Name: name, Hash: baseEntry.Hash, Kind: baseEntry.Kind})
		case !allowOverlap:
			return gitodb.Hash{}, fmt.Errorf("%w: %q", ErrConflict, name)
		default:
			specs = append(specs, gitodb.TreeEntrySpec{Name: name, Hash: overlayEntry.Hash, Kind: overlayEntry.Kind})
		}
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	return h.CreateTree(specs)
}

func listTree(h *gitodb.Handle, hash gitodb.Hash) (map[string]gitodb.TreeEntrySpec, error) {
	if hash == Nil {
		return map[string]gitodb.TreeEntrySpec{}, nil
	}

	grouped, err := h.ReadTree(hash, nil)
	if err != nil {
		return nil, err
	}

	out := make(map[string]gitodb.TreeEntrySpec)

	for entryHash, named := range grouped {
		for _, n := range named {
			out[n.Name] = gitodb.TreeEntrySpec{Name: n.Name, Hash: entryHash, Kind: n.Kind}
		}
	}

	return out, nil
}

// Describe renders a tree's immediate entries as sorted "<kind> <hash>
// <name>" lines, the text form Diff compares.
func Describe(h *gitodb.Handle, hash gitodb.Hash) (string, error) {
	entries, err := listTree(h, hash)
	if err != nil {
		return "", fmt.Errorf("treeops: describe: %w", err)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}

	sort.Strings(names)

	var sb strings.Builder

	for _, name := range names {
		e := entries[name]
		fmt.Fprintf(&sb, "%s %s %s\n", kindLabel(e.Kind), e.Hash, name)
	}

	return sb.String(), nil
}

func kindLabel(k gitodb.EntryKind) string {
	switch k {
	case gitodb.KindTree:
		return "tree"
	case gitodb.KindExecutable:
		return "exec"
	case gitodb.KindSymlink:
		return "link"
	default:
		return "file"
	}
}

// Diff renders a human-readable diff between two trees' immediate entries.
// No command of cmd/justbuild calls it.
func Diff(h *gitodb.Handle, left, right gitodb.Hash) (string, error) {
	leftText, err := Describe(h, left)
	if err != nil {
		return "", err
	}

	rightText, err := Describe(h, right)
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()

	lineText1, lineText2, lineArray := dmp.DiffLinesToChars(leftText, rightText)
	diffs := dmp.DiffMain(lineText1, lineText2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	return dmp.DiffPrettyText(diffs), nil
}
