// Package computedroot implements the computed-root evaluator: a repository
// root whose on-disk content is defined as the output of an export target in
// another, content-fixed repository is resolved by analysing and building
// that target, staging its artifacts, importing the staged directory into
// the process-wide git object database, and installing the resulting tree
// id back into the repository configuration. Roots are resolved in
// dependency order and deduplicated by an async-map keyed on root name,
// shaped after pkg/framework/commit_streamer.go's ordered walk that imports
// state from one stage into the next: here the walk is a depth-first
// resolution of computed-root dependencies and the imported state is a
// materialised git tree rather than a streamed commit.
package computedroot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/asyncmap"
	"github.com/Sumatoshi-tech/codefang/pkg/cas"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
	"github.com/Sumatoshi-tech/codefang/pkg/gitodb"
	"github.com/Sumatoshi-tech/codefang/pkg/resultmap"
	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
)

// RootDescription names one computed root's export target and the other
// computed roots its analysis may reach.
type RootDescription struct {
	Name         string
	ExportTarget expr.Name
	Config       map[string]expr.Value
	Deps         []string // other computed-root names referenced transitively
}

// Importer commits a staged directory into the process-wide git object
// database and returns the resulting root tree hash.
// It is the narrow capability computedroot needs from pkg/gitodb, kept as an
// interface so tests can substitute a fake rather than spin up libgit2.
type Importer interface {
	Import(stagedDir string, message string) (gitodb.Hash, error)
}

// Resolver resolves a set of RootDescriptions into git tree ids, deduplicated
// per root name via an async-map.
type Resolver struct {
	ts      *tasksystem.Pool
	engine  *analysis.Engine
	targets *asyncmap.Map[analysis.ConfiguredTarget, analysis.AnalysedTarget]
	results *resultmap.Map
	importer Importer
	roots   map[string]RootDescription
	stageDir func(root string) (string, error)

	rootMap *asyncmap.Map[string, gitodb.Hash]
}

// New constructs a Resolver. stageDir provisions a fresh temporary directory
// to stage one root's artifacts into; the caller owns cleanup policy.
func New(
	jobs int,
	ts *tasksystem.Pool,
	engine *analysis.Engine,
	targets *asyncmap.Map[analysis.ConfiguredTarget, analysis.AnalysedTarget],
	results *resultmap.Map,
	importer Importer,
	roots []RootDescription,
	stageDir func(root string) (string, error),
) *Resolver {
	r := &Resolver{
		ts:       ts,
		engine:   engine,
		targets:  targets,
		results:  results,
		importer: importer,
		roots:    make(map[string]RootDescription, len(roots)),
		stageDir: stageDir,
	}

	for _, rd := range roots {
		r.roots[rd.Name] = rd
	}

	r.rootMap = asyncmap.New[string, gitodb.Hash](jobs, ts, func(s string) string { return s }, r.creator())

	return r
}

// ResolveAll resolves every named root, in dependency order, deduplicating
// shared dependencies reached transitively through the repository
// configuration.
func (r *Resolver) ResolveAll(names []string) (map[string]gitodb.Hash, error) {
	var failed []string

	values := r.rootMap.ConsumeAfterKeysReady(names, func(k string) { failed = append(failed, k) })

	if len(failed) > 0 {
		sort.Strings(failed)

		return nil, fmt.Errorf("computedroot: failed to resolve %v", failed)
	}

	out := make(map[string]gitodb.Hash, len(names))

	for i, name := range names {
		if values[i] != nil {
			out[name] = *values[i]
		}
	}

	return out, nil
}

// creator builds the ValueCreator driving the per-root resolution sequence below.
func (r *Resolver) creator() asyncmap.ValueCreator[string, gitodb.Hash] {
	return func(ts *tasksystem.Pool, setter asyncmap.Setter[gitodb.Hash], logger asyncmap.Logger, subcaller asyncmap.Subcaller[string, gitodb.Hash], name string) {
		desc, ok := r.roots[name]
		if !ok {
			logger(fmt.Sprintf("computedroot: unknown root %q", name), true)

			return
		}

		// Step 2a: depth-first evaluate this root's own computed-root
		// dependencies first, via sub-caller.
		subcaller(desc.Deps, func(_ []*gitodb.Hash) {
			r.resolveOne(ts, setter, logger, desc)
		}, logger)
	}
}

func (r *Resolver) resolveOne(ts *tasksystem.Pool, setter asyncmap.Setter[gitodb.Hash], logger asyncmap.Logger, desc RootDescription) {
	// Step 2b-c: build an isolated AnalyseContext (here, simply a fresh
	// ConfiguredTarget under this root's declared config) and run Analyse to
	// produce the export target's staged artifacts. Traversal of any actions
	// the export target still owns is the caller's responsibility before
	// ResolveAll is invoked, since those actions share the main run's
	// traverser and executor rather than a root-local one.
	ct := analysis.ConfiguredTarget{Name: desc.ExportTarget, Config: expr.Empty.Update(desc.Config)}

	results := r.targets.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(analysis.ConfiguredTarget) {})
	if results[0] == nil {
		logger(fmt.Sprintf("computedroot: failed to analyse export target for root %q", desc.Name), true)

		return
	}

	target := *results[0]
	r.results.Insert(ct, target)

	dir, err := r.stageDir(desc.Name)
	if err != nil {
		logger(fmt.Sprintf("computedroot: stage dir for %q: %v", desc.Name, err), true)

		return
	}

	if err := writeStage(dir, target.Result.ArtifactStage, r.engine.Store); err != nil {
		logger(fmt.Sprintf("computedroot: stage artifacts for %q: %v", desc.Name, err), true)

		return
	}

	// Step 2d-e: import (GitImporter serialises the git operations through
	// its gitodb.Worker) and install the resulting tree.
	treeHash, err := r.importer.Import(dir, fmt.Sprintf("computed root %s", desc.Name))
	if err != nil {
		logger(fmt.Sprintf("computedroot: import %q: %v", desc.Name, err), true)

		return
	}

	setter(treeHash)
}

// writeStage materialises stage's entries under dir, reading blob content
// from store, so they can be staged into a temporary directory before import.
func writeStage(dir string, stage analysis.Stage, store *cas.Store) error {
	paths := make([]string, 0, len(stage))
	for p := range stage {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for _, p := range paths {
		art := stage[p]
		if art.Kind == analysis.ArtifactActionOutput {
			return fmt.Errorf("computedroot: artifact %q is an unresolved action output, run the traverser first", p)
		}

		dest := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return fmt.Errorf("computedroot: mkdir for %q: %w", p, err)
		}

		if art.Kind == analysis.ArtifactKnownTree {
			continue // nested trees are expanded by their own leaf entries elsewhere in the stage
		}

		data, err := store.ReadBytes(art.Digest, art.ObjectType)
		if err != nil {
			return fmt.Errorf("computedroot: read blob for %q: %w", p, err)
		}

		mode := os.FileMode(0o640)
		if art.ObjectType == digest.Executable {
			mode = 0o750
		}

		if err := os.WriteFile(dest, data, mode); err != nil {
			return fmt.Errorf("computedroot: write %q: %w", p, err)
		}
	}

	return nil
}

// GitImporter is the real Importer, serialising the commit+fetch+tag
// sequence through a caller-supplied gitodb.Worker.
type GitImporter struct {
	Worker *gitodb.Worker
	Sig    gitodb.Signature
}

// Import commits stagedDir's content into a temporary repository, fetches it
// into the process-wide object database, tags the fetched commit to keep it
// reachable across GC, and returns the root tree's hash.
func (g *GitImporter) Import(stagedDir string, message string) (gitodb.Hash, error) {
	tmpRepo, err := os.MkdirTemp("", "computed-root-import-*")
	if err != nil {
		return gitodb.Hash{}, fmt.Errorf("computedroot: mktemp: %w", err)
	}
	defer os.RemoveAll(tmpRepo)

	value, err := g.Worker.Submit(func(h *gitodb.Handle) (any, error) {
		return importAndTag(h, tmpRepo, stagedDir, message, g.Sig)
	})
	if err != nil {
		return gitodb.Hash{}, err
	}

	return value.(gitodb.Hash), nil
}

// importAndTag builds the staged
// directory's tree and a commit for it in a throwaway bare repository, then
// fetch that commit from the temp repo into the process-wide object database
// h and keep it reachable with an annotated tag, rather than constructing
// blobs directly against h (which would make a half-built commit briefly
// visible to concurrent readers of the shared ODB).
func importAndTag(h *gitodb.Handle, tmpRepoPath, stagedDir, message string, sig gitodb.Signature) (gitodb.Hash, error) {
	tmp, err := gitodb.InitRepository(tmpRepoPath, true)
	if err != nil {
		return gitodb.Hash{}, err
	}
	defer tmp.Close()

	treeHash, err := importDirectory(tmp, stagedDir)
	if err != nil {
		return gitodb.Hash{}, fmt.Errorf("computedroot: import directory: %w", err)
	}

	commitHash, err := tmp.CommitDirectory(treeHash, nil, message, sig)
	if err != nil {
		return gitodb.Hash{}, fmt.Errorf("computedroot: commit in temp repo: %w", err)
	}

	const headRef = "refs/heads/main"
	if err := tmp.SetHeadToCommit(headRef, commitHash); err != nil {
		return gitodb.Hash{}, fmt.Errorf("computedroot: set temp repo head: %w", err)
	}

	fetchedHash, err := h.FetchFromPath(tmpRepoPath, headRef)
	if err != nil {
		return gitodb.Hash{}, fmt.Errorf("computedroot: fetch from temp repo: %w", err)
	}

	tagName := fmt.Sprintf("refs/tags/computed-root/%s", fetchedHash)
	if _, err := h.Tag(tagName, fetchedHash, message, sig); err != nil {
		return gitodb.Hash{}, fmt.Errorf("computedroot: tag: %w", err)
	}

	return h.CommitTreeHash(fetchedHash)
}

// importDirectory walks dir bottom-up, creating a blob per file and a tree
// per directory level, and returns the root tree's hash.
func importDirectory(h *gitodb.Handle, dir string) (gitodb.Hash, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return gitodb.Hash{}, fmt.Errorf("computedroot: read dir %q: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	specs := make([]gitodb.TreeEntrySpec, 0, len(entries))

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		if e.IsDir() {
			subHash, err := importDirectory(h, path)
			if err != nil {
				return gitodb.Hash{}, err
			}

			specs = append(specs, gitodb.TreeEntrySpec{Name: e.Name(), Hash: subHash, Kind: gitodb.KindTree})

			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return gitodb.Hash{}, fmt.Errorf("computedroot: read %q: %w", path, err)
		}

		blobHash, err := h.CreateBlob(data)
		if err != nil {
			return gitodb.Hash{}, fmt.Errorf("computedroot: create blob for %q: %w", path, err)
		}

		kind := gitodb.KindFile

		info, err := e.Info()
		if err == nil && info.Mode()&0o111 != 0 {
			kind = gitodb.KindExecutable
		}

		specs = append(specs, gitodb.TreeEntrySpec{Name: e.Name(), Hash: blobHash, Kind: kind})
	}

	return h.CreateTree(specs)
}

// DefaultSignature is the fixed, reproducible author identity used for
// computed-root commits.
func DefaultSignature() gitodb.Signature {
	return gitodb.Signature{Name: "justbuild", Email: "justbuild@localhost", When: time.Unix(0, 0)}
}
