// Package localexec implements the local, os/exec-backed action executor:
// the one concrete traverser.Executor a process running without a remote
// execution collaborator falls back to. It stages an action's declared
// inputs onto disk via pkg/cas, runs its argv/env in a scratch directory,
// and stores the declared outputs back into the CAS, recording each
// output's resolved digest so a dependent action's still-unresolved
// ArtifactActionOutput inputs can be staged in turn.
package localexec

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/cas"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
	"github.com/Sumatoshi-tech/codefang/pkg/resultmap"
	"github.com/Sumatoshi-tech/codefang/pkg/traverser"
)

const scratchDirPerm = 0o750

// Executor runs actions locally. It implements traverser.Executor.
type Executor struct {
	results *resultmap.Map
	store   *cas.Store
	scratch string

	mu      sync.Mutex
	outputs map[string]resolved // "actionID\x00path" -> resolved digest
}

type resolved struct {
	digest digest.Digest
	isDir  bool
}

// New constructs an Executor over results (for action lookup by id), store
// (for staging inputs and recording outputs), with per-action scratch
// directories created under scratch.
func New(results *resultmap.Map, store *cas.Store, scratch string) *Executor {
	return &Executor{
		results: results,
		store:   store,
		scratch: scratch,
		outputs: map[string]resolved{},
	}
}

var _ traverser.Executor = (*Executor)(nil)

// ProcessArtifact is a no-op: an Artifact with no Producer names a blob or
// tree already resident in the CAS by construction (ArtifactKnownBlob /
// ArtifactKnownTree), nothing to fetch.
func (e *Executor) ProcessArtifact(_ string) error {
	return nil
}

// ProcessAction runs the action a.ID names, looked up from results, and
// records its outputs.
func (e *Executor) ProcessAction(a traverser.Action) error {
	action, ok := e.results.ActionByID(a.ID)
	if !ok {
		return fmt.Errorf("localexec: unknown action %q", a.ID)
	}

	if len(action.Argv) == 0 {
		return fmt.Errorf("localexec: action %q has empty argv", a.ID)
	}

	dir, err := os.MkdirTemp(e.scratch, "action-*")
	if err != nil {
		return fmt.Errorf("localexec: mkdir scratch: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // best-effort cleanup

	if err := e.stageInputs(dir, action.Inputs); err != nil {
		return fmt.Errorf("localexec: stage inputs for %q: %w", a.ID, err)
	}

	if err := e.run(dir, action); err != nil {
		return err
	}

	return e.captureOutputs(dir, a.ID, action)
}

func (e *Executor) run(dir string, action analysis.Action) error {
	cmd := exec.Command(action.Argv[0], action.Argv[1:]...) //nolint:gosec // argv is the build-graph's own declared command
	cmd.Dir = dir
	cmd.Env = buildEnv(action.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil && !action.MayFail {
		return fmt.Errorf("localexec: action %q failed: %w\n--- stdout ---\n%s\n--- stderr ---\n%s",
			action.ID, runErr, stdout.String(), stderr.String())
	}

	return nil
}

func (e *Executor) stageInputs(dir string, stage analysis.Stage) error {
	paths := make([]string, 0, len(stage))
	for p := range stage {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for _, p := range paths {
		if err := e.stageArtifact(dir, p, stage[p]); err != nil {
			return err
		}
	}

	return nil
}

func (e *Executor) stageArtifact(dir, path string, art analysis.Artifact) error {
	dest := filepath.Join(dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(dest), scratchDirPerm); err != nil {
		return fmt.Errorf("mkdir for %q: %w", path, err)
	}

	switch art.Kind {
	case analysis.ArtifactKnownTree:
		return e.store.ExpandTree(art.Digest, dest)
	case analysis.ArtifactActionOutput:
		r, ok := e.lookupOutput(art.ActionID, art.OutputPath)
		if !ok {
			return fmt.Errorf("output %s:%s not yet produced", art.ActionID, art.OutputPath)
		}

		if r.isDir {
			return e.store.ExpandTree(r.digest, dest)
		}

		return e.store.WriteBlob(dest, r.digest)
	default:
		return e.store.WriteBlob(dest, art.Digest)
	}
}

func (e *Executor) captureOutputs(dir, actionID string, action analysis.Action) error {
	for _, p := range action.OutputFiles {
		src := filepath.Join(dir, filepath.FromSlash(p))

		objType := digest.File
		if info, err := os.Stat(src); err == nil && info.Mode()&0o111 != 0 {
			objType = digest.Executable
		}

		d, err := e.store.StoreFile(src, objType, true)
		if err != nil {
			return fmt.Errorf("localexec: store output %q: %w", p, err)
		}

		e.recordOutput(actionID, p, resolved{digest: d})
	}

	for _, p := range action.OutputDirs {
		src := filepath.Join(dir, filepath.FromSlash(p))

		d, err := e.store.StoreDirectory(src)
		if err != nil {
			return fmt.Errorf("localexec: store output dir %q: %w", p, err)
		}

		e.recordOutput(actionID, p, resolved{digest: d, isDir: true})
	}

	return nil
}

func (e *Executor) recordOutput(actionID, path string, r resolved) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.outputs[actionID+"\x00"+path] = r
}

func (e *Executor) lookupOutput(actionID, path string) (resolved, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.outputs[actionID+"\x00"+path]

	return r, ok
}

// Resolved returns the digest and directory flag recorded for an action's
// output path once ProcessAction has produced it, for a caller (e.g.
// cmd/justbuild's install command) that needs to materialise a build's
// final artifacts after traversal completes.
func (e *Executor) Resolved(actionID, path string) (d digest.Digest, isDir bool, ok bool) {
	r, found := e.lookupOutput(actionID, path)

	return r.digest, r.isDir, found
}

func buildEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}

	return out
}
