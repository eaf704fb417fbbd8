// Package buildgraph converts one export target's analysed result into the
// artifact/action dependency graph pkg/traverser schedules: it resolves
// every ArtifactActionOutput reference transitively through
// pkg/resultmap.ActionByID (an analysed target only records the single
// action it directly produced; its declared inputs may reference actions
// that belong to other, already-analysed targets), assigning traverser node
// ids deterministically from digests and action ids so identical subgraphs
// collapse across independent builds.
package buildgraph

import (
	"fmt"
	"sort"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/resultmap"
	"github.com/Sumatoshi-tech/codefang/pkg/traverser"
)

// Builder assembles a traverser.Graph from analysed targets, looking up
// actions a target's Stage references by id via results.
type Builder struct {
	results *resultmap.Map
}

// New constructs a Builder over results.
func New(results *resultmap.Map) *Builder {
	return &Builder{results: results}
}

// Build returns the traverser.Graph reachable from target's artifact stage,
// plus the graph-level artifact ids of that stage's own entries (the roots
// a caller should request via Traverser.RequestArtifacts).
func (b *Builder) Build(target analysis.AnalysedTarget) (*traverser.Graph, []string, error) {
	w := &walker{
		results:   b.results,
		artifacts: map[string]traverser.Artifact{},
		actions:   map[string]traverser.Action{},
		visited:   map[string]bool{},
	}

	rootIDs, err := w.addStage(target.Result.ArtifactStage)
	if err != nil {
		return nil, nil, err
	}

	return traverser.NewGraph(w.artifactSlice(), w.actionSlice()), rootIDs, nil
}

type walker struct {
	results   *resultmap.Map
	artifacts map[string]traverser.Artifact
	actions   map[string]traverser.Action
	visited   map[string]bool
}

// ArtifactID renders the graph-level id for a staged artifact: a
// content-addressed id for already-resolved blobs/trees, or an
// action-output id for one not yet produced.
func ArtifactID(a analysis.Artifact) string {
	switch a.Kind {
	case analysis.ArtifactActionOutput:
		return "out:" + a.ActionID + ":" + a.OutputPath
	default:
		return "digest:" + a.Digest.Hash
	}
}

func (w *walker) addStage(stage analysis.Stage) ([]string, error) {
	paths := make([]string, 0, len(stage))
	for p := range stage {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	ids := make([]string, 0, len(paths))

	for _, p := range paths {
		id, err := w.addArtifact(stage[p])
		if err != nil {
			return nil, fmt.Errorf("buildgraph: staging %q: %w", p, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func (w *walker) addArtifact(a analysis.Artifact) (string, error) {
	id := ArtifactID(a)

	if a.Kind != analysis.ArtifactActionOutput {
		if _, ok := w.artifacts[id]; !ok {
			w.artifacts[id] = traverser.Artifact{ID: id}
		}

		return id, nil
	}

	if err := w.addAction(a.ActionID); err != nil {
		return "", err
	}

	return id, nil
}

func (w *walker) addAction(actionID string) error {
	if w.visited[actionID] {
		return nil
	}

	w.visited[actionID] = true

	action, ok := w.results.ActionByID(actionID)
	if !ok {
		return fmt.Errorf("buildgraph: unknown action %q (run the producing target's analysis first)", actionID)
	}

	inputIDs, err := w.addStage(action.Inputs)
	if err != nil {
		return err
	}

	outputIDs := make([]string, 0, len(action.OutputFiles)+len(action.OutputDirs))

	for _, p := range action.OutputFiles {
		outputIDs = append(outputIDs, "out:"+actionID+":"+p)
	}

	for _, p := range action.OutputDirs {
		outputIDs = append(outputIDs, "out:"+actionID+":"+p)
	}

	w.actions[actionID] = traverser.Action{ID: actionID, Inputs: inputIDs, Outputs: outputIDs}

	for _, oid := range outputIDs {
		w.artifacts[oid] = traverser.Artifact{ID: oid, Producer: actionID}
	}

	return nil
}

func (w *walker) artifactSlice() []traverser.Artifact {
	out := make([]traverser.Artifact, 0, len(w.artifacts))
	for _, a := range w.artifacts {
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (w *walker) actionSlice() []traverser.Action {
	out := make([]traverser.Action, 0, len(w.actions))
	for _, a := range w.actions {
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
