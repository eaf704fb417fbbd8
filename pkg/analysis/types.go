// Package analysis implements the target analysis engine:
// dispatch over built-in rules, the effective-variable-domain
// invariant, and staging/tree-conflict detection, realised as the
// value-creator of an asyncmap.Map keyed by ConfiguredTarget. There is no
// single existing analogue for a build-rule engine; the staging/merge logic
// is grounded on pkg/gitlib.tree.go's entry-merging for tree construction,
// and the dispatch-by-declared-"type"-field shape follows
// pkg/config repository-configuration loader (pkg/config/schema.go), which
// keys behaviour off a discriminator field the same way.
package analysis

import (
	"sort"

	"github.com/Sumatoshi-tech/codefang/pkg/digest"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
)

// ArtifactKind distinguishes a staged artifact's origin.
type ArtifactKind int

const (
	// ArtifactKnownBlob is a blob already resident in the CAS.
	ArtifactKnownBlob ArtifactKind = iota
	// ArtifactKnownTree is a tree already resident in the CAS.
	ArtifactKnownTree
	// ArtifactActionOutput names a logical output path of a not-yet-run action.
	ArtifactActionOutput
)

// Artifact is a staged file or tree reference.
type Artifact struct {
	Kind       ArtifactKind
	Digest     digest.Digest   // valid for ArtifactKnownBlob/ArtifactKnownTree
	ObjectType digest.ObjectType
	ActionID   string // valid for ArtifactActionOutput
	OutputPath string // valid for ArtifactActionOutput
}

// ToRef converts a to the pkg/expr-visible ArtifactRef shape consulted by
// the "outs"/"runfiles" host functions.
func (a Artifact) ToRef() expr.ArtifactRef {
	return expr.ArtifactRef{Hash: a.Digest.Hash, IsTree: a.Kind == ArtifactKnownTree}
}

// Stage is a logical-path -> Artifact mapping, the common shape of an
// analysed target's artifact_stage and runfiles.
type Stage map[string]Artifact

// Action is the immutable record of a content-addressed
// command invocation with declared inputs/outputs.
type Action struct {
	ID                 string
	Argv               []string
	Env                map[string]string
	Inputs             Stage
	OutputFiles        []string
	OutputDirs         []string
	MayFail            bool
	NoCache            bool
	TimeoutScale       float64
	ExecutionProperties map[string]string
}

// Result is the output of analysing one ConfiguredTarget.
type Result struct {
	ArtifactStage Stage
	Runfiles      Stage
	Provides      expr.Value
}

// ToExprResult converts r to the pkg/expr-visible shape handed to the
// "outs"/"runfiles" built-ins and to sibling-target evaluation.
func (r Result) ToExprResult() expr.Result {
	return expr.Result{
		Artifacts: stageToRefs(r.ArtifactStage),
		Runfiles:  stageToRefs(r.Runfiles),
		Provides:  r.Provides,
	}
}

func stageToRefs(s Stage) map[string]expr.ArtifactRef {
	out := make(map[string]expr.ArtifactRef, len(s))
	for path, a := range s {
		out[path] = a.ToRef()
	}

	return out
}

// AnalysedTarget is the full per-ConfiguredTarget record.
type AnalysedTarget struct {
	Result  Result
	Actions []Action
	Blobs   []digest.Digest
	Trees   []digest.Digest
	Vars    map[string]struct{}
	Tainted map[string]struct{}
}

// SortedVars returns the effective variable domain in sorted order, the
// form callers consult to build Configuration.Prune's argument.
func (t AnalysedTarget) SortedVars() []string {
	out := make([]string, 0, len(t.Vars))
	for v := range t.Vars {
		out = append(out, v)
	}

	sort.Strings(out)

	return out
}

// ConfiguredTarget is the primary analysis cache key: an entity name paired
// with a configuration.
type ConfiguredTarget struct {
	Name   expr.Name
	Config expr.Configuration
}

// Key renders a stable string uniquely identifying ct, used both as the
// asyncmap key and as the ResultTargetMap shard/dedup key.
func (ct ConfiguredTarget) Key() string {
	return ct.Name.String() + "#" + ct.Config.Key()
}
