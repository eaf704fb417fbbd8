// Package traverser implements the dependency DAG traverser:
// a build scheduler over an artifact/action graph that marks
// nodes required on demand, enforces single-visit and single-process per
// node via atomics, and wakes parent actions in parallel as their last
// pending input lands. It is grounded on pkg/toposort/intgraph.go's
// in-degree bookkeeping (graph.go's reverse-dependency index mirrors
// IntGraph's adjacency/in-degree maps), turned from a one-shot topological
// sort into a live scheduler driven by pkg/tasksystem.
package traverser

import (
	"errors"
	"sync/atomic"

	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
)

// ErrAborted is returned by RequestArtifacts once any node's processing has
// failed and the traverser-level abort flag is set.
var ErrAborted = errors.New("traverser: aborted")

// Artifact is a graph leaf: either already available (a resolved blob/tree)
// or produced by exactly one Action.
type Artifact struct {
	ID       string
	Producer string // Action.ID, empty if Artifact is already available
}

// Action is a graph node with declared inputs and outputs. An action with
// multiple outputs is executed exactly once, however many of its outputs
// are visited.
type Action struct {
	ID      string
	Inputs  []string // Artifact IDs
	Outputs []string // Artifact IDs
}

// Executor is the capability set the traverser drives: process an action,
// or process an artifact.
type Executor interface {
	ProcessAction(a Action) error
	// ProcessArtifact uploads an artifact that has no producing action
	// (e.g. a source file staged directly).
	ProcessArtifact(id string) error
}

type artifactNode struct {
	artifact    Artifact
	visited     atomic.Bool
	available   atomic.Bool
	consumers   []string // Action IDs depending on this artifact
}

type actionNode struct {
	action    Action
	visited   atomic.Bool
	processed atomic.Bool
	pending   atomic.Int32
}

// Graph is the artifact/action dependency graph.
type Graph struct {
	artifacts map[string]*artifactNode
	actions   map[string]*actionNode
}

// NewGraph builds a Graph from artifacts and actions. Every Artifact with a
// non-empty Producer must name an Action present in actions.
func NewGraph(artifacts []Artifact, actions []Action) *Graph {
	g := &Graph{
		artifacts: make(map[string]*artifactNode, len(artifacts)),
		actions:   make(map[string]*actionNode, len(actions)),
	}

	for _, a := range artifacts {
		g.artifacts[a.ID] = &artifactNode{artifact: a}
	}

	for _, act := range actions {
		node := &actionNode{action: act}
		node.pending.Store(int32(len(act.Inputs)))
		g.actions[act.ID] = node
	}

	for _, act := range actions {
		for _, inputID := range act.Inputs {
			if in, ok := g.artifacts[inputID]; ok {
				in.consumers = append(in.consumers, act.ID)
			}
		}
	}

	return g
}

// Traverser drives Graph to completion against an Executor, scheduling
// work on a shared tasksystem.Pool.
type Traverser struct {
	graph    *Graph
	ts       *tasksystem.Pool
	executor Executor
	aborted  atomic.Bool
}

// New constructs a Traverser over graph, dispatching processing work onto
// ts and executor.
func New(graph *Graph, ts *tasksystem.Pool, executor Executor) *Traverser {
	return &Traverser{graph: graph, ts: ts, executor: executor}
}

// RequestArtifacts marks every named artifact required and queues its
// visit, then blocks until the pool has drained all
// resulting work.
func (t *Traverser) RequestArtifacts(ids []string) error {
	for _, id := range ids {
		id := id
		t.ts.QueueTask(func() { t.visitArtifact(id) })
	}

	t.ts.Finish()

	if t.aborted.Load() {
		return ErrAborted
	}

	return nil
}

func (t *Traverser) visitArtifact(id string) {
	if t.aborted.Load() {
		return
	}

	node, ok := t.graph.artifacts[id]
	if !ok {
		t.abort()

		return
	}

	if !node.visited.CompareAndSwap(false, true) {
		return
	}

	if node.available.Load() {
		return
	}

	if node.artifact.Producer != "" {
		t.visitAction(node.artifact.Producer)

		return
	}

	t.ts.QueueTask(func() { t.processArtifact(id) })
}

func (t *Traverser) visitAction(id string) {
	if t.aborted.Load() {
		return
	}

	action, ok := t.graph.actions[id]
	if !ok {
		t.abort()

		return
	}

	if !action.visited.CompareAndSwap(false, true) {
		return
	}

	if len(action.action.Inputs) == 0 {
		t.ts.QueueTask(func() { t.processAction(id) })

		return
	}

	for _, inputID := range action.action.Inputs {
		in := t.graph.artifacts[inputID]
		if in != nil && in.available.Load() {
			t.wakeIfReady(id)

			continue
		}

		inputID := inputID
		t.ts.QueueTask(func() { t.visitArtifact(inputID) })
	}
}

// wakeIfReady decrements the pending-input counter of action id by one
// already-available input and queues its processing once the counter
// reaches zero, waking the parent action whose last dependency just landed.
func (t *Traverser) wakeIfReady(id string) {
	action := t.graph.actions[id]
	if action == nil {
		return
	}

	if action.pending.Add(-1) == 0 {
		t.ts.QueueTask(func() { t.processAction(id) })
	}
}

func (t *Traverser) processArtifact(id string) {
	if t.aborted.Load() {
		return
	}

	if err := t.executor.ProcessArtifact(id); err != nil {
		t.abort()

		return
	}

	t.markAvailable(id)
}

func (t *Traverser) processAction(id string) {
	if t.aborted.Load() {
		return
	}

	action := t.graph.actions[id]
	if action == nil {
		t.abort()

		return
	}

	if !action.processed.CompareAndSwap(false, true) {
		return
	}

	if err := t.executor.ProcessAction(action.action); err != nil {
		t.abort()

		return
	}

	for _, outputID := range action.action.Outputs {
		t.markAvailable(outputID)
	}
}

func (t *Traverser) markAvailable(id string) {
	node, ok := t.graph.artifacts[id]
	if !ok {
		return
	}

	node.available.Store(true)

	for _, consumerID := range node.consumers {
		consumerID := consumerID
		t.ts.QueueTask(func() { t.wakeIfReady(consumerID) })
	}
}

func (t *Traverser) abort() {
	t.aborted.Store(true)
}

// Aborted reports whether this traverser has set its abort flag.
func (t *Traverser) Aborted() bool {
	return t.aborted.Load()
}
