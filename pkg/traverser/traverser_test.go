package traverser_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
	"github.com/Sumatoshi-tech/codefang/pkg/traverser"
)

type recordingExecutor struct {
	mu             sync.Mutex
	processedActs  []string
	processedArts  []string
	failAction     string
}

func (e *recordingExecutor) ProcessAction(a traverser.Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a.ID == e.failAction {
		return errors.New("boom")
	}

	e.processedActs = append(e.processedActs, a.ID)

	return nil
}

func (e *recordingExecutor) ProcessArtifact(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.processedArts = append(e.processedArts, id)

	return nil
}

func (e *recordingExecutor) actionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.processedActs)
}

func TestTraverserProcessesSourceArtifactThenAction(t *testing.T) {
	t.Parallel()

	graph := traverser.NewGraph(
		[]traverser.Artifact{
			{ID: "src"},
			{ID: "out", Producer: "build"},
		},
		[]traverser.Action{
			{ID: "build", Inputs: []string{"src"}, Outputs: []string{"out"}},
		},
	)

	exec := &recordingExecutor{}
	ts := tasksystem.New(4)
	defer ts.Shutdown()

	tr := traverser.New(graph, ts, exec)

	err := tr.RequestArtifacts([]string{"out"})
	require.NoError(t, err)

	assert.Equal(t, []string{"src"}, exec.processedArts)
	assert.Equal(t, 1, exec.actionCount())
}

func TestTraverserExecutesSharedActionOnce(t *testing.T) {
	t.Parallel()

	graph := traverser.NewGraph(
		[]traverser.Artifact{
			{ID: "out1", Producer: "build"},
			{ID: "out2", Producer: "build"},
		},
		[]traverser.Action{
			{ID: "build", Outputs: []string{"out1", "out2"}},
		},
	)

	exec := &recordingExecutor{}
	ts := tasksystem.New(4)
	defer ts.Shutdown()

	tr := traverser.New(graph, ts, exec)

	err := tr.RequestArtifacts([]string{"out1", "out2"})
	require.NoError(t, err)

	assert.Equal(t, 1, exec.actionCount())
}

func TestTraverserAbortsOnProcessingFailure(t *testing.T) {
	t.Parallel()

	graph := traverser.NewGraph(
		[]traverser.Artifact{
			{ID: "out", Producer: "build"},
		},
		[]traverser.Action{
			{ID: "build", Outputs: []string{"out"}},
		},
	)

	exec := &recordingExecutor{failAction: "build"}
	ts := tasksystem.New(2)
	defer ts.Shutdown()

	tr := traverser.New(graph, ts, exec)

	err := tr.RequestArtifacts([]string{"out"})
	require.ErrorIs(t, err, traverser.ErrAborted)
	assert.True(t, tr.Aborted())
}

func TestTraverserFanOutIsParallelSafe(t *testing.T) {
	t.Parallel()

	const n = 50

	artifacts := make([]traverser.Artifact, 0, n*2)
	actions := make([]traverser.Action, 0, n)
	targets := make([]string, 0, n)

	for i := 0; i < n; i++ {
		srcID := "src" + string(rune('A'+i%26)) + string(rune('0'+i/26))
		outID := "out" + string(rune('A'+i%26)) + string(rune('0'+i/26))
		actID := "act" + string(rune('A'+i%26)) + string(rune('0'+i/26))

		artifacts = append(artifacts, traverser.Artifact{ID: srcID}, traverser.Artifact{ID: outID, Producer: actID})
		actions = append(actions, traverser.Action{ID: actID, Inputs: []string{srcID}, Outputs: []string{outID}})
		targets = append(targets, outID)
	}

	graph := traverser.NewGraph(artifacts, actions)

	var processed atomic.Int64

	exec := &countingExecutor{count: &processed}
	ts := tasksystem.New(8)
	defer ts.Shutdown()

	tr := traverser.New(graph, ts, exec)

	err := tr.RequestArtifacts(targets)
	require.NoError(t, err)
	assert.Equal(t, int64(n), processed.Load())
}

type countingExecutor struct {
	count *atomic.Int64
}

func (c *countingExecutor) ProcessAction(traverser.Action) error {
	c.count.Add(1)

	return nil
}

func (c *countingExecutor) ProcessArtifact(string) error { return nil }
