package commands

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/buildgraph"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
	"github.com/Sumatoshi-tech/codefang/pkg/traverser"
)

// NewTraverseCommand builds the "traverse" subcommand: assemble a target's
// build graph, drive the traverser over it without running anything, and
// print the ids of the actions it scheduled, sorted lexicographically.
func NewTraverseCommand() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "traverse <target>",
		Short: "List the actions a target's build would run, without building it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runTraverse(f, args[0])
		},
	}

	f.bind(cmd)

	return cmd
}

func runTraverse(f *commonFlags, targetArg string) error {
	names, err := ParseTargetArg(targetArg)
	if err != nil {
		return err
	}

	env, err := f.environment()
	if err != nil {
		return err
	}

	app, cleanup, err := NewApp(env)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, name := range names {
		if err := traverseOne(app, name); err != nil {
			return err
		}
	}

	return nil
}

func traverseOne(app *App, name expr.Name) error {
	target, err := app.RequireTarget(analysis.ConfiguredTarget{Name: name, Config: expr.Empty})
	if err != nil {
		return err
	}

	graph, rootIDs, err := buildgraph.New(app.Results).Build(target)
	if err != nil {
		return fmt.Errorf("justbuild: assemble build graph for %s: %w", name, err)
	}

	rec := newOrderRecorder()

	tr := traverser.New(graph, app.Pool, rec)

	if err := tr.RequestArtifacts(rootIDs); err != nil {
		return fmt.Errorf("justbuild: traverse %s: %w", name, err)
	}

	actions := rec.sortedActions()

	fmt.Fprintf(os.Stdout, "%s: %d root artifact(s), %d action(s)\n", name, len(rootIDs), len(actions))

	for i, id := range actions {
		fmt.Fprintf(os.Stdout, "  %d. %s\n", i+1, id)
	}

	return nil
}

// orderRecorder is a traverser.Executor that performs no work: it only
// records the order in which the traverser schedules actions and
// source artifacts, so "traverse" can report it without running anything.
type orderRecorder struct {
	mu        sync.Mutex
	actions   []string
	artifacts []string
}

func newOrderRecorder() *orderRecorder {
	return &orderRecorder{}
}

func (r *orderRecorder) ProcessAction(a traverser.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions = append(r.actions, a.ID)

	return nil
}

func (r *orderRecorder) ProcessArtifact(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.artifacts = append(r.artifacts, id)

	return nil
}

// sortedActions returns the recorded action ids in a stable order: the
// traverser schedules independent actions concurrently, so the raw
// recording order is not reproducible across runs.
func (r *orderRecorder) sortedActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.actions))
	copy(out, r.actions)
	sort.Strings(out)

	return out
}
