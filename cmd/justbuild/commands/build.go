package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/buildgraph"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
	"github.com/Sumatoshi-tech/codefang/pkg/traverser"
)

// NewBuildCommand builds the "build" subcommand: analyse a target, then run
// every action its artifact stage transitively depends on.
func NewBuildCommand() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "build <target>",
		Short: "Analyse and build a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runBuild(f, args[0], false)
		},
	}

	f.bind(cmd)

	return cmd
}

// NewRebuildCommand builds the "rebuild" subcommand: identical to build but
// with the export cache disabled, forcing every export target to
// re-analyse from scratch.
func NewRebuildCommand() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "rebuild <target>",
		Short: "Build a target ignoring the export cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runBuild(f, args[0], true)
		},
	}

	f.bind(cmd)

	return cmd
}

func runBuild(f *commonFlags, targetArg string, noCache bool) error {
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

	if noCache {
		app.Engine.Cache = nil
	}

	for _, name := range names {
		if err := buildOne(app, name); err != nil {
			return err
		}
	}

	return nil
}

// buildOne analyses name, builds its traverser graph, runs every action the
// graph names, and prints the resolved digest of each requested root.
func buildOne(app *App, name expr.Name) error {
	target, err := app.RequireTarget(analysis.ConfiguredTarget{Name: name, Config: expr.Empty})
	if err != nil {
		return err
	}

	graph, rootIDs, err := buildgraph.New(app.Results).Build(target)
	if err != nil {
		return fmt.Errorf("justbuild: assemble build graph for %s: %w", name, err)
	}

	tr := traverser.New(graph, app.Pool, app.Executor)

	if err := tr.RequestArtifacts(rootIDs); err != nil {
		return fmt.Errorf("justbuild: build %s: %w", name, err)
	}

	fmt.Fprintf(os.Stdout, "%s: built %d root artifact(s)\n", name, len(rootIDs))

	paths := make([]string, 0, len(target.Result.ArtifactStage))
	for path := range target.Result.ArtifactStage {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	for _, path := range paths {
		printResolvedArtifact(app, name, path, target.Result.ArtifactStage[path])
	}

	return nil
}

// printResolvedArtifact prints path's resolved digest: a known blob/tree's
// own digest, or the digest localexec.Executor recorded for an
// action-output once the traversal above has run its producing action.
func printResolvedArtifact(app *App, name expr.Name, path string, art analysis.Artifact) {
	if art.Kind != analysis.ArtifactActionOutput {
		fmt.Fprintf(os.Stdout, "  %s %s -> %s\n", name, path, art.Digest.Hash)

		return
	}

	d, isDir, ok := app.Executor.Resolved(art.ActionID, art.OutputPath)
	if !ok {
		fmt.Fprintf(os.Stdout, "  %s %s -> (not produced)\n", name, path)

		return
	}

	kind := "file"
	if isDir {
		kind = "dir"
	}

	fmt.Fprintf(os.Stdout, "  %s %s -> %s (%s)\n", name, path, d.Hash, kind)
}
