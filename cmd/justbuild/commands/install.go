package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/buildgraph"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
	"github.com/Sumatoshi-tech/codefang/pkg/traverser"
)

// NewInstallCommand builds the "install" subcommand: build a target, then
// materialise every one of its staged artifacts under a destination
// directory on disk.
func NewInstallCommand() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "install <target> <destdir>",
		Short: "Build a target and materialise its artifacts on disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runInstall(f, args[0], args[1])
		},
	}

	f.bind(cmd)

	return cmd
}

func runInstall(f *commonFlags, targetArg, destDir string) error {
	names, err := ParseTargetArg(targetArg)
	if err != nil {
		return err
	}

	if len(names) != 1 {
		return NewUsageError("install takes exactly one target, got a list of %d", len(names))
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

	name := names[0]

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

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("justbuild: mkdir %s: %w", destDir, err)
	}

	for path, art := range target.Result.ArtifactStage {
		if err := installArtifact(app, destDir, path, art); err != nil {
			return fmt.Errorf("justbuild: install %q: %w", path, err)
		}
	}

	fmt.Fprintf(os.Stdout, "%s: installed %d artifact(s) under %s\n", name, len(target.Result.ArtifactStage), destDir)

	return nil
}

// installArtifact materialises one staged path under destDir, resolving an
// action-output artifact's digest via the executor (the traversal above
// must already have run its producing action) the same way buildOne's
// printResolvedArtifact reads it.
func installArtifact(app *App, destDir, path string, art analysis.Artifact) error {
	dest := filepath.Join(destDir, filepath.FromSlash(path))

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}

	switch art.Kind {
	case analysis.ArtifactKnownTree:
		return app.Store.ExpandTree(art.Digest, dest)
	case analysis.ArtifactActionOutput:
		d, isDir, ok := app.Executor.Resolved(art.ActionID, art.OutputPath)
		if !ok {
			return fmt.Errorf("output %s not produced (graph id %s)", path, buildgraph.ArtifactID(art))
		}

		if isDir {
			return app.Store.ExpandTree(d, dest)
		}

		return app.Store.WriteBlob(dest, d)
	default:
		return app.Store.WriteBlob(dest, art.Digest)
	}
}
