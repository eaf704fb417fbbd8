package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
)

// NewDescribeCommand builds the "describe" subcommand: print a target's rule
// description (type, dependencies, declared outputs) without analysing it.
func NewDescribeCommand() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "describe <target>",
		Short: "Print a target's rule description",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runDescribe(f, args[0])
		},
	}

	f.bind(cmd)

	return cmd
}

func runDescribe(f *commonFlags, targetArg string) error {
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
		desc, err := app.Engine.Describe(name)
		if err != nil {
			return fmt.Errorf("justbuild: describe %s: %w", name, err)
		}

		printDescription(os.Stdout, name.String(), desc)
	}

	return nil
}

func printDescription(w *os.File, name string, desc analysis.TargetDescription) {
	fmt.Fprintf(w, "%s: %s\n", name, desc.Name)

	deps := make([]string, 0, len(desc.Deps))
	for _, d := range desc.Deps {
		deps = append(deps, d.String())
	}

	sort.Strings(deps)

	for _, d := range deps {
		fmt.Fprintf(w, "  dep %s\n", d)
	}

	switch desc.Name {
	case analysis.RuleGeneric:
		outs := append(append([]string{}, desc.Outs...), desc.OutDirs...)
		sort.Strings(outs)

		for _, o := range outs {
			fmt.Fprintf(w, "  out %s\n", o)
		}
	case analysis.RuleInstall:
		files := make([]string, 0, len(desc.Files))
		for p := range desc.Files {
			files = append(files, p)
		}

		sort.Strings(files)

		for _, p := range files {
			fmt.Fprintf(w, "  file %s -> %s\n", p, desc.Files[p])
		}

		dirs := append([]analysis.DirEntry{}, desc.Dirs...)
		sort.Slice(dirs, func(i, j int) bool { return dirs[i].Path < dirs[j].Path })

		for _, d := range dirs {
			fmt.Fprintf(w, "  dir %s -> %s\n", d.Path, d.Target)
		}
	case analysis.RuleExport:
		fmt.Fprintf(w, "  inner %s\n", desc.Inner)
	case analysis.RuleConfigure:
		fmt.Fprintf(w, "  configure %s\n", desc.ConfigureTarget)
	}
}
