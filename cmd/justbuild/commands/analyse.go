package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
)

// NewAnalyseCommand builds the "analyse" subcommand: resolve a target's
// description and dependencies without running any of its actions.
func NewAnalyseCommand() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "analyse <target>",
		Short: "Analyse a target without building it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAnalyse(f, args[0])
		},
	}

	f.bind(cmd)

	return cmd
}

func runAnalyse(f *commonFlags, targetArg string) error {
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
		target, reqErr := app.RequireTarget(analysis.ConfiguredTarget{Name: name, Config: expr.Empty})
		if reqErr != nil {
			return reqErr
		}

		renderAnalysedTarget(os.Stdout, name.String(), target)
	}

	return nil
}
