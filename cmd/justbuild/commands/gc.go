package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewGCCommand builds the "gc" subcommand: rotate the generational cache,
// retiring the oldest generation and freeing the space it held.
func NewGCCommand() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Rotate the generational cache",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runGC(f)
		},
	}

	f.bind(cmd)

	return cmd
}

func runGC(f *commonFlags) error {
	env, err := f.environment()
	if err != nil {
		return err
	}

	app, cleanup, err := NewApp(env)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.CAS.Trigger(); err != nil {
		return fmt.Errorf("justbuild: gc: %w", err)
	}

	fmt.Fprintln(os.Stdout, "justbuild: garbage collection complete")

	return nil
}
