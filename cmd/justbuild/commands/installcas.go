package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

// NewInstallCASCommand builds the "install-cas" subcommand: store a local
// file or directory into the content-addressed store and print its digest.
func NewInstallCASCommand() *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "install-cas <path>",
		Short: "Store a local file or directory in the CAS",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runInstallCAS(f, args[0])
		},
	}

	f.bind(cmd)

	return cmd
}

func runInstallCAS(f *commonFlags, path string) error {
	env, err := f.environment()
	if err != nil {
		return err
	}

	app, cleanup, err := NewApp(env)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("justbuild: stat %s: %w", path, err)
	}

	if info.IsDir() {
		d, err := app.Store.StoreDirectory(path)
		if err != nil {
			return fmt.Errorf("justbuild: store directory %s: %w", path, err)
		}

		fmt.Fprintf(os.Stdout, "%s tree %s\n", d.Hash, path)

		return nil
	}

	objType := digest.File
	if info.Mode()&0o111 != 0 {
		objType = digest.Executable
	}

	d, err := app.Store.StoreFile(path, objType, false)
	if err != nil {
		return fmt.Errorf("justbuild: store file %s: %w", path, err)
	}

	fmt.Fprintf(os.Stdout, "%s %s %s\n", d.Hash, objType, path)

	return nil
}
