package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/cmd/justbuild/internal/cliconfig"
)

// commonFlags are the flags every subcommand accepts to assemble an App.
type commonFlags struct {
	workspaceRoot string
	configPath    string
	mainRepo      string
	jobs          int
}

func (f *commonFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.workspaceRoot, "workspace-root", ".", "workspace root directory")
	cmd.Flags().StringVar(&f.configPath, "config", "", "repository configuration file (required)")
	cmd.Flags().StringVar(&f.mainRepo, "main", "", "main repository name (default: configured main, or first alphabetically)")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "worker job count (default: JUSTBUILD_JOBS or 4)")
}

// environment resolves f against JUSTBUILD_* environment defaults, failing
// with a UsageError if --config was not supplied.
func (f *commonFlags) environment() (Environment, error) {
	if f.configPath == "" {
		return Environment{}, NewUsageError("--config is required")
	}

	settings := cliconfig.Load()

	jobs := f.jobs
	if jobs < 1 {
		jobs = settings.Jobs
	}

	return Environment{
		WorkspaceRoot:  f.workspaceRoot,
		ConfigPath:     f.configPath,
		MainRepo:       f.mainRepo,
		Jobs:           jobs,
		CacheDir:       settings.CacheDir,
		NumGenerations: settings.NumGenerations,
		LogLevel:       settings.LogLevel,
		LogFormat:      settings.LogFormat,
		OTLPEndpoint:   settings.OTLPEndpoint,
	}, nil
}
