// Package commands implements cmd/justbuild's cobra subcommands, wired
// against a shared App assembled from the repository configuration,
// grounded on cmd/codefang/commands' one-package-per-binary layout.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/asyncmap"
	"github.com/Sumatoshi-tech/codefang/pkg/buildconfig"
	"github.com/Sumatoshi-tech/codefang/pkg/cas"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
	"github.com/Sumatoshi-tech/codefang/pkg/gc"
	"github.com/Sumatoshi-tech/codefang/pkg/localexec"
	"github.com/Sumatoshi-tech/codefang/pkg/observability"
	"github.com/Sumatoshi-tech/codefang/pkg/resultmap"
	"github.com/Sumatoshi-tech/codefang/pkg/targetfile"
	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
)

const defaultTargetFileName = "TARGETS.yaml"

// Environment is the set of flags/settings every subcommand needs to
// assemble an App.
type Environment struct {
	WorkspaceRoot  string
	ConfigPath     string
	MainRepo       string
	Jobs           int
	CacheDir       string
	NumGenerations int
	LogLevel       string
	LogFormat      string
	OTLPEndpoint   string
}

// App bundles one invocation's fully wired dependency graph: the loaded
// repository configuration, the generational CAS, the result map, the
// scheduler pool, the analysis engine and its asyncmap, and the local
// action executor.
type App struct {
	Config   *buildconfig.Config
	MainName string
	MainRepo buildconfig.RepoEntry

	CAS     *gc.Collector
	Store   *cas.Store
	Results *resultmap.Map
	Pool    *tasksystem.Pool

	Engine   *analysis.Engine
	Targets  *asyncmap.Map[analysis.ConfiguredTarget, analysis.AnalysedTarget]
	Executor *localexec.Executor

	ScratchDir string
	Log        *slog.Logger

	shutdownObs func()
}

// NewApp loads env's repository configuration, opens the generational CAS
// under env.CacheDir, and wires the analysis engine, scheduler, result map,
// and local executor an invocation needs. The returned cleanup func must be
// called once the command is done (it closes the CAS lock file and flushes
// observability providers).
func NewApp(env Environment) (*App, func(), error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.OTLPEndpoint = env.OTLPEndpoint
	obsCfg.LogLevel = parseLogLevel(env.LogLevel)
	obsCfg.LogJSON = strings.EqualFold(env.LogFormat, "json")

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("justbuild: init observability: %w", err)
	}

	raw, err := os.ReadFile(env.ConfigPath)
	if err != nil {
		providers.Logger.Error("read repository configuration", "path", env.ConfigPath, "err", err)

		return nil, nil, fmt.Errorf("justbuild: read config %s: %w", env.ConfigPath, err)
	}

	cfg, err := buildconfig.Load(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("justbuild: load config: %w", err)
	}

	if env.MainRepo != "" {
		cfg.Main = env.MainRepo
	}

	mainName, repo, err := cfg.MainRepo()
	if err != nil {
		return nil, nil, err
	}

	if repo.TargetRoot.Kind != buildconfig.RootFilesystem {
		return nil, nil, fmt.Errorf(
			"justbuild: main repository %q has a %s target root; "+
				"only filesystem target roots are supported without first "+
				"resolving computed/git-tree roots via pkg/computedroot", mainName, rootKindName(repo.TargetRoot.Kind))
	}

	targetRoot := resolvePath(env.WorkspaceRoot, repo.TargetRoot.Path)

	fileName := repo.TargetFileName
	if fileName == "" {
		fileName = defaultTargetFileName
	}

	src := targetfile.NewSource(targetRoot, fileName)

	cacheDir := env.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(env.WorkspaceRoot, ".justbuild-cache")
	}

	numGen := env.NumGenerations
	if numGen < 1 {
		numGen = 1
	}

	collector, err := gc.Open(cacheDir, digest.Native, numGen)
	if err != nil {
		return nil, nil, fmt.Errorf("justbuild: open cache: %w", err)
	}

	scratchDir := filepath.Join(cacheDir, "scratch")
	if err := os.MkdirAll(scratchDir, 0o750); err != nil {
		collector.Close() //nolint:errcheck // best-effort on the error path

		return nil, nil, fmt.Errorf("justbuild: mkdir scratch: %w", err)
	}

	jobs := env.Jobs
	if jobs < 1 {
		jobs = 1
	}

	results := resultmap.New(jobs)
	pool := tasksystem.New(jobs)

	store := collector.Newest()

	engine := &analysis.Engine{
		Store:    store,
		Flavor:   digest.Native,
		Describe: src.Describer(),
		Cache:    results.Exported,
	}

	targets := asyncmap.New[analysis.ConfiguredTarget, analysis.AnalysedTarget](
		jobs, pool, func(ct analysis.ConfiguredTarget) string { return ct.Key() }, engine.Creator())

	executor := localexec.New(results, store, scratchDir)

	app := &App{
		Config:      cfg,
		MainName:    mainName,
		MainRepo:    repo,
		CAS:         collector,
		Store:       store,
		Results:     results,
		Pool:        pool,
		Engine:      engine,
		Targets:     targets,
		Executor:    executor,
		ScratchDir:  scratchDir,
		Log:         providers.Logger,
		shutdownObs: func() { _ = providers.Shutdown(context.Background()) },
	}

	cleanup := func() {
		pool.Shutdown()
		app.shutdownObs()
		collector.Close() //nolint:errcheck // best-effort at process exit
	}

	return app, cleanup, nil
}

// RequireTarget resolves and waits for a single ConfiguredTarget, recording
// it into Results (and, for export targets, into the export cache) exactly
// as pkg/computedroot.Resolver.resolveOne already does for the computed
// roots it resolves internally — result-map insertion is the caller's
// responsibility, not the analysis engine's.
func (a *App) RequireTarget(ct analysis.ConfiguredTarget) (analysis.AnalysedTarget, error) {
	var failed []analysis.ConfiguredTarget

	values := a.Targets.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(k analysis.ConfiguredTarget) {
		failed = append(failed, k)
	})

	if len(failed) > 0 {
		return analysis.AnalysedTarget{}, fmt.Errorf("justbuild: analysis failed for %s", ct.Name)
	}

	target := *values[0]

	a.Results.Insert(ct, target)
	a.recordExportCache(ct, target)

	return target, nil
}

// recordExportCache writes target into the export cache keyed by its inner
// target's Key when ct names an export rule, so a subsequent reference to
// the same inner target (at the same configuration) hits Engine.Cache
// instead of re-running analysis.
func (a *App) recordExportCache(ct analysis.ConfiguredTarget, target analysis.AnalysedTarget) {
	desc, err := a.Engine.Describe(ct.Name)
	if err != nil || desc.Name != analysis.RuleExport {
		return
	}

	inner := analysis.ConfiguredTarget{Name: desc.Inner, Config: ct.Config}
	a.Results.RecordExport(inner.Key(), target)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func rootKindName(k buildconfig.RootKind) string {
	switch k {
	case buildconfig.RootGitTree:
		return "git-tree"
	case buildconfig.RootComputed:
		return "computed"
	default:
		return "filesystem"
	}
}

func resolvePath(workspaceRoot, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workspaceRoot, path)
}
