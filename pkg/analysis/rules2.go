package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/codefang/pkg/asyncmap"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
)

// analyseGeneric implements the generic rule.
func (e *Engine) analyseGeneric(
	setter asyncmap.Setter[AnalysedTarget],
	logger asyncmap.Logger,
	subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
	ct ConfiguredTarget,
	desc TargetDescription,
) {
	outs := dedupeSorted(desc.Outs)
	outDirs := dedupeSorted(desc.OutDirs)

	if len(outs) == 0 && len(outDirs) == 0 {
		logger("generic: at least one of outs/out_dirs must be non-empty", true)

		return
	}

	if err := disjoint(outs, outDirs); err != nil {
		logger(fmt.Sprintf("generic: %v", err), true)

		return
	}

	requestDeps(subcaller, desc.Deps, ct.Config, logger, func(deps []AnalysedTarget) {
		inputs := Stage{}

		for _, d := range deps {
			if err := mergeStage(inputs, d.Result.Runfiles, true); err != nil {
				logger(err.Error(), true)

				return
			}
		}

		for _, d := range deps {
			if err := mergeStage(inputs, d.Result.ArtifactStage, true); err != nil {
				logger(err.Error(), true)

				return
			}
		}

		shVal := desc.ShellVal
		if len(shVal) == 0 {
			shVal = []string{"sh", "-c"}
		}

		argv := append(append([]string{}, shVal...), strings.Join(desc.Cmds, "\n"))

		action := Action{
			Argv:                argv,
			Env:                 desc.Env,
			Inputs:              inputs,
			OutputFiles:         outs,
			OutputDirs:          outDirs,
			TimeoutScale:        desc.TimeoutScale,
			ExecutionProperties: desc.ExecutionProperties,
		}
		action.ID = actionID(e.Flavor, action)

		stage := Stage{}
		for _, path := range outs {
			stage[path] = Artifact{Kind: ArtifactActionOutput, ActionID: action.ID, OutputPath: path}
		}

		for _, path := range outDirs {
			stage[path] = Artifact{Kind: ArtifactActionOutput, ActionID: action.ID, OutputPath: path}
		}

		vars := unionVars(desc.ArgumentsConfig, deps)
		own := unionTainted(desc.Tainted, deps)

		setter(AnalysedTarget{
			Result:  Result{ArtifactStage: stage, Runfiles: stage, Provides: expr.Null},
			Actions: []Action{action},
			Vars:    vars,
			Tainted: own,
		})
	})
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))

	out := make([]string, 0, len(in))

	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}

		out = append(out, s)
	}

	sort.Strings(out)

	return out
}

func disjoint(a, b []string) error {
	inA := make(map[string]struct{}, len(a))
	for _, s := range a {
		inA[s] = struct{}{}
	}

	for _, s := range b {
		if _, ok := inA[s]; ok {
			return fmt.Errorf("outs and out_dirs are not disjoint: %q appears in both", s)
		}
	}

	return nil
}

func actionID(flavor digest.HashFlavor, a Action) string {
	var buf strings.Builder

	buf.WriteString(strings.Join(a.Argv, "\x00"))
	buf.WriteByte('\x1f')

	envKeys := make([]string, 0, len(a.Env))
	for k := range a.Env {
		envKeys = append(envKeys, k)
	}

	sort.Strings(envKeys)

	for _, k := range envKeys {
		fmt.Fprintf(&buf, "%s=%s\x00", k, a.Env[k])
	}

	buf.WriteByte('\x1f')
	buf.WriteString(strings.Join(a.OutputFiles, "\x00"))
	buf.WriteByte('\x1f')
	buf.WriteString(strings.Join(a.OutputDirs, "\x00"))

	return digest.Of(flavor, []byte(buf.String()), false).Hash
}

// analyseConfigure implements the configure rule.
func (e *Engine) analyseConfigure(
	setter asyncmap.Setter[AnalysedTarget],
	logger asyncmap.Logger,
	subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
	ct ConfiguredTarget,
	desc TargetDescription,
) {
	transitioned := ct.Config.Update(desc.ConfigureConfig)

	key := ConfiguredTarget{Name: desc.ConfigureTarget, Config: transitioned}

	subcaller([]ConfiguredTarget{key}, func(values []*AnalysedTarget) {
		dep := *values[0]

		fixed := make(map[string]struct{}, len(desc.ConfigureConfig))
		for k := range desc.ConfigureConfig {
			fixed[k] = struct{}{}
		}

		vars := make(map[string]struct{}, len(dep.Vars))
		for v := range dep.Vars {
			if _, ok := fixed[v]; ok {
				continue
			}

			vars[v] = struct{}{}
		}

		setter(AnalysedTarget{
			Result:  dep.Result,
			Actions: dep.Actions,
			Blobs:   dep.Blobs,
			Trees:   dep.Trees,
			Vars:    vars,
			Tainted: dep.Tainted,
		})
	}, logger)
}

// analyseExport implements the export rule.
func (e *Engine) analyseExport(
	_ *tasksystem.Pool,
	setter asyncmap.Setter[AnalysedTarget],
	logger asyncmap.Logger,
	subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
	ct ConfiguredTarget,
	desc TargetDescription,
) {
	inner := ConfiguredTarget{Name: desc.Inner, Config: ct.Config}

	if e.Cache != nil {
		if cached, ok := e.Cache(inner.Key()); ok {
			setter(cached)

			return
		}
	}

	subcaller([]ConfiguredTarget{inner}, func(values []*AnalysedTarget) {
		setter(*values[0])
	}, logger)
}
