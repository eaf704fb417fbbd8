package analysis

import (
	"fmt"
	"sort"

	"github.com/Sumatoshi-tech/codefang/pkg/asyncmap"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
)

func evalExprOr(
	e *expr.Expr, fallback string, cfg expr.Configuration, funcs expr.FunctionMap, logger asyncmap.Logger,
) (string, error) {
	if e == nil {
		return fallback, nil
	}

	v, err := expr.Eval(*e, cfg, funcs, func(msg string) { logger(msg, false) })
	if err != nil {
		return "", err
	}

	s, ok := v.String_()
	if !ok {
		if v.Kind() == expr.KindNull {
			return fallback, nil
		}

		return "", fmt.Errorf("expected a string, got %s", v.Kind())
	}

	return s, nil
}

// analyseBlobGen implements the file_gen and symlink rules.
func (e *Engine) analyseBlobGen(
	setter asyncmap.Setter[AnalysedTarget],
	logger asyncmap.Logger,
	subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
	ct ConfiguredTarget,
	desc TargetDescription,
) {
	requestDeps(subcaller, desc.Deps, ct.Config, logger, func(deps []AnalysedTarget) {
		own := unionTainted(desc.Tainted, nil)
		if err := taintedSatisfied(own, deps); err != nil {
			logger(err.Error(), true)

			return
		}

		resolver := newLocalResolver(desc.Deps, deps)
		funcs := expr.BuiltinFunctions(resolver)

		name, err := evalExprOr(desc.OutName, "out.txt", ct.Config.Prune(desc.ArgumentsConfig), funcs, logger)
		if err != nil {
			logger(fmt.Sprintf("evaluating name: %v", err), true)

			return
		}

		data, err := evalExprOr(desc.Data, "", ct.Config.Prune(desc.ArgumentsConfig), funcs, logger)
		if err != nil {
			logger(fmt.Sprintf("evaluating data: %v", err), true)

			return
		}

		objType := digest.File
		if desc.Name == RuleSymlink {
			objType = digest.Symlink

			if digest.IsUpwards(data) {
				logger(fmt.Sprintf("symlink %q targets %q, which escapes its tree", name, data), true)

				return
			}
		}

		d, storeErr := e.Store.StoreBytes([]byte(data), objType)
		if storeErr != nil {
			logger(fmt.Sprintf("storing blob: %v", storeErr), true)

			return
		}

		artifact := Artifact{Kind: ArtifactKnownBlob, Digest: d, ObjectType: objType}
		stage := Stage{name: artifact}

		vars := unionVars(desc.ArgumentsConfig, deps)

		setter(AnalysedTarget{
			Result:  Result{ArtifactStage: stage, Runfiles: stage, Provides: expr.Null},
			Blobs:   []digest.Digest{d},
			Vars:    vars,
			Tainted: own,
		})
	})
}

// analyseTree implements the tree rule.
func (e *Engine) analyseTree(
	setter asyncmap.Setter[AnalysedTarget],
	logger asyncmap.Logger,
	subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
	ct ConfiguredTarget,
	desc TargetDescription,
) {
	requestDeps(subcaller, desc.Deps, ct.Config, logger, func(deps []AnalysedTarget) {
		resolver := newLocalResolver(desc.Deps, deps)
		funcs := expr.BuiltinFunctions(resolver)

		name, err := evalExprOr(desc.TreeName, "", ct.Config.Prune(desc.ArgumentsConfig), funcs, logger)
		if err != nil {
			logger(fmt.Sprintf("evaluating name: %v", err), true)

			return
		}

		merged := Stage{}

		for _, d := range deps {
			if err := mergeStage(merged, d.Result.Runfiles, false); err != nil {
				logger(err.Error(), true)

				return
			}

			if err := mergeStage(merged, d.Result.ArtifactStage, false); err != nil {
				logger(err.Error(), true)

				return
			}
		}

		if err := checkTreeConflicts(merged); err != nil {
			logger(err.Error(), true)

			return
		}

		treeDigest, blobs, trees, err := e.buildTree(merged)
		if err != nil {
			logger(err.Error(), true)

			return
		}

		stage := Stage{name: {Kind: ArtifactKnownTree, Digest: treeDigest, ObjectType: digest.Tree}}
		vars := unionVars(desc.ArgumentsConfig, deps)
		own := unionTainted(desc.Tainted, deps)

		setter(AnalysedTarget{
			Result:  Result{ArtifactStage: stage, Runfiles: Stage{}, Provides: expr.Null},
			Blobs:   blobs,
			Trees:   append(trees, treeDigest),
			Vars:    vars,
			Tainted: own,
		})
	})
}

// analyseInstall implements the install rule.
func (e *Engine) analyseInstall(
	setter asyncmap.Setter[AnalysedTarget],
	logger asyncmap.Logger,
	subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
	ct ConfiguredTarget,
	desc TargetDescription,
) {
	fileNameList := make([]string, 0, len(desc.Files))
	for path := range desc.Files {
		fileNameList = append(fileNameList, path)
	}

	sort.Strings(fileNameList)

	fileNames := make([]expr.Name, len(fileNameList))
	for i, path := range fileNameList {
		fileNames[i] = desc.Files[path]
	}

	dirNames := make([]expr.Name, len(desc.Dirs))
	for i, d := range desc.Dirs {
		dirNames[i] = d.Target
	}

	all := append(append(append([]expr.Name{}, desc.Deps...), fileNames...), dirNames...)

	requestDeps(subcaller, all, ct.Config, logger, func(allDeps []AnalysedTarget) {
		depDeps := allDeps[:len(desc.Deps)]
		fileDeps := allDeps[len(desc.Deps) : len(desc.Deps)+len(fileNames)]
		dirDeps := allDeps[len(desc.Deps)+len(fileNames):]

		merged := Stage{}

		for _, d := range depDeps {
			if err := mergeStage(merged, d.Result.Runfiles, false); err != nil {
				logger(err.Error(), true)

				return
			}
		}

		for i, path := range fileNameList {
			d := fileDeps[i]

			source := d.Result.ArtifactStage
			if len(source) == 0 {
				source = d.Result.Runfiles
			}

			if len(source) != 1 {
				logger(fmt.Sprintf("install file %q: target must contribute exactly one path, got %d", path, len(source)), true)

				return
			}

			for _, a := range source {
				if err := mergeStage(merged, Stage{path: a}, false); err != nil {
					logger(err.Error(), true)

					return
				}
			}
		}

		for i, de := range desc.Dirs {
			d := dirDeps[i]

			underDir := Stage{}
			for path, a := range d.Result.ArtifactStage {
				underDir[de.Path+"/"+path] = a
			}

			for path, a := range d.Result.Runfiles {
				key := de.Path + "/" + path
				if _, ok := underDir[key]; !ok {
					underDir[key] = a
				}
			}

			if err := mergeStage(merged, underDir, false); err != nil {
				logger(err.Error(), true)

				return
			}
		}

		if err := checkTreeConflicts(merged); err != nil {
			logger(err.Error(), true)

			return
		}

		vars := unionVars(desc.ArgumentsConfig, allDeps)
		own := unionTainted(desc.Tainted, allDeps)

		setter(AnalysedTarget{
			Result:  Result{ArtifactStage: merged, Runfiles: merged, Provides: expr.Null},
			Vars:    vars,
			Tainted: own,
		})
	})
}
