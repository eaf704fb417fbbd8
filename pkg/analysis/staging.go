package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// mergeStage overlays src onto dst (src wins on a shared path only when
// overwrite is true); a path present in both with differing artifacts is a
// staging conflict when overwrite is false.
func mergeStage(dst Stage, src Stage, overwrite bool) error {
	for path, a := range src {
		existing, ok := dst[path]
		if !ok {
			dst[path] = a

			continue
		}

		if overwrite {
			dst[path] = a

			continue
		}

		if existing.Digest.Hash != a.Digest.Hash || existing.Kind != a.Kind ||
			existing.ActionID != a.ActionID || existing.OutputPath != a.OutputPath {
			return fmt.Errorf("staging conflict at %q: incompatible artifacts", path)
		}
	}

	return nil
}

// checkTreeConflicts reports a tree conflict: a staged path that is both a
// prefix (directory component) of another staged path and itself an
// artifact.
func checkTreeConflicts(stage Stage) error {
	paths := make([]string, 0, len(stage))
	for p := range stage {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for i, p := range paths {
		prefix := p + "/"

		for _, other := range paths[i+1:] {
			if strings.HasPrefix(other, prefix) {
				return fmt.Errorf("tree conflict: %q is both an artifact and a directory prefix of %q", p, other)
			}
		}
	}

	return nil
}

// unionTainted returns the union of base with every dep's Tainted set: a
// target's effective taint set must propagate upward to every consumer.
func unionTainted(base []string, deps []AnalysedTarget) map[string]struct{} {
	out := make(map[string]struct{}, len(base))
	for _, t := range base {
		out[t] = struct{}{}
	}

	for _, d := range deps {
		for t := range d.Tainted {
			out[t] = struct{}{}
		}
	}

	return out
}

// taintedSatisfied reports whether own is a superset of every dep's
// Tainted set.
func taintedSatisfied(own map[string]struct{}, deps []AnalysedTarget) error {
	for _, d := range deps {
		for t := range d.Tainted {
			if _, ok := own[t]; !ok {
				return fmt.Errorf("missing taint %q required by a dependency", t)
			}
		}
	}

	return nil
}

// unionVars computes the effective variable domain: arguments_config union
// every dependency's effective Vars.
func unionVars(argumentsConfig []string, deps []AnalysedTarget) map[string]struct{} {
	out := make(map[string]struct{}, len(argumentsConfig))
	for _, v := range argumentsConfig {
		out[v] = struct{}{}
	}

	for _, d := range deps {
		for v := range d.Vars {
			out[v] = struct{}{}
		}
	}

	return out
}

func sortedKeys(vars map[string]struct{}) []string {
	out := make([]string, 0, len(vars))
	for v := range vars {
		out = append(out, v)
	}

	sort.Strings(out)

	return out
}
