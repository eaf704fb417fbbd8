package expr

import "fmt"

// DependencyResolver is consulted by the built-in "outs" and "runfiles"
// host functions to look up a dependency's Result by name.
// pkg/analysis implements this over its key->AnalysedTarget map without
// pkg/expr needing to import pkg/analysis.
type DependencyResolver interface {
	Resolve(n Name) (Result, bool)
}

// BuiltinFunctions returns the "outs" and "runfiles" host functions bound
// to resolver, ready to be merged into a caller-supplied FunctionMap.
func BuiltinFunctions(resolver DependencyResolver) FunctionMap {
	return FunctionMap{
		"outs":     outsFunc(resolver),
		"runfiles": runfilesFunc(resolver),
	}
}

func outsFunc(resolver DependencyResolver) HostFunc {
	return func(args []Value, _ Configuration) (Value, error) {
		name, result, err := resolveDepArg(args, resolver, "outs")
		if err != nil {
			return Value{}, err
		}

		_ = name

		out := make(map[string]Value, len(result.Artifacts))
		for path, ref := range result.Artifacts {
			out[path] = artifactRefValue(ref)
		}

		return Map(out), nil
	}
}

func runfilesFunc(resolver DependencyResolver) HostFunc {
	return func(args []Value, _ Configuration) (Value, error) {
		name, result, err := resolveDepArg(args, resolver, "runfiles")
		if err != nil {
			return Value{}, err
		}

		_ = name

		out := make(map[string]Value, len(result.Runfiles))
		for path, ref := range result.Runfiles {
			out[path] = artifactRefValue(ref)
		}

		return Map(out), nil
	}
}

func resolveDepArg(args []Value, resolver DependencyResolver, fn string) (Name, Result, error) {
	if len(args) != 1 {
		return Name{}, Result{}, fmt.Errorf("%s: expected exactly one argument, got %d", fn, len(args))
	}

	name, ok := args[0].Name()
	if !ok {
		return Name{}, Result{}, fmt.Errorf("%s: argument must be a name, got %s", fn, args[0].Kind())
	}

	result, ok := resolver.Resolve(name)
	if !ok {
		return Name{}, Result{}, fmt.Errorf("%s: no analysed dependency %s", fn, name)
	}

	return name, result, nil
}

func artifactRefValue(ref ArtifactRef) Value {
	return Map(map[string]Value{
		"hash":    String(ref.Hash),
		"is_tree": Bool(ref.IsTree),
	})
}
