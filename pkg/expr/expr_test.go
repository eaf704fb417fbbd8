package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/expr"
)

func noopLogger(string) {}

func TestEvalLiteralAndVar(t *testing.T) {
	t.Parallel()

	cfg := expr.New(map[string]expr.Value{"greeting": expr.String("hi")})

	v, err := expr.Eval(expr.Var("greeting"), cfg, nil, noopLogger)
	require.NoError(t, err)

	s, ok := v.String_()
	require.True(t, ok)
	assert.Equal(t, "hi", s)
}

func TestEvalUndeclaredVariableFails(t *testing.T) {
	t.Parallel()

	_, err := expr.Eval(expr.Var("missing"), expr.Empty, nil, noopLogger)
	require.ErrorIs(t, err, expr.ErrEval)
}

func TestEvalIf(t *testing.T) {
	t.Parallel()

	e := expr.If(expr.Literal(expr.Bool(true)), expr.Literal(expr.String("yes")), expr.Literal(expr.String("no")))

	v, err := expr.Eval(e, expr.Empty, nil, noopLogger)
	require.NoError(t, err)

	s, _ := v.String_()
	assert.Equal(t, "yes", s)
}

func TestEvalConcatStrings(t *testing.T) {
	t.Parallel()

	e := expr.Binary(expr.Concat, expr.Literal(expr.String("foo")), expr.Literal(expr.String("bar")))

	v, err := expr.Eval(e, expr.Empty, nil, noopLogger)
	require.NoError(t, err)

	s, _ := v.String_()
	assert.Equal(t, "foobar", s)
}

func TestEvalConcatMismatchedKindsFails(t *testing.T) {
	t.Parallel()

	e := expr.Binary(expr.Concat, expr.Literal(expr.String("foo")), expr.Literal(expr.Number(1)))

	_, err := expr.Eval(e, expr.Empty, nil, noopLogger)
	require.ErrorIs(t, err, expr.ErrEval)
}

func TestConfigurationPruneDropsOutOfDomainKeys(t *testing.T) {
	t.Parallel()

	cfg := expr.New(map[string]expr.Value{
		"arch": expr.String("x86_64"),
		"os":   expr.String("linux"),
	})

	pruned := cfg.Prune([]string{"arch"})

	assert.True(t, pruned.VariableFixed("arch"))
	assert.False(t, pruned.VariableFixed("os"))
}

func TestConfigurationEqualIgnoresOutOfDomainDifferences(t *testing.T) {
	t.Parallel()

	a := expr.New(map[string]expr.Value{"arch": expr.String("x86_64"), "os": expr.String("linux")}).Prune([]string{"arch"})
	b := expr.New(map[string]expr.Value{"arch": expr.String("x86_64"), "os": expr.String("darwin")}).Prune([]string{"arch"})

	assert.True(t, a.Equal(b))
}

func TestConfigurationUpdateUnionsDomain(t *testing.T) {
	t.Parallel()

	cfg := expr.New(map[string]expr.Value{"arch": expr.String("x86_64")})
	updated := cfg.Update(map[string]expr.Value{"os": expr.String("linux")})

	assert.True(t, updated.VariableFixed("arch"))
	assert.True(t, updated.VariableFixed("os"))
}

type fakeResolver struct {
	results map[string]expr.Result
}

func (f fakeResolver) Resolve(n expr.Name) (expr.Result, bool) {
	r, ok := f.results[n.String()]

	return r, ok
}

func TestBuiltinOutsResolvesArtifacts(t *testing.T) {
	t.Parallel()

	resolver := fakeResolver{results: map[string]expr.Result{
		"//pkg:lib": {Artifacts: map[string]expr.ArtifactRef{"lib.a": {Hash: "deadbeef"}}},
	}}

	funcs := expr.BuiltinFunctions(resolver)

	e := expr.Call("outs", []expr.Expr{expr.Literal(expr.NameValue(expr.Name{Module: "//pkg", Target: "lib"}))})

	v, err := expr.Eval(e, expr.Empty, funcs, noopLogger)
	require.NoError(t, err)

	m, ok := v.Map()
	require.True(t, ok)
	require.Contains(t, m, "lib.a")
}

func TestBuiltinOutsUnknownDependencyFails(t *testing.T) {
	t.Parallel()

	resolver := fakeResolver{results: map[string]expr.Result{}}
	funcs := expr.BuiltinFunctions(resolver)

	e := expr.Call("outs", []expr.Expr{expr.Literal(expr.NameValue(expr.Name{Module: "//pkg", Target: "missing"}))})

	_, err := expr.Eval(e, expr.Empty, funcs, noopLogger)
	require.Error(t, err)
}
