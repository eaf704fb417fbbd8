package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/asyncmap"
	"github.com/Sumatoshi-tech/codefang/pkg/cas"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
)

func newEngine(t *testing.T, describe func(expr.Name) (analysis.TargetDescription, error)) (*analysis.Engine, *tasksystem.Pool) {
	t.Helper()

	store := cas.New(t.TempDir(), digest.Native, nil)
	ts := tasksystem.New(4)
	t.Cleanup(ts.Shutdown)

	return &analysis.Engine{Store: store, Flavor: digest.Native, Describe: describe}, ts
}

func ctKeyStr(ct analysis.ConfiguredTarget) string { return ct.Key() }

func TestAnalyseFileGenProducesBlob(t *testing.T) {
	t.Parallel()

	lit := expr.Literal(expr.String("out.bin"))
	data := expr.Literal(expr.String("hello"))

	describe := func(n expr.Name) (analysis.TargetDescription, error) {
		return analysis.TargetDescription{Name: analysis.RuleFileGen, OutName: &lit, Data: &data}, nil
	}

	engine, ts := newEngine(t, describe)
	m := asyncmap.New(4, ts, ctKeyStr, engine.Creator())

	ct := analysis.ConfiguredTarget{Name: expr.Name{Module: "//pkg", Target: "gen"}, Config: expr.Empty}

	results := m.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(analysis.ConfiguredTarget) {
		t.Fatal("unexpected failure")
	})
	ts.Finish()

	require.Len(t, results, 1)
	require.NotNil(t, results[0])

	artifact, ok := results[0].Result.ArtifactStage["out.bin"]
	require.True(t, ok)
	assert.Equal(t, digest.Of(digest.Native, []byte("hello"), false).Hash, artifact.Digest.Hash)
}

func TestAnalyseSymlinkRejectsUpwardEscape(t *testing.T) {
	t.Parallel()

	data := expr.Literal(expr.String("../escape"))

	describe := func(n expr.Name) (analysis.TargetDescription, error) {
		return analysis.TargetDescription{Name: analysis.RuleSymlink, Data: &data}, nil
	}

	engine, ts := newEngine(t, describe)
	m := asyncmap.New(4, ts, ctKeyStr, engine.Creator())

	ct := analysis.ConfiguredTarget{Name: expr.Name{Module: "//pkg", Target: "link"}, Config: expr.Empty}

	var failed []analysis.ConfiguredTarget

	results := m.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(c analysis.ConfiguredTarget) {
		failed = append(failed, c)
	})
	ts.Finish()

	require.Len(t, results, 1)
	assert.Nil(t, results[0])
	assert.Len(t, failed, 1)
}

func TestAnalyseTreeMergesDependencyStages(t *testing.T) {
	t.Parallel()

	aLit, aData := expr.Literal(expr.String("a.txt")), expr.Literal(expr.String("A"))
	bLit, bData := expr.Literal(expr.String("b.txt")), expr.Literal(expr.String("B"))
	treeName := expr.Literal(expr.String("out"))

	describe := func(n expr.Name) (analysis.TargetDescription, error) {
		switch n.Target {
		case "a":
			return analysis.TargetDescription{Name: analysis.RuleFileGen, OutName: &aLit, Data: &aData}, nil
		case "b":
			return analysis.TargetDescription{Name: analysis.RuleFileGen, OutName: &bLit, Data: &bData}, nil
		case "t":
			return analysis.TargetDescription{
				Name:     analysis.RuleTree,
				TreeName: &treeName,
				Deps:     []expr.Name{{Module: "//pkg", Target: "a"}, {Module: "//pkg", Target: "b"}},
			}, nil
		}

		t.Fatalf("unexpected describe(%v)", n)

		return analysis.TargetDescription{}, nil
	}

	engine, ts := newEngine(t, describe)
	m := asyncmap.New(4, ts, ctKeyStr, engine.Creator())

	ct := analysis.ConfiguredTarget{Name: expr.Name{Module: "//pkg", Target: "t"}, Config: expr.Empty}

	results := m.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(analysis.ConfiguredTarget) {
		t.Fatal("unexpected failure")
	})
	ts.Finish()

	require.Len(t, results, 1)
	require.NotNil(t, results[0])

	out, ok := results[0].Result.ArtifactStage["out"]
	require.True(t, ok)
	assert.True(t, out.Kind == analysis.ArtifactKnownTree)
	assert.NotEmpty(t, results[0].Trees)
}

func TestAnalyseInstallStagesFilesAndDirsUnderGivenPaths(t *testing.T) {
	t.Parallel()

	srcLit, srcData := expr.Literal(expr.String("a.txt")), expr.Literal(expr.String("A"))
	dirLit, dirData := expr.Literal(expr.String("inner.txt")), expr.Literal(expr.String("I"))

	describe := func(n expr.Name) (analysis.TargetDescription, error) {
		switch n.Target {
		case "src":
			return analysis.TargetDescription{Name: analysis.RuleFileGen, OutName: &srcLit, Data: &srcData}, nil
		case "dirsrc":
			return analysis.TargetDescription{Name: analysis.RuleFileGen, OutName: &dirLit, Data: &dirData}, nil
		case "bundle":
			return analysis.TargetDescription{
				Name: analysis.RuleInstall,
				Files: map[string]expr.Name{
					"bin/a.txt": {Module: "//pkg", Target: "src"},
				},
				Dirs: []analysis.DirEntry{
					{Target: expr.Name{Module: "//pkg", Target: "dirsrc"}, Path: "share"},
				},
			}, nil
		}

		t.Fatalf("unexpected describe(%v)", n)

		return analysis.TargetDescription{}, nil
	}

	engine, ts := newEngine(t, describe)
	m := asyncmap.New(4, ts, ctKeyStr, engine.Creator())

	ct := analysis.ConfiguredTarget{Name: expr.Name{Module: "//pkg", Target: "bundle"}, Config: expr.Empty}

	results := m.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(analysis.ConfiguredTarget) {
		t.Fatal("unexpected failure")
	})
	ts.Finish()

	require.Len(t, results, 1)
	require.NotNil(t, results[0])

	_, ok := results[0].Result.ArtifactStage["bin/a.txt"]
	assert.True(t, ok)

	_, ok = results[0].Result.ArtifactStage["share/inner.txt"]
	assert.True(t, ok)
}

func TestAnalyseGenericProducesSingleActionWithDisjointOutputs(t *testing.T) {
	t.Parallel()

	describe := func(n expr.Name) (analysis.TargetDescription, error) {
		return analysis.TargetDescription{
			Name: analysis.RuleGeneric,
			Cmds: []string{"echo hi > out.txt"},
			Outs: []string{"out.txt"},
		}, nil
	}

	engine, ts := newEngine(t, describe)
	m := asyncmap.New(4, ts, ctKeyStr, engine.Creator())

	ct := analysis.ConfiguredTarget{Name: expr.Name{Module: "//pkg", Target: "gen"}, Config: expr.Empty}

	results := m.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(analysis.ConfiguredTarget) {
		t.Fatal("unexpected failure")
	})
	ts.Finish()

	require.Len(t, results, 1)
	require.NotNil(t, results[0])
	require.Len(t, results[0].Actions, 1)

	artifact, ok := results[0].Result.ArtifactStage["out.txt"]
	require.True(t, ok)
	assert.Equal(t, results[0].Actions[0].ID, artifact.ActionID)
}

func TestAnalyseGenericRejectsOverlappingOutsAndOutDirs(t *testing.T) {
	t.Parallel()

	describe := func(n expr.Name) (analysis.TargetDescription, error) {
		return analysis.TargetDescription{
			Name:    analysis.RuleGeneric,
			Cmds:    []string{"true"},
			Outs:    []string{"shared"},
			OutDirs: []string{"shared"},
		}, nil
	}

	engine, ts := newEngine(t, describe)
	m := asyncmap.New(4, ts, ctKeyStr, engine.Creator())

	ct := analysis.ConfiguredTarget{Name: expr.Name{Module: "//pkg", Target: "bad"}, Config: expr.Empty}

	var failed []analysis.ConfiguredTarget

	results := m.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(c analysis.ConfiguredTarget) {
		failed = append(failed, c)
	})
	ts.Finish()

	require.Len(t, results, 1)
	assert.Nil(t, results[0])
	assert.Len(t, failed, 1)
}

func TestAnalyseConfigureInheritsDependencyResultAndPrunesFixedVars(t *testing.T) {
	t.Parallel()

	lit := expr.Literal(expr.String("out"))
	data := expr.Var("greeting")

	describe := func(n expr.Name) (analysis.TargetDescription, error) {
		switch n.Target {
		case "inner":
			return analysis.TargetDescription{
				Name:            analysis.RuleFileGen,
				OutName:         &lit,
				Data:            &data,
				ArgumentsConfig: []string{"greeting"},
			}, nil
		case "outer":
			return analysis.TargetDescription{
				Name:            analysis.RuleConfigure,
				ConfigureTarget: expr.Name{Module: "//pkg", Target: "inner"},
				ConfigureConfig: map[string]expr.Value{"greeting": expr.String("hi")},
			}, nil
		}

		t.Fatalf("unexpected describe(%v)", n)

		return analysis.TargetDescription{}, nil
	}

	engine, ts := newEngine(t, describe)
	m := asyncmap.New(4, ts, ctKeyStr, engine.Creator())

	ct := analysis.ConfiguredTarget{Name: expr.Name{Module: "//pkg", Target: "outer"}, Config: expr.Empty}

	results := m.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(analysis.ConfiguredTarget) {
		t.Fatal("unexpected failure")
	})
	ts.Finish()

	require.Len(t, results, 1)
	require.NotNil(t, results[0])

	out, ok := results[0].Result.ArtifactStage["out"]
	require.True(t, ok)
	assert.Equal(t, digest.Of(digest.Native, []byte("hi"), false).Hash, out.Digest.Hash)

	_, fixed := results[0].Vars["greeting"]
	assert.False(t, fixed, "greeting was fixed by the transition and must not remain in the effective domain")
}

func TestAnalyseExportUsesCacheHitWithoutRecursing(t *testing.T) {
	t.Parallel()

	describeCalls := 0

	lit, data := expr.Literal(expr.String("out")), expr.Literal(expr.String("v"))

	describe := func(n expr.Name) (analysis.TargetDescription, error) {
		describeCalls++

		switch n.Target {
		case "inner":
			return analysis.TargetDescription{Name: analysis.RuleFileGen, OutName: &lit, Data: &data}, nil
		case "wrapper":
			return analysis.TargetDescription{Name: analysis.RuleExport, Inner: expr.Name{Module: "//pkg", Target: "inner"}}, nil
		}

		t.Fatalf("unexpected describe(%v)", n)

		return analysis.TargetDescription{}, nil
	}

	store := cas.New(t.TempDir(), digest.Native, nil)
	ts := tasksystem.New(4)

	t.Cleanup(ts.Shutdown)

	cachedTarget := analysis.AnalysedTarget{
		Result: analysis.Result{ArtifactStage: analysis.Stage{"cached": {}}},
	}

	engine := &analysis.Engine{
		Store:    store,
		Flavor:   digest.Native,
		Describe: describe,
		Cache: func(key string) (analysis.AnalysedTarget, bool) {
			return cachedTarget, true
		},
	}

	m := asyncmap.New(4, ts, ctKeyStr, engine.Creator())

	ct := analysis.ConfiguredTarget{Name: expr.Name{Module: "//pkg", Target: "wrapper"}, Config: expr.Empty}

	results := m.ConsumeAfterKeysReady([]analysis.ConfiguredTarget{ct}, func(analysis.ConfiguredTarget) {
		t.Fatal("unexpected failure")
	})
	ts.Finish()

	require.Len(t, results, 1)
	require.NotNil(t, results[0])

	_, ok := results[0].Result.ArtifactStage["cached"]
	assert.True(t, ok)
	assert.Equal(t, 1, describeCalls, "the cache hit must short-circuit recursion into the inner target")
}
