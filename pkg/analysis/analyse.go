package analysis

import (
	"fmt"

	"github.com/Sumatoshi-tech/codefang/pkg/asyncmap"
	"github.com/Sumatoshi-tech/codefang/pkg/cas"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
)

// Describer resolves a target name to its already-parsed description. It
// stands in for the source-code front-end that turns user build files into
// this already-parsed shape, which this package does not implement.
type Describer func(name expr.Name) (TargetDescription, error)

// CacheProbe consults an export-target cache keyed by TargetCacheKey,
// returning a cached AnalysedTarget on a hit. A nil CacheProbe means no
// cache is wired; every export recurses.
type CacheProbe func(key string) (AnalysedTarget, bool)

// Engine realises Analyse against a CAS store for staging
// blobs/trees and a Describer for obtaining raw target descriptions.
type Engine struct {
	Store    *cas.Store
	Flavor   digest.HashFlavor
	Describe Describer
	Cache    CacheProbe
}

// Creator returns the asyncmap.ValueCreator Analyse realises, suitable for
// asyncmap.New's creator argument over ConfiguredTarget/AnalysedTarget.
func (e *Engine) Creator() asyncmap.ValueCreator[ConfiguredTarget, AnalysedTarget] {
	return func(
		ts *tasksystem.Pool,
		setter asyncmap.Setter[AnalysedTarget],
		logger asyncmap.Logger,
		subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
		ct ConfiguredTarget,
	) {
		desc, err := e.Describe(ct.Name)
		if err != nil {
			logger(fmt.Sprintf("describe %s: %v", ct.Name, err), true)

			return
		}

		e.dispatch(ts, setter, logger, subcaller, ct, desc)
	}
}

func (e *Engine) dispatch(
	ts *tasksystem.Pool,
	setter asyncmap.Setter[AnalysedTarget],
	logger asyncmap.Logger,
	subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
	ct ConfiguredTarget,
	desc TargetDescription,
) {
	switch desc.Name {
	case RuleFileGen, RuleSymlink:
		e.analyseBlobGen(setter, logger, subcaller, ct, desc)
	case RuleTree:
		e.analyseTree(setter, logger, subcaller, ct, desc)
	case RuleInstall:
		e.analyseInstall(setter, logger, subcaller, ct, desc)
	case RuleGeneric:
		e.analyseGeneric(setter, logger, subcaller, ct, desc)
	case RuleConfigure:
		e.analyseConfigure(setter, logger, subcaller, ct, desc)
	case RuleExport:
		e.analyseExport(ts, setter, logger, subcaller, ct, desc)
	default:
		logger(fmt.Sprintf("unknown rule type %q", desc.Name), true)
	}
}

// requestDeps subcalls names under cfg, invoking continuation with the
// resolved targets in the same order on success. logger receives the
// subcall's own failure report; continuation is never invoked on failure.
func requestDeps(
	subcaller asyncmap.Subcaller[ConfiguredTarget, AnalysedTarget],
	names []expr.Name,
	cfg expr.Configuration,
	logger asyncmap.Logger,
	continuation func(deps []AnalysedTarget),
) {
	keys := make([]ConfiguredTarget, len(names))
	for i, n := range names {
		keys[i] = ConfiguredTarget{Name: n, Config: cfg}
	}

	subcaller(keys, func(values []*AnalysedTarget) {
		deps := make([]AnalysedTarget, len(values))
		for i, v := range values {
			deps[i] = *v
		}

		continuation(deps)
	}, logger)
}
