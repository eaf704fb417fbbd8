package analysis

import "github.com/Sumatoshi-tech/codefang/pkg/expr"

// localResolver implements expr.DependencyResolver over the fixed set of
// dependency results available to one rule's evaluation, capturing a
// key->AnalysedTarget map the "outs"/"runfiles" built-ins consult. It is
// rebuilt per rule invocation rather than shared globally, since each rule
// only ever resolves its own deps.
type localResolver struct {
	results map[string]expr.Result
}

func newLocalResolver(names []expr.Name, targets []AnalysedTarget) localResolver {
	results := make(map[string]expr.Result, len(names))
	for i, n := range names {
		results[n.String()] = targets[i].Result.ToExprResult()
	}

	return localResolver{results: results}
}

func (r localResolver) Resolve(n expr.Name) (expr.Result, bool) {
	res, ok := r.results[n.String()]

	return res, ok
}
