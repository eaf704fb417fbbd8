package expr

import (
	"errors"
	"fmt"
)

// ErrEval wraps every evaluation failure, so callers can distinguish
// expression errors from unrelated errors with errors.Is.
var ErrEval = errors.New("expr: evaluation error")

// EvalLogger receives error messages during evaluation. Evaluation itself
// is side-effect free apart from these logger calls on error.
type EvalLogger func(msg string)

// HostFunc is a named function the evaluator can dispatch a Call
// expression to. args are already-evaluated values.
type HostFunc func(args []Value, cfg Configuration) (Value, error)

// FunctionMap supplies named host functions, notably "outs" and "runfiles",
// which close over a dependency resolver capturing the key->AnalysedTarget
// map; pkg/analysis builds the map this package consumes as an opaque
// FunctionMap.
type FunctionMap map[string]HostFunc

// Expr is the expression AST the evaluator walks. Exactly one constructor
// below should be used per node; Eval dispatches on which fields are set.
type Expr struct {
	op       op
	lit      Value
	varName  string
	listItem []Expr
	mapItem  map[string]Expr
	ifCond   *Expr
	ifThen   *Expr
	ifElse   *Expr
	callName string
	callArgs []Expr
	binOp    binOp
	lhs      *Expr
	rhs      *Expr
}

type op int

const (
	opLiteral op = iota
	opVar
	opList
	opMap
	opIf
	opCall
	opBinary
)

type binOp int

const (
	binAnd binOp = iota
	binOr
	binEq
	binConcat
)

func Literal(v Value) Expr { return Expr{op: opLiteral, lit: v} }
func Var(name string) Expr { return Expr{op: opVar, varName: name} }
func ListExpr(items []Expr) Expr { return Expr{op: opList, listItem: items} }
func MapExpr(items map[string]Expr) Expr { return Expr{op: opMap, mapItem: items} }

func If(cond, then, els Expr) Expr {
	return Expr{op: opIf, ifCond: &cond, ifThen: &then, ifElse: &els}
}

func Call(name string, args []Expr) Expr {
	return Expr{op: opCall, callName: name, callArgs: args}
}

func Binary(b binOp, lhs, rhs Expr) Expr {
	return Expr{op: opBinary, binOp: b, lhs: &lhs, rhs: &rhs}
}

const (
	And    = binAnd
	Or     = binOr
	Eq     = binEq
	Concat = binConcat
)

// Eval is the pure evaluator: "(expression, configuration,
// function-map) -> value". Errors abort evaluation; the caller must not
// cache a partial result.
func Eval(e Expr, cfg Configuration, funcs FunctionMap, logger EvalLogger) (Value, error) {
	switch e.op {
	case opLiteral:
		return e.lit, nil

	case opVar:
		v, ok := cfg.Lookup(e.varName)
		if !ok {
			err := fmt.Errorf("%w: undeclared variable %q", ErrEval, e.varName)
			logger(err.Error())

			return Value{}, err
		}

		return v, nil

	case opList:
		items := make([]Value, len(e.listItem))

		for i, item := range e.listItem {
			v, err := Eval(item, cfg, funcs, logger)
			if err != nil {
				return Value{}, err
			}

			items[i] = v
		}

		return List(items), nil

	case opMap:
		out := make(map[string]Value, len(e.mapItem))

		for k, item := range e.mapItem {
			v, err := Eval(item, cfg, funcs, logger)
			if err != nil {
				return Value{}, err
			}

			out[k] = v
		}

		return Map(out), nil

	case opIf:
		cond, err := Eval(*e.ifCond, cfg, funcs, logger)
		if err != nil {
			return Value{}, err
		}

		if cond.Truthy() {
			return Eval(*e.ifThen, cfg, funcs, logger)
		}

		return Eval(*e.ifElse, cfg, funcs, logger)

	case opCall:
		fn, ok := funcs[e.callName]
		if !ok {
			err := fmt.Errorf("%w: unknown function %q", ErrEval, e.callName)
			logger(err.Error())

			return Value{}, err
		}

		args := make([]Value, len(e.callArgs))

		for i, a := range e.callArgs {
			v, err := Eval(a, cfg, funcs, logger)
			if err != nil {
				return Value{}, err
			}

			args[i] = v
		}

		v, err := fn(args, cfg)
		if err != nil {
			wrapped := fmt.Errorf("%w: calling %q: %v", ErrEval, e.callName, err)
			logger(wrapped.Error())

			return Value{}, wrapped
		}

		return v, nil

	case opBinary:
		return evalBinary(e, cfg, funcs, logger)

	default:
		err := fmt.Errorf("%w: unknown expression node", ErrEval)
		logger(err.Error())

		return Value{}, err
	}
}

func evalBinary(e Expr, cfg Configuration, funcs FunctionMap, logger EvalLogger) (Value, error) {
	lhs, err := Eval(*e.lhs, cfg, funcs, logger)
	if err != nil {
		return Value{}, err
	}

	switch e.binOp {
	case binAnd:
		if !lhs.Truthy() {
			return lhs, nil
		}

		return Eval(*e.rhs, cfg, funcs, logger)

	case binOr:
		if lhs.Truthy() {
			return lhs, nil
		}

		return Eval(*e.rhs, cfg, funcs, logger)

	case binEq:
		rhs, err := Eval(*e.rhs, cfg, funcs, logger)
		if err != nil {
			return Value{}, err
		}

		return Bool(lhs.Equal(rhs)), nil

	case binConcat:
		rhs, err := Eval(*e.rhs, cfg, funcs, logger)
		if err != nil {
			return Value{}, err
		}

		return concat(lhs, rhs, logger)

	default:
		err := fmt.Errorf("%w: unknown binary operator", ErrEval)
		logger(err.Error())

		return Value{}, err
	}
}

func concat(lhs, rhs Value, logger EvalLogger) (Value, error) {
	if lhs.kind == KindString && rhs.kind == KindString {
		return String(lhs.str + rhs.str), nil
	}

	if lhs.kind == KindList && rhs.kind == KindList {
		out := make([]Value, 0, len(lhs.list)+len(rhs.list))
		out = append(out, lhs.list...)
		out = append(out, rhs.list...)

		return List(out), nil
	}

	err := fmt.Errorf("%w: cannot concat %s and %s", ErrEval, lhs.kind, rhs.kind)
	logger(err.Error())

	return Value{}, err
}
