// Package expr implements the pure expression evaluator:
// an immutable, JSON-like value sum type, a Configuration
// supporting domain pruning/restriction, and an evaluator that threads
// named host functions through expression trees without side effects.
// There is no existing analogue for a build-rule expression language, so
// this package is new algorithmic core. It reads no files itself: target
// files are decoded with gopkg.in/yaml.v3 by pkg/targetfile into that
// package's own structs, and only then turned into Values.
package expr

import "fmt"

// Kind discriminates a Value's underlying representation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindName
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindName:
		return "name"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// Name is an entity reference: module + target name, the unit a built-in
// rule resolves into a dependency lookup.
type Name struct {
	Module string
	Target string
}

func (n Name) String() string {
	return fmt.Sprintf("%s:%s", n.Module, n.Target)
}

// Result is an artifact stage (path -> object reference) plus a provides
// map, the shape analysed targets hand upward to their consumers.
type Result struct {
	Artifacts map[string]ArtifactRef
	Runfiles  map[string]ArtifactRef
	Provides  Value
}

// ArtifactRef identifies one staged file or tree without importing
// pkg/cas/pkg/digest, keeping pkg/expr free of a dependency on the storage
// layer; pkg/analysis converts to/from digest.Digest at its boundary.
type ArtifactRef struct {
	Hash   string
	IsTree bool
}

// Value is the immutable sum type expressions evaluate to. Exactly one of
// the typed fields is meaningful, selected by Kind; List and Map entries
// are themselves Values, so a Value is a fully self-contained immutable
// tree, safely shared across configurations and goroutines.
type Value struct {
	kind   Kind
	b      bool
	num    float64
	str    string
	list   []Value
	mp     map[string]Value
	name   Name
	result Result
}

// Null is the singular null value.
var Null = Value{kind: KindNull}

func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func String(s string) Value { return Value{kind: KindString, str: s} }

func List(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)

	return Value{kind: KindList, list: cp}
}

func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}

	return Value{kind: KindMap, mp: cp}
}

func NameValue(n Name) Value     { return Value{kind: KindName, name: n} }
func ResultValue(r Result) Value { return Value{kind: KindResult, result: r} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}

	return v.b, true
}

func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}

	return v.num, true
}

func (v Value) String_() (string, bool) {
	if v.kind != KindString {
		return "", false
	}

	return v.str, true
}

func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}

	return v.list, true
}

func (v Value) Map() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}

	return v.mp, true
}

func (v Value) Name() (Name, bool) {
	if v.kind != KindName {
		return Name{}, false
	}

	return v.name, true
}

func (v Value) Result() (Result, bool) {
	if v.kind != KindResult {
		return Result{}, false
	}

	return v.result, true
}

// Truthy implements the evaluator's notion of truthiness for conditionals:
// null, false, zero, the empty string, and the empty list/map are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	case KindList:
		return len(v.list) > 0
	case KindMap:
		return len(v.mp) > 0
	default:
		return true
	}
}

// Equal is structural equality, recursing through lists and maps.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.num == other.num
	case KindString:
		return v.str == other.str
	case KindName:
		return v.name == other.name
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}

		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}

		return true
	case KindMap:
		if len(v.mp) != len(other.mp) {
			return false
		}

		for k, val := range v.mp {
			otherVal, ok := other.mp[k]
			if !ok || !val.Equal(otherVal) {
				return false
			}
		}

		return true
	default:
		return false // Result values are never compared for cache-key purposes
	}
}
