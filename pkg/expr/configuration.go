package expr

import (
	"sort"
	"strconv"
)

// Configuration is an immutable variable binding environment restricted to
// a declared domain, supporting Prune(keys), Update(map), and
// VariableFixed(key). Equality and hashing are structural over the whole
// domain: Equal and Key require the same set of keys. Two configurations
// that differ only in variables outside a target's arguments become equal
// once both are pruned to those arguments, which is what lets target
// analysis deduplicate configured targets.
type Configuration struct {
	vars map[string]Value
}

// Empty is the configuration with no bound variables.
var Empty = Configuration{vars: map[string]Value{}}

// New builds a Configuration from an initial variable map.
func New(vars map[string]Value) Configuration {
	return Configuration{vars: cloneVars(vars)}
}

func cloneVars(vars map[string]Value) map[string]Value {
	cp := make(map[string]Value, len(vars))
	for k, v := range vars {
		cp[k] = v
	}

	return cp
}

// Lookup returns the value bound to key and whether key is in the domain.
func (c Configuration) Lookup(key string) (Value, bool) {
	v, ok := c.vars[key]

	return v, ok
}

// VariableFixed reports whether key is part of c's domain.
func (c Configuration) VariableFixed(key string) bool {
	_, ok := c.vars[key]

	return ok
}

// Prune restricts the domain to exactly keys, dropping every other binding.
// Keys not already present are simply absent from the result (Prune never
// invents bindings).
func (c Configuration) Prune(keys []string) Configuration {
	out := make(map[string]Value, len(keys))

	for _, k := range keys {
		if v, ok := c.vars[k]; ok {
			out[k] = v
		}
	}

	return Configuration{vars: out}
}

// Update returns a configuration with overrides applied pointwise, unioning
// the domain with overrides' keys.
func (c Configuration) Update(overrides map[string]Value) Configuration {
	out := cloneVars(c.vars)

	for k, v := range overrides {
		out[k] = v
	}

	return Configuration{vars: out}
}

// Domain returns the sorted list of variables in c's domain.
func (c Configuration) Domain() []string {
	keys := make([]string, 0, len(c.vars))
	for k := range c.vars {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Equal is structural equality over the pruned domain: two configurations
// are equal iff they bind the same set of keys to equal values.
func (c Configuration) Equal(other Configuration) bool {
	if len(c.vars) != len(other.vars) {
		return false
	}

	for k, v := range c.vars {
		ov, ok := other.vars[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}

	return true
}

// Key renders a stable, hashable string for use as a map key (e.g. within
// pkg/resultmap), derived from the sorted domain and each value's JSON
// rendering.
func (c Configuration) Key() string {
	keys := c.Domain()

	var out []byte

	for _, k := range keys {
		out = append(out, k...)
		out = append(out, '=')
		out = appendValueKey(out, c.vars[k])
		out = append(out, ';')
	}

	return string(out)
}

func appendValueKey(out []byte, v Value) []byte {
	switch v.kind {
	case KindNull:
		return append(out, "null"...)
	case KindBool:
		if v.b {
			return append(out, "true"...)
		}

		return append(out, "false"...)
	case KindNumber:
		return appendFloat(out, v.num)
	case KindString:
		return append(out, v.str...)
	case KindName:
		return append(out, v.name.String()...)
	case KindList:
		out = append(out, '[')

		for _, item := range v.list {
			out = appendValueKey(out, item)
			out = append(out, ',')
		}

		return append(out, ']')
	case KindMap:
		out = append(out, '{')

		keys := make([]string, 0, len(v.mp))
		for k := range v.mp {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			out = append(out, k...)
			out = append(out, ':')
			out = appendValueKey(out, v.mp[k])
			out = append(out, ',')
		}

		return append(out, '}')
	default:
		return out
	}
}

func appendFloat(out []byte, f float64) []byte {
	return strconv.AppendFloat(out, f, 'g', -1, 64)
}
