package module

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/ignite/internal/ir"
)

// Arg is a future parameter. It is a sealed sum type: a literal value, a
// deferred reference to another future's result, a module parameter, a
// signer account, or a structured list/map of other Args.
type Arg interface {
	arg()
}

// Literal is a concrete value known at declaration time.
type Literal struct {
	Value ir.Value
}

// Reference defers to another future's result. Path optionally projects
// into a structured result (see ir.Lookup).
type Reference struct {
	FutureID string
	Path     string
}

// Param reads a module parameter supplied at deploy time. Default is used
// when the parameter is absent; a nil Default makes the parameter required.
type Param struct {
	Name    string
	Default ir.Value
}

// Account selects one of the accounts supplied at deploy time.
type Account struct {
	Index int
}

// List is an array argument whose elements may contain references.
type List []Arg

// Map is an object argument whose values may contain references.
type Map map[string]Arg

func (Literal) arg()   {}
func (Reference) arg() {}
func (Param) arg()     {}
func (Account) arg()   {}
func (List) arg()      {}
func (Map) arg()       {}

// Lit wraps a value as a Literal.
func Lit(v ir.Value) Literal { return Literal{Value: v} }

// Ref references the whole result of future id.
func Ref(id string) Reference { return Reference{FutureID: id} }

// RefPath references a projection of future id's result.
func RefPath(id, path string) Reference { return Reference{FutureID: id, Path: path} }

// Env is everything argument resolution may read. Completed holds the
// results of completed futures; Parameters is keyed by module id.
type Env struct {
	Completed  map[string]ir.Value
	Parameters map[string]ir.Object
	Accounts   []string
	ModuleID   string
}

// Resolve substitutes every reference in a with the referenced value. It is
// a pure function of a and env: resolving the same argument against the same
// completed-value table always yields the same value.
func Resolve(a Arg, env Env) (ir.Value, error) {
	switch arg := a.(type) {
	case nil:
		return ir.Null{}, nil
	case Literal:
		if arg.Value == nil {
			return ir.Null{}, nil
		}
		return arg.Value, nil
	case Reference:
		v, ok := env.Completed[arg.FutureID]
		if !ok {
			return nil, fmt.Errorf("reference to %s: future has not completed", arg.FutureID)
		}
		projected, err := ir.Lookup(v, arg.Path)
		if err != nil {
			return nil, fmt.Errorf("reference to %s: %w", arg.FutureID, err)
		}
		return projected, nil
	case Param:
		if v, ok := env.Parameters[env.ModuleID][arg.Name]; ok {
			return v, nil
		}
		if arg.Default != nil {
			return arg.Default, nil
		}
		return nil, fmt.Errorf("module parameter %q not provided and has no default", arg.Name)
	case Account:
		if arg.Index < 0 || arg.Index >= len(env.Accounts) {
			return nil, fmt.Errorf("account index %d out of range (%d accounts)", arg.Index, len(env.Accounts))
		}
		return ir.String(env.Accounts[arg.Index]), nil
	case List:
		out := make(ir.Array, len(arg))
		for i, elem := range arg {
			v, err := Resolve(elem, env)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case Map:
		out := make(ir.Object, len(arg))
		for _, k := range slices.Sorted(maps.Keys(arg)) {
			v, err := Resolve(arg[k], env)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown argument type %T", a)
	}
}

// ResolveAll resolves args in order.
func ResolveAll(args []Arg, env Env) ([]ir.Value, error) {
	out := make([]ir.Value, len(args))
	for i, a := range args {
		v, err := Resolve(a, env)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// references appends the future ids referenced anywhere inside a.
func references(a Arg, out []string) []string {
	switch arg := a.(type) {
	case Reference:
		return append(out, arg.FutureID)
	case List:
		for _, elem := range arg {
			out = references(elem, out)
		}
	case Map:
		for _, k := range slices.Sorted(maps.Keys(arg)) {
			out = references(arg[k], out)
		}
	}
	return out
}

// params returns every Param referenced inside a.
func params(a Arg, out []Param) []Param {
	switch arg := a.(type) {
	case Param:
		return append(out, arg)
	case List:
		for _, elem := range arg {
			out = params(elem, out)
		}
	case Map:
		for _, k := range slices.Sorted(maps.Keys(arg)) {
			out = params(arg[k], out)
		}
	}
	return out
}

// describeArg encodes a as a value for content hashing.
func describeArg(a Arg) ir.Value {
	switch arg := a.(type) {
	case nil:
		return ir.Null{}
	case Literal:
		return ir.Object{"lit": orNull(arg.Value)}
	case Reference:
		return ir.Object{"ref": ir.String(arg.FutureID), "path": ir.String(arg.Path)}
	case Param:
		return ir.Object{"param": ir.String(arg.Name), "default": orNull(arg.Default)}
	case Account:
		return ir.Object{"account": ir.Int(arg.Index)}
	case List:
		out := make(ir.Array, len(arg))
		for i, elem := range arg {
			out[i] = describeArg(elem)
		}
		return ir.Object{"list": out}
	case Map:
		out := make(ir.Object, len(arg))
		for k, v := range arg {
			out[k] = describeArg(v)
		}
		return ir.Object{"map": out}
	default:
		return ir.String(fmt.Sprintf("%T", a))
	}
}

func describeArgs(args []Arg) ir.Array {
	out := make(ir.Array, len(args))
	for i, a := range args {
		out[i] = describeArg(a)
	}
	return out
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}
