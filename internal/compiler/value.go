package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/module"
)

// compileValue converts a concrete CUE value to an ir.Value.
// Floats are rejected: amounts are integers or decimal strings.
func compileValue(field string, v cue.Value) (ir.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.IsConcrete() {
		return nil, compileErrorf(field, v.Pos(), "value must be concrete")
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, compileErrorf(field, v.Pos(), "integer out of int64 range, use a decimal string")
		}
		return ir.Int(n), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.Array{}
		for iter.Next() {
			elem, err := compileValue(field, iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			elem, err := compileValue(field+"."+iter.Selector().String(), iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Selector().Unquoted()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, compileErrorf(field, v.Pos(), "float values are not allowed, use an integer or a decimal string")
	default:
		return nil, compileErrorf(field, v.Pos(), "unsupported value kind: %v", v.Kind())
	}
}

// compileArg converts a CUE value to a future argument. Structs carrying one
// of the keys ref, param or account are argument markers:
//
//	{ref: "Token"}                    // result of future Token
//	{ref: "Lookup", path: "owner"}    // projection of a structured result
//	{param: "supply", default: 1000}  // module parameter
//	{account: 1}                      // second deploy account
//
// Lists and other structs become List and Map arguments so markers may nest.
func (c *moduleCompiler) compileArg(field string, v cue.Value) (module.Arg, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	switch v.IncompleteKind() {
	case cue.StructKind:
		if ref := v.LookupPath(cue.ParsePath("ref")); ref.Exists() {
			id, err := c.futureRef(field+".ref", ref)
			if err != nil {
				return nil, err
			}
			path, err := optionalString(field+".path", v.LookupPath(cue.ParsePath("path")))
			if err != nil {
				return nil, err
			}
			return module.Reference{FutureID: id, Path: path}, nil
		}
		if p := v.LookupPath(cue.ParsePath("param")); p.Exists() {
			name, err := requiredString(field+".param", p)
			if err != nil {
				return nil, err
			}
			param := module.Param{Name: name}
			if d := v.LookupPath(cue.ParsePath("default")); d.Exists() {
				if param.Default, err = compileValue(field+".default", d); err != nil {
					return nil, err
				}
			}
			return param, nil
		}
		if a := v.LookupPath(cue.ParsePath("account")); a.Exists() {
			idx, err := a.Int64()
			if err != nil || idx < 0 {
				return nil, compileErrorf(field+".account", a.Pos(), "account must be a non-negative integer")
			}
			return module.Account{Index: int(idx)}, nil
		}

		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m := module.Map{}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			elem, err := c.compileArg(field+"."+key, iter.Value())
			if err != nil {
				return nil, err
			}
			m[key] = elem
		}
		return m, nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := module.List{}
		for iter.Next() {
			elem, err := c.compileArg(field, iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil

	default:
		val, err := compileValue(field, v)
		if err != nil {
			return nil, err
		}
		return module.Lit(val), nil
	}
}

// compileArgs converts an optional list of arguments.
func (c *moduleCompiler) compileArgs(field string, v cue.Value) ([]module.Arg, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, compileErrorf(field, v.Pos(), "args must be a list")
	}
	var args []module.Arg
	for iter.Next() {
		a, err := c.compileArg(field, iter.Value())
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

// optionalArg converts v when present and returns nil otherwise.
func (c *moduleCompiler) optionalArg(field string, v cue.Value) (module.Arg, error) {
	if !v.Exists() {
		return nil, nil
	}
	return c.compileArg(field, v)
}

// requiredArg converts v and fails when it is absent.
func (c *moduleCompiler) requiredArg(field string, v cue.Value) (module.Arg, error) {
	if !v.Exists() {
		return nil, compileErrorf(field, v.Pos(), "value is required")
	}
	return c.compileArg(field, v)
}

func requiredString(field string, v cue.Value) (string, error) {
	if !v.Exists() {
		return "", compileErrorf(field, v.Pos(), "value is required")
	}
	s, err := v.String()
	if err != nil {
		return "", compileErrorf(field, v.Pos(), "must be a string")
	}
	return s, nil
}

func optionalString(field string, v cue.Value) (string, error) {
	if !v.Exists() {
		return "", nil
	}
	return requiredString(field, v)
}
