package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/ignite/internal/module"
)

// Future kind keys. Each future struct carries exactly one of them.
const (
	keyDeploy     = "deploy"
	keyCall       = "call"
	keyStaticCall = "staticCall"
	keyEvent      = "event"
	keySend       = "send"
	keyContractAt = "contractAt"
)

var kindKeys = []string{keyDeploy, keyCall, keyStaticCall, keyEvent, keySend, keyContractAt}

// CompileModule parses a CUE value into a Module.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the module struct itself, labelled with the
// module id:
//
//	module: Token: {
//		futures: {
//			Token: {deploy: "Token", args: ["Ignite", {param: "supply"}]}
//			Mint: {call: "mint", contract: "Token", args: [{account: 1}, 7]}
//			Minted: {event: "Transfer", emitter: "Mint", argument: "value"}
//		}
//		results: ["Token"]
//	}
//
// Futures are declared in field order and refer to each other by local
// name. Structural errors (dangling references, cycles) come back from
// module.New unchanged.
func CompileModule(v cue.Value) (*module.Module, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return nil, compileErrorf("module", v.Pos(), "module must be a labelled struct")
	}
	c := &moduleCompiler{id: labels[len(labels)-1].Unquoted()}

	futuresVal := v.LookupPath(cue.ParsePath("futures"))
	if !futuresVal.Exists() {
		return nil, compileErrorf("futures", v.Pos(), "at least one future is required")
	}
	iter, err := futuresVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var futures []module.Future
	for iter.Next() {
		f, err := c.compileFuture(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		futures = append(futures, f)
	}
	if len(futures) == 0 {
		return nil, compileErrorf("futures", futuresVal.Pos(), "at least one future is required")
	}

	var results []string
	if resultsVal := v.LookupPath(cue.ParsePath("results")); resultsVal.Exists() {
		list, err := resultsVal.List()
		if err != nil {
			return nil, compileErrorf("results", resultsVal.Pos(), "results must be a list of future names")
		}
		for list.Next() {
			id, err := c.futureRef("results", list.Value())
			if err != nil {
				return nil, err
			}
			results = append(results, id)
		}
	}

	return module.New(c.id, futures, results)
}

type moduleCompiler struct {
	id string
}

// futureRef resolves a local future name to its id. Names that already
// carry a module prefix are taken as ids.
func (c *moduleCompiler) futureRef(field string, v cue.Value) (string, error) {
	name, err := requiredString(field, v)
	if err != nil {
		return "", err
	}
	if strings.Contains(name, module.Separator) {
		return name, nil
	}
	return module.FutureID(c.id, name), nil
}

func (c *moduleCompiler) compileFuture(name string, v cue.Value) (module.Future, error) {
	field := "futures." + name
	var kind string
	for _, k := range kindKeys {
		if !v.LookupPath(cue.ParsePath(k)).Exists() {
			continue
		}
		if kind != "" {
			return nil, compileErrorf(field, v.Pos(), "future declares both %s and %s", kind, k)
		}
		kind = k
	}
	if kind == "" {
		return nil, compileErrorf(field, v.Pos(), "future must declare one of %s", strings.Join(kindKeys, ", "))
	}

	meta := module.Meta{FutureID: module.FutureID(c.id, name)}
	if after := v.LookupPath(cue.ParsePath("after")); after.Exists() {
		list, err := after.List()
		if err != nil {
			return nil, compileErrorf(field+".after", after.Pos(), "after must be a list of future names")
		}
		for list.Next() {
			id, err := c.futureRef(field+".after", list.Value())
			if err != nil {
				return nil, err
			}
			meta.After = append(meta.After, id)
		}
	}

	lookup := func(key string) cue.Value { return v.LookupPath(cue.ParsePath(key)) }
	sub := func(key string) string { return field + "." + key }

	switch kind {
	case keyDeploy:
		f := &module.DeployContract{Meta: meta}
		var err error
		if f.Contract, err = requiredString(sub(keyDeploy), lookup(keyDeploy)); err != nil {
			return nil, err
		}
		if f.Args, err = c.compileArgs(sub("args"), lookup("args")); err != nil {
			return nil, err
		}
		if f.Value, err = c.optionalArg(sub("value"), lookup("value")); err != nil {
			return nil, err
		}
		if f.From, err = c.optionalArg(sub("from"), lookup("from")); err != nil {
			return nil, err
		}
		if initVal := lookup("initialize"); initVal.Exists() {
			fn, err := requiredString(sub("initialize.function"), initVal.LookupPath(cue.ParsePath("function")))
			if err != nil {
				return nil, err
			}
			args, err := c.compileArgs(sub("initialize.args"), initVal.LookupPath(cue.ParsePath("args")))
			if err != nil {
				return nil, err
			}
			f.Initialize = &module.Initializer{Function: fn, Args: args}
		}
		return f, nil

	case keyCall:
		f := &module.CallFunction{Meta: meta}
		var err error
		if f.Function, err = requiredString(sub(keyCall), lookup(keyCall)); err != nil {
			return nil, err
		}
		if f.Contract, err = c.futureRef(sub("contract"), lookup("contract")); err != nil {
			return nil, err
		}
		if f.Args, err = c.compileArgs(sub("args"), lookup("args")); err != nil {
			return nil, err
		}
		if f.Value, err = c.optionalArg(sub("value"), lookup("value")); err != nil {
			return nil, err
		}
		if f.From, err = c.optionalArg(sub("from"), lookup("from")); err != nil {
			return nil, err
		}
		return f, nil

	case keyStaticCall:
		f := &module.StaticCall{Meta: meta}
		var err error
		if f.Function, err = requiredString(sub(keyStaticCall), lookup(keyStaticCall)); err != nil {
			return nil, err
		}
		if f.Contract, err = c.futureRef(sub("contract"), lookup("contract")); err != nil {
			return nil, err
		}
		if f.Args, err = c.compileArgs(sub("args"), lookup("args")); err != nil {
			return nil, err
		}
		if f.From, err = c.optionalArg(sub("from"), lookup("from")); err != nil {
			return nil, err
		}
		if f.Output, err = optionalString(sub("output"), lookup("output")); err != nil {
			return nil, err
		}
		return f, nil

	case keyEvent:
		f := &module.ReadEventArgument{Meta: meta}
		var err error
		if f.Event, err = requiredString(sub(keyEvent), lookup(keyEvent)); err != nil {
			return nil, err
		}
		if f.Emitter, err = c.futureRef(sub("emitter"), lookup("emitter")); err != nil {
			return nil, err
		}
		if f.Argument, err = requiredString(sub("argument"), lookup("argument")); err != nil {
			return nil, err
		}
		if idx := lookup("index"); idx.Exists() {
			n, err := idx.Int64()
			if err != nil || n < 0 {
				return nil, compileErrorf(sub("index"), idx.Pos(), "index must be a non-negative integer")
			}
			f.Index = int(n)
		}
		return f, nil

	case keySend:
		f := &module.SendData{Meta: meta}
		var err error
		if f.To, err = c.compileArg(sub(keySend), lookup(keySend)); err != nil {
			return nil, err
		}
		if f.Data, err = optionalString(sub("data"), lookup("data")); err != nil {
			return nil, err
		}
		if f.Value, err = c.optionalArg(sub("value"), lookup("value")); err != nil {
			return nil, err
		}
		if f.From, err = c.optionalArg(sub("from"), lookup("from")); err != nil {
			return nil, err
		}
		return f, nil

	case keyContractAt:
		f := &module.ContractAt{Meta: meta}
		var err error
		if f.Contract, err = requiredString(sub(keyContractAt), lookup(keyContractAt)); err != nil {
			return nil, err
		}
		if f.Address, err = c.requiredArg(sub("address"), lookup("address")); err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("%s: unhandled future kind %s", field, kind)
}
