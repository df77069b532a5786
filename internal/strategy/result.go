package strategy

import (
	"fmt"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
)

// Outcome is what executing a future's requests produced: one receipt per
// transaction request and, for a static call, the returned value.
type Outcome struct {
	Receipts []ledger.Receipt
	Static   ir.Value
}

// Result computes the value of f from its outcome.
func Result(f module.Future, env Env, out Outcome) (ir.Value, error) {
	switch fut := f.(type) {
	case *module.DeployContract:
		r, err := firstReceipt(f, out)
		if err != nil {
			return nil, err
		}
		if r.ContractAddress == "" {
			return nil, resolutionf(f.ID(), "receipt %s has no contract address", r.Hash)
		}
		return ir.String(r.ContractAddress), nil

	case *module.CallFunction:
		r, err := firstReceipt(f, out)
		if err != nil {
			return nil, err
		}
		if r.ReturnValue == nil {
			return ir.Null{}, nil
		}
		return r.ReturnValue, nil

	case *module.StaticCall:
		v, err := ir.Lookup(orNull(out.Static), fut.Output)
		if err != nil {
			return nil, &ResolutionError{FutureID: f.ID(), Err: fmt.Errorf("output: %w", err)}
		}
		return v, nil

	case *module.ReadEventArgument:
		return readEvent(fut, env)

	case *module.SendData:
		r, err := firstReceipt(f, out)
		if err != nil {
			return nil, err
		}
		return ir.String(r.Hash), nil

	case *module.ContractAt:
		v, err := module.Resolve(fut.Address, env.Env)
		if err != nil {
			return nil, &ResolutionError{FutureID: f.ID(), Err: fmt.Errorf("address: %w", err)}
		}
		s, ok := v.(ir.String)
		if !ok || !addressPattern.MatchString(string(s)) {
			return nil, resolutionf(f.ID(), "address: want address, got %s", ir.Kind(v))
		}
		return s, nil

	default:
		return nil, resolutionf(f.ID(), "unsupported future kind %s", f.Kind())
	}
}

func firstReceipt(f module.Future, out Outcome) (ledger.Receipt, error) {
	if len(out.Receipts) == 0 {
		return ledger.Receipt{}, resolutionf(f.ID(), "no receipt")
	}
	return out.Receipts[0], nil
}

// readEvent selects the Index-th log named Event among the emitter's logs.
func readEvent(f *module.ReadEventArgument, env Env) (ir.Value, error) {
	logs, ok := env.Logs[f.Emitter]
	if !ok {
		return nil, resolutionf(f.ID(), "emitter %s has no recorded logs", f.Emitter)
	}
	n := 0
	for _, l := range logs {
		if l.Event != f.Event {
			continue
		}
		if n == f.Index {
			v, ok := l.Args[f.Argument]
			if !ok {
				return nil, resolutionf(f.ID(), "event %s has no argument %q", f.Event, f.Argument)
			}
			return v, nil
		}
		n++
	}
	return nil, resolutionf(f.ID(), "emitter %s emitted %d %s events, want index %d", f.Emitter, n, f.Event, f.Index)
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}
