// Package strategy turns a ready future into the ledger requests that
// execute it, and computes the future's value once those requests settle.
//
// Both directions are pure functions of the future and an Env holding the
// completed results, so the scheduler can re-derive identical requests for
// an in-progress future after a restart.
package strategy

import (
	"context"
	"fmt"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
)

// ArtifactSource returns the artifact recorded for a future id. Deployment
// loaders implement it.
type ArtifactSource interface {
	LoadArtifact(ctx context.Context, futureID string) (artifact.Artifact, error)
}

// Env is the resolution environment of one future.
type Env struct {
	module.Env
	// DefaultSender signs futures that name no sender.
	DefaultSender string
	// Logs holds the confirmed event logs of completed futures.
	Logs      map[string][]ledger.Log
	Artifacts ArtifactSource
}

// Sender resolves the account that signs f's transactions.
func Sender(f module.Future, env Env) (string, error) {
	a := f.Sender()
	if a == nil {
		return env.DefaultSender, nil
	}
	v, err := module.Resolve(a, env.Env)
	if err != nil {
		return "", &ResolutionError{FutureID: f.ID(), Err: fmt.Errorf("sender: %w", err)}
	}
	s, ok := v.(ir.String)
	if !ok || !addressPattern.MatchString(string(s)) {
		return "", resolutionf(f.ID(), "sender: want address, got %s", ir.Kind(v))
	}
	return string(s), nil
}

// BuildRequests returns the ordered requests that execute f. Futures that
// need no ledger interaction (ContractAt, ReadEventArgument) return none.
func BuildRequests(ctx context.Context, f module.Future, env Env) ([]ledger.Request, error) {
	switch fut := f.(type) {
	case *module.DeployContract:
		return buildDeploy(ctx, fut, env)
	case *module.CallFunction:
		req, err := buildCall(ctx, fut.ID(), fut.Contract, fut.Function, fut.Args, fut, env)
		if err != nil {
			return nil, err
		}
		if req.Value, err = resolveAmount(fut.ID(), fut.Value, env); err != nil {
			return nil, err
		}
		req.Kind = ledger.RequestCall
		return []ledger.Request{req}, nil
	case *module.StaticCall:
		req, err := buildCall(ctx, fut.ID(), fut.Contract, fut.Function, fut.Args, fut, env)
		if err != nil {
			return nil, err
		}
		req.Kind = ledger.RequestStatic
		return []ledger.Request{req}, nil
	case *module.SendData:
		return buildSend(fut, env)
	case *module.ReadEventArgument, *module.ContractAt:
		return nil, nil
	default:
		return nil, resolutionf(f.ID(), "unsupported future kind %s", f.Kind())
	}
}

func buildDeploy(ctx context.Context, f *module.DeployContract, env Env) ([]ledger.Request, error) {
	art, err := loadArtifact(ctx, f.ID(), f.ID(), env)
	if err != nil {
		return nil, err
	}
	from, err := Sender(f, env)
	if err != nil {
		return nil, err
	}
	args, err := resolveArgs(f.ID(), f.Args, env)
	if err != nil {
		return nil, err
	}
	if err := checkArgs(art.Constructor(), args); err != nil {
		return nil, &ResolutionError{FutureID: f.ID(), Err: err}
	}
	value, err := resolveAmount(f.ID(), f.Value, env)
	if err != nil {
		return nil, err
	}

	reqs := []ledger.Request{{
		Kind:     ledger.RequestCreate,
		From:     from,
		Contract: art.ContractName,
		Bytecode: art.Bytecode,
		Args:     ir.Array(args),
		Value:    value,
	}}
	if f.Initialize == nil {
		return reqs, nil
	}

	fn, err := art.Function(f.Initialize.Function)
	if err != nil {
		return nil, &ResolutionError{FutureID: f.ID(), Err: fmt.Errorf("initializer: %w", err)}
	}
	initArgs, err := resolveArgs(f.ID(), f.Initialize.Args, env)
	if err != nil {
		return nil, err
	}
	if err := checkArgs(fn, initArgs); err != nil {
		return nil, &ResolutionError{FutureID: f.ID(), Err: fmt.Errorf("initializer: %w", err)}
	}
	return append(reqs, ledger.Request{
		Kind:      ledger.RequestCall,
		From:      from,
		Contract:  art.ContractName,
		Function:  fn.Signature(),
		Args:      ir.Array(initArgs),
		ToCreated: true,
	}), nil
}

// buildCall builds the request shared by calls and static calls. Kind and
// Value are left to the caller.
func buildCall(ctx context.Context, id, contractID, function string, argv []module.Arg, f module.Future, env Env) (ledger.Request, error) {
	art, err := loadArtifact(ctx, id, contractID, env)
	if err != nil {
		return ledger.Request{}, err
	}
	to, err := contractAddress(id, contractID, env)
	if err != nil {
		return ledger.Request{}, err
	}
	from, err := Sender(f, env)
	if err != nil {
		return ledger.Request{}, err
	}
	fn, err := art.Function(function)
	if err != nil {
		return ledger.Request{}, &ResolutionError{FutureID: id, Err: err}
	}
	args, err := resolveArgs(id, argv, env)
	if err != nil {
		return ledger.Request{}, err
	}
	if err := checkArgs(fn, args); err != nil {
		return ledger.Request{}, &ResolutionError{FutureID: id, Err: err}
	}
	return ledger.Request{
		From:     from,
		To:       to,
		Contract: art.ContractName,
		Function: fn.Signature(),
		Args:     ir.Array(args),
	}, nil
}

func buildSend(f *module.SendData, env Env) ([]ledger.Request, error) {
	from, err := Sender(f, env)
	if err != nil {
		return nil, err
	}
	to, err := module.Resolve(f.To, env.Env)
	if err != nil {
		return nil, &ResolutionError{FutureID: f.ID(), Err: fmt.Errorf("to: %w", err)}
	}
	addr, ok := to.(ir.String)
	if !ok || !addressPattern.MatchString(string(addr)) {
		return nil, resolutionf(f.ID(), "to: want address, got %s", ir.Kind(to))
	}
	if !bytesPattern.MatchString(f.Data) {
		return nil, resolutionf(f.ID(), "data %q is not 0x-prefixed hex", f.Data)
	}
	value, err := resolveAmount(f.ID(), f.Value, env)
	if err != nil {
		return nil, err
	}
	return []ledger.Request{{
		Kind:  ledger.RequestRaw,
		From:  from,
		To:    string(addr),
		Data:  f.Data,
		Value: value,
	}}, nil
}

func loadArtifact(ctx context.Context, id, artifactID string, env Env) (artifact.Artifact, error) {
	if env.Artifacts == nil {
		return artifact.Artifact{}, resolutionf(id, "no artifact source")
	}
	art, err := env.Artifacts.LoadArtifact(ctx, artifactID)
	if err != nil {
		return artifact.Artifact{}, &ResolutionError{FutureID: id, Err: fmt.Errorf("artifact of %s: %w", artifactID, err)}
	}
	return art, nil
}

// contractAddress returns the address produced by the contract future id.
func contractAddress(id, contractID string, env Env) (string, error) {
	v, ok := env.Completed[contractID]
	if !ok {
		return "", resolutionf(id, "contract %s has not completed", contractID)
	}
	s, ok := v.(ir.String)
	if !ok || !addressPattern.MatchString(string(s)) {
		return "", resolutionf(id, "contract %s result is not an address", contractID)
	}
	return string(s), nil
}

func resolveArgs(id string, args []module.Arg, env Env) ([]ir.Value, error) {
	values, err := module.ResolveAll(args, env.Env)
	if err != nil {
		return nil, &ResolutionError{FutureID: id, Err: err}
	}
	return values, nil
}

// resolveAmount resolves a value transfer. A missing amount is zero.
func resolveAmount(id string, a module.Arg, env Env) (int64, error) {
	if a == nil {
		return 0, nil
	}
	v, err := module.Resolve(a, env.Env)
	if err != nil {
		return 0, &ResolutionError{FutureID: id, Err: fmt.Errorf("value: %w", err)}
	}
	switch n := v.(type) {
	case ir.Null:
		return 0, nil
	case ir.Int:
		if n < 0 {
			return 0, resolutionf(id, "value: negative amount %d", n)
		}
		return int64(n), nil
	default:
		return 0, resolutionf(id, "value: want int, got %s", ir.Kind(v))
	}
}
