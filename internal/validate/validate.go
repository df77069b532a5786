// Package validate checks a module against its contract artifacts before
// anything is sent. Only a module that passed validation can be deployed:
// the deployer accepts a *Validated, which this package alone constructs.
package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/strategy"
)

// Validation error codes (E200-E299)
const (
	ErrArtifactMissing  = "E201" // no artifact for a contract name
	ErrFunctionMissing  = "E202" // function not found or ambiguous
	ErrArity            = "E203" // wrong number of arguments
	ErrArgumentType     = "E204" // literal argument does not fit its ABI type
	ErrNotReadOnly      = "E205" // static call to a state-changing function
	ErrReadOnly         = "E206" // transaction to a view or pure function
	ErrNotPayable       = "E207" // value sent to a non-payable function
	ErrEventMissing     = "E208" // event not found on the emitter's contract
	ErrEventArgument    = "E209" // event has no such argument
	ErrNotContract      = "E210" // call target does not produce a contract
	ErrParameterMissing = "E211" // module parameter without value or default
)

// Problem is one validation failure.
type Problem struct {
	FutureID string `json:"future,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

func (p Problem) String() string {
	if p.FutureID == "" {
		return fmt.Sprintf("[%s] %s", p.Code, p.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", p.Code, p.FutureID, p.Message)
}

// ValidationError lists every problem found in a module. Validation does
// not stop at the first problem.
type ValidationError struct {
	Problems []Problem
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return fmt.Sprintf("module failed validation (%d problems): %s", len(e.Problems), strings.Join(msgs, "; "))
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validated is a module that passed validation, together with the artifact
// of every contract-producing future.
type Validated struct {
	module    *module.Module
	artifacts map[string]artifact.Artifact
}

// Module returns the validated module.
func (v *Validated) Module() *module.Module { return v.module }

// Artifact returns the artifact bound to a deploy or contract-at future.
func (v *Validated) Artifact(futureID string) (artifact.Artifact, bool) {
	a, ok := v.artifacts[futureID]
	return a, ok
}

// Validator gates a module before deployment.
type Validator interface {
	Validate(ctx context.Context, m *module.Module, r artifact.Resolver) (*Validated, error)
}

// Static validates a module against its artifacts without touching the
// ledger.
type Static struct{}

var _ Validator = Static{}

// Validate implements Validator. A module with problems yields a
// *ValidationError; a resolver failure other than a missing artifact is
// returned as is.
func (Static) Validate(ctx context.Context, m *module.Module, r artifact.Resolver) (*Validated, error) {
	c := &checker{module: m, resolver: r, artifacts: map[string]artifact.Artifact{}}
	for _, f := range m.Futures() {
		if err := c.future(ctx, f); err != nil {
			return nil, err
		}
	}
	if len(c.problems) > 0 {
		return nil, &ValidationError{Problems: c.problems}
	}
	return &Validated{module: m, artifacts: c.artifacts}, nil
}

// Parameters checks that every parameter without a default has a value.
// params is keyed by module id.
func Parameters(m *module.Module, params map[string]ir.Object) error {
	var problems []Problem
	for _, p := range m.Parameters() {
		if _, ok := params[m.ID()][p.Name]; ok || p.Default != nil {
			continue
		}
		problems = append(problems, Problem{
			Code:    ErrParameterMissing,
			Message: fmt.Sprintf("module parameter %s.%s has no value and no default", m.ID(), p.Name),
		})
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

type checker struct {
	module    *module.Module
	resolver  artifact.Resolver
	artifacts map[string]artifact.Artifact
	problems  []Problem
}

func (c *checker) problemf(futureID, code, format string, args ...any) {
	c.problems = append(c.problems, Problem{FutureID: futureID, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) future(ctx context.Context, f module.Future) error {
	switch fut := f.(type) {
	case *module.DeployContract:
		a, ok, err := c.load(ctx, fut.ID(), fut.Contract)
		if err != nil || !ok {
			return err
		}
		c.artifacts[fut.ID()] = a
		ctor := a.Constructor()
		c.args(fut.ID(), ctor, fut.Args)
		c.value(fut.ID(), ctor, fut.Value)
		if fut.Initialize != nil {
			fn, err := a.Function(fut.Initialize.Function)
			if err != nil {
				c.problemf(fut.ID(), ErrFunctionMissing, "initializer: %v", err)
				return nil
			}
			if fn.ReadOnly() {
				c.problemf(fut.ID(), ErrReadOnly, "initializer %s is %s and cannot be sent as a transaction", fn.Signature(), fn.StateMutability)
			}
			c.args(fut.ID(), fn, fut.Initialize.Args)
		}

	case *module.ContractAt:
		a, ok, err := c.load(ctx, fut.ID(), fut.Contract)
		if err != nil || !ok {
			return err
		}
		c.artifacts[fut.ID()] = a

	case *module.CallFunction:
		fn, ok, err := c.function(ctx, fut.ID(), fut.Contract, fut.Function)
		if err != nil || !ok {
			return err
		}
		if fn.ReadOnly() {
			c.problemf(fut.ID(), ErrReadOnly, "function %s is %s and cannot be sent as a transaction; use a static call", fn.Signature(), fn.StateMutability)
		}
		c.args(fut.ID(), fn, fut.Args)
		c.value(fut.ID(), fn, fut.Value)

	case *module.StaticCall:
		fn, ok, err := c.function(ctx, fut.ID(), fut.Contract, fut.Function)
		if err != nil || !ok {
			return err
		}
		if !fn.ReadOnly() {
			c.problemf(fut.ID(), ErrNotReadOnly, "function %s is not pure or view and cannot be statically called", fn.Signature())
		}
		c.args(fut.ID(), fn, fut.Args)

	case *module.ReadEventArgument:
		name, ok := c.contractOf(fut.Emitter)
		if !ok {
			c.problemf(fut.ID(), ErrNotContract, "emitter %s does not target a contract", fut.Emitter)
			return nil
		}
		a, ok, err := c.load(ctx, fut.ID(), name)
		if err != nil || !ok {
			return err
		}
		ev, err := a.Event(fut.Event)
		if err != nil {
			c.problemf(fut.ID(), ErrEventMissing, "%v", err)
			return nil
		}
		if !ev.HasInput(fut.Argument) {
			c.problemf(fut.ID(), ErrEventArgument, "event %s has no argument %q", ev.Signature(), fut.Argument)
		}
	}
	return nil
}

// contractOf returns the contract name a future interacts with: the
// contract it produces, or the contract it calls.
func (c *checker) contractOf(id string) (string, bool) {
	if name, ok := c.module.ContractName(id); ok {
		return name, true
	}
	f, ok := c.module.Future(id)
	if !ok {
		return "", false
	}
	if call, ok := f.(*module.CallFunction); ok {
		return c.module.ContractName(call.Contract)
	}
	return "", false
}

func (c *checker) load(ctx context.Context, futureID, name string) (artifact.Artifact, bool, error) {
	a, err := c.resolver.LoadArtifact(ctx, name)
	if errors.Is(err, artifact.ErrArtifactNotFound) {
		c.problemf(futureID, ErrArtifactMissing, "no artifact for contract %s", name)
		return artifact.Artifact{}, false, nil
	}
	if err != nil {
		return artifact.Artifact{}, false, fmt.Errorf("validate %s: %w", futureID, err)
	}
	return a, true, nil
}

func (c *checker) function(ctx context.Context, futureID, contractID, name string) (artifact.ABIEntry, bool, error) {
	contract, ok := c.module.ContractName(contractID)
	if !ok {
		c.problemf(futureID, ErrNotContract, "%s does not produce a contract", contractID)
		return artifact.ABIEntry{}, false, nil
	}
	a, ok, err := c.load(ctx, futureID, contract)
	if err != nil || !ok {
		return artifact.ABIEntry{}, false, err
	}
	fn, err := a.Function(name)
	if err != nil {
		c.problemf(futureID, ErrFunctionMissing, "%v", err)
		return artifact.ABIEntry{}, false, nil
	}
	return fn, true, nil
}

// args checks arity, and the kinds of arguments that are literals. Other
// arguments are only known at execution time.
func (c *checker) args(futureID string, entry artifact.ABIEntry, args []module.Arg) {
	what := describe(entry)
	if len(args) != len(entry.Inputs) {
		c.problemf(futureID, ErrArity, "%s expects %d arguments, got %d", what, len(entry.Inputs), len(args))
		return
	}
	for i, a := range args {
		lit, ok := a.(module.Literal)
		if !ok {
			continue
		}
		if err := strategy.CheckKind(entry.Inputs[i], lit.Value); err != nil {
			c.problemf(futureID, ErrArgumentType, "%s argument %d: %v", what, i, err)
		}
	}
}

func (c *checker) value(futureID string, entry artifact.ABIEntry, a module.Arg) {
	lit, ok := a.(module.Literal)
	if !ok || entry.StateMutability == "payable" {
		return
	}
	if n, ok := lit.Value.(ir.Int); ok && n > 0 {
		c.problemf(futureID, ErrNotPayable, "%s is not payable and cannot receive value", describe(entry))
	}
}

func describe(entry artifact.ABIEntry) string {
	if entry.Type == "constructor" {
		return "constructor"
	}
	return entry.Signature()
}
