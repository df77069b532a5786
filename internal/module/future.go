package module

import (
	"slices"

	"github.com/roach88/ignite/internal/ir"
)

// Kind names a future variant.
type Kind string

const (
	KindDeployContract    Kind = "deploy-contract"
	KindCallFunction      Kind = "call-function"
	KindStaticCall        Kind = "static-call"
	KindReadEventArgument Kind = "read-event-argument"
	KindSendData          Kind = "send-data"
	KindContractAt        Kind = "existing-contract-reference"
)

// Future is one node of a deployment graph. The set of implementations is
// closed; switch on the concrete type to handle each kind.
type Future interface {
	ID() string
	Kind() Kind
	// Dependencies returns the ids this future reads from or is ordered
	// after, deduplicated, in first-occurrence order.
	Dependencies() []string
	// Sender returns the sender argument, nil when the default sender applies.
	Sender() Arg

	describe() ir.Object
	args() []Arg
}

// Meta holds the fields every future carries.
type Meta struct {
	FutureID string
	// After lists futures that must complete first even though no argument
	// references them.
	After []string
}

// ID returns the future id.
func (m *Meta) ID() string { return m.FutureID }

// DeployContract creates a contract from an artifact. Its result is the
// created contract's address.
type DeployContract struct {
	Meta
	Contract string
	Args     []Arg
	Value    Arg
	From     Arg
	// Initialize, when set, is called on the new contract in a second
	// transaction from the same sender.
	Initialize *Initializer
}

// Initializer is a follow-up call on a freshly deployed contract.
type Initializer struct {
	Function string
	Args     []Arg
}

// CallFunction sends a state-changing call to a contract produced by another
// future. Its result is the call's return value, or null.
type CallFunction struct {
	Meta
	Contract string
	Function string
	Args     []Arg
	Value    Arg
	From     Arg
}

// StaticCall reads from a contract without a transaction. Output optionally
// projects into the returned value.
type StaticCall struct {
	Meta
	Contract string
	Function string
	Args     []Arg
	From     Arg
	Output   string
}

// ReadEventArgument extracts an argument of an event emitted by the
// transaction of another future. Index selects among multiple matching logs.
type ReadEventArgument struct {
	Meta
	Emitter  string
	Event    string
	Argument string
	Index    int
}

// SendData sends a raw transaction. Its result is the transaction hash.
type SendData struct {
	Meta
	To    Arg
	Data  string
	Value Arg
	From  Arg
}

// ContractAt binds an artifact to an already deployed address.
type ContractAt struct {
	Meta
	Contract string
	Address  Arg
}

func (*DeployContract) Kind() Kind    { return KindDeployContract }
func (*CallFunction) Kind() Kind      { return KindCallFunction }
func (*StaticCall) Kind() Kind        { return KindStaticCall }
func (*ReadEventArgument) Kind() Kind { return KindReadEventArgument }
func (*SendData) Kind() Kind          { return KindSendData }
func (*ContractAt) Kind() Kind        { return KindContractAt }

func (f *DeployContract) Sender() Arg    { return f.From }
func (f *CallFunction) Sender() Arg      { return f.From }
func (f *StaticCall) Sender() Arg        { return f.From }
func (f *ReadEventArgument) Sender() Arg { return nil }
func (f *SendData) Sender() Arg          { return f.From }
func (f *ContractAt) Sender() Arg        { return nil }

func (f *DeployContract) args() []Arg {
	out := append(slices.Clone(f.Args), f.Value, f.From)
	if f.Initialize != nil {
		out = append(out, f.Initialize.Args...)
	}
	return out
}

func (f *CallFunction) args() []Arg      { return append(slices.Clone(f.Args), f.Value, f.From) }
func (f *StaticCall) args() []Arg        { return append(slices.Clone(f.Args), f.From) }
func (f *ReadEventArgument) args() []Arg { return nil }
func (f *SendData) args() []Arg          { return []Arg{f.To, f.Value, f.From} }
func (f *ContractAt) args() []Arg        { return []Arg{f.Address} }

func (f *DeployContract) Dependencies() []string { return dependencies(f, "") }
func (f *CallFunction) Dependencies() []string   { return dependencies(f, f.Contract) }
func (f *StaticCall) Dependencies() []string     { return dependencies(f, f.Contract) }
func (f *ReadEventArgument) Dependencies() []string {
	return dependencies(f, f.Emitter)
}
func (f *SendData) Dependencies() []string   { return dependencies(f, "") }
func (f *ContractAt) Dependencies() []string { return dependencies(f, "") }

type withMeta interface {
	Future
	meta() *Meta
}

func (m *Meta) meta() *Meta { return m }

func dependencies(f withMeta, primary string) []string {
	var ids []string
	if primary != "" {
		ids = append(ids, primary)
	}
	for _, a := range f.args() {
		ids = references(a, ids)
	}
	ids = append(ids, f.meta().After...)

	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (f *DeployContract) describe() ir.Object {
	obj := ir.Object{
		"contract": ir.String(f.Contract),
		"args":     describeArgs(f.Args),
		"value":    describeArg(f.Value),
		"from":     describeArg(f.From),
	}
	if f.Initialize != nil {
		obj["initialize"] = ir.Object{
			"function": ir.String(f.Initialize.Function),
			"args":     describeArgs(f.Initialize.Args),
		}
	}
	return obj
}

func (f *CallFunction) describe() ir.Object {
	return ir.Object{
		"contract": ir.String(f.Contract),
		"function": ir.String(f.Function),
		"args":     describeArgs(f.Args),
		"value":    describeArg(f.Value),
		"from":     describeArg(f.From),
	}
}

func (f *StaticCall) describe() ir.Object {
	return ir.Object{
		"contract": ir.String(f.Contract),
		"function": ir.String(f.Function),
		"args":     describeArgs(f.Args),
		"from":     describeArg(f.From),
		"output":   ir.String(f.Output),
	}
}

func (f *ReadEventArgument) describe() ir.Object {
	return ir.Object{
		"emitter":  ir.String(f.Emitter),
		"event":    ir.String(f.Event),
		"argument": ir.String(f.Argument),
		"index":    ir.Int(f.Index),
	}
}

func (f *SendData) describe() ir.Object {
	return ir.Object{
		"to":    describeArg(f.To),
		"data":  ir.String(f.Data),
		"value": describeArg(f.Value),
		"from":  describeArg(f.From),
	}
}

func (f *ContractAt) describe() ir.Object {
	return ir.Object{
		"contract": ir.String(f.Contract),
		"address":  describeArg(f.Address),
	}
}

// ParamsHash is the content hash of a future's kind and parameters.
// A future whose declaration changes between runs gets a different hash.
func ParamsHash(f Future) string {
	obj := f.describe()
	obj["kind"] = ir.String(f.Kind())
	after := make(ir.Array, 0)
	if m, ok := f.(withMeta); ok {
		for _, id := range m.meta().After {
			after = append(after, ir.String(id))
		}
	}
	obj["after"] = after
	return ir.MustHashValue(ir.DomainParams, obj)
}
