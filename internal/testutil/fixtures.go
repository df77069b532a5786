// Package testutil provides fixtures shared by package tests: well-known
// accounts, contract artifacts and a simulated ledger whose contracts behave
// like small token, counter and registry contracts.
package testutil

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/ledger/simulated"
)

// Well-known test accounts.
const (
	Alice = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	Bob   = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	Carol = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
)

// ZeroAddress is the address minted tokens are transferred from.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Accounts returns the test accounts in index order.
func Accounts() []string {
	return []string{Alice, Bob, Carol}
}

func in(name, typ string) artifact.ABIParam { return artifact.ABIParam{Name: name, Type: typ} }

func indexed(name, typ string) artifact.ABIParam {
	return artifact.ABIParam{Name: name, Type: typ, Indexed: true}
}

func fn(name, mutability string, inputs []artifact.ABIParam, outputs ...artifact.ABIParam) artifact.ABIEntry {
	return artifact.ABIEntry{Type: "function", Name: name, Inputs: inputs, Outputs: outputs, StateMutability: mutability}
}

// TokenArtifact is a mintable token.
func TokenArtifact() artifact.Artifact {
	return artifact.Artifact{
		ContractName: "Token",
		Bytecode:     "0x60806040",
		ABI: []artifact.ABIEntry{
			{Type: "constructor", Inputs: []artifact.ABIParam{in("name", "string"), in("supply", "uint256")}},
			fn("mint", "nonpayable", []artifact.ABIParam{in("to", "address"), in("amount", "uint256")}, in("", "uint256")),
			fn("balanceOf", "view", []artifact.ABIParam{in("owner", "address")}, in("", "uint256")),
			fn("name", "view", nil, in("", "string")),
			{Type: "event", Name: "Transfer", Inputs: []artifact.ABIParam{indexed("from", "address"), indexed("to", "address"), in("value", "uint256")}},
		},
	}
}

// CounterArtifact is a counter with an owner. Its constructor reverts when
// start exceeds 1000 and fail always reverts.
func CounterArtifact() artifact.Artifact {
	return artifact.Artifact{
		ContractName: "Counter",
		Bytecode:     "0x60806041",
		ABI: []artifact.ABIEntry{
			{Type: "constructor", Inputs: []artifact.ABIParam{in("start", "uint256")}},
			fn("inc", "nonpayable", nil, in("", "uint256")),
			fn("add", "nonpayable", []artifact.ABIParam{in("n", "uint256")}, in("", "uint256")),
			fn("count", "view", nil, in("", "uint256")),
			fn("setOwner", "nonpayable", []artifact.ABIParam{in("owner", "address")}),
			fn("owner", "view", nil, in("", "address")),
			fn("fail", "nonpayable", nil),
			{Type: "event", Name: "Incremented", Inputs: []artifact.ABIParam{indexed("by", "address"), in("value", "uint256")}},
		},
	}
}

// RegistryArtifact maps names to addresses.
func RegistryArtifact() artifact.Artifact {
	return artifact.Artifact{
		ContractName: "Registry",
		Bytecode:     "0x60806042",
		ABI: []artifact.ABIEntry{
			fn("register", "nonpayable", []artifact.ABIParam{in("name", "string"), in("target", "address")}, in("id", "uint256")),
			fn("lookup", "view", []artifact.ABIParam{in("name", "string")},
				artifact.ABIParam{Name: "entry", Type: "tuple", Components: []artifact.ABIParam{in("id", "uint256"), in("target", "address")}}),
			{Type: "event", Name: "Registered", Inputs: []artifact.ABIParam{indexed("id", "uint256"), in("name", "string"), in("target", "address")}},
		},
	}
}

// Artifacts returns every fixture artifact keyed by contract name.
func Artifacts() artifact.Map {
	return artifact.Map{
		"Token":    TokenArtifact(),
		"Counter":  CounterArtifact(),
		"Registry": RegistryArtifact(),
	}
}

// contracts holds the storage of every fixture contract.
type contracts struct {
	mu       sync.Mutex
	balances map[string]map[string]int64
	names    map[string]string
	counts   map[string]int64
	owners   map[string]string
	registry map[string]map[string]ir.Object
}

// NewLedger returns a simulated ledger with the fixture contracts installed.
func NewLedger(opts ...simulated.Option) *simulated.Ledger {
	l := simulated.New(opts...)
	c := &contracts{
		balances: map[string]map[string]int64{},
		names:    map[string]string{},
		counts:   map[string]int64{},
		owners:   map[string]string{},
		registry: map[string]map[string]ir.Object{},
	}

	l.Handle("Token", "constructor", c.tokenConstructor)
	l.Handle("Token", "mint", c.tokenMint)
	l.Handle("Token", "balanceOf", c.tokenBalanceOf)
	l.Handle("Token", "name", c.tokenName)

	l.Handle("Counter", "constructor", c.counterConstructor)
	l.Handle("Counter", "inc", func(call simulated.Call) (ir.Value, []ledger.Log, error) {
		return c.counterAdd(call, 1)
	})
	l.Handle("Counter", "add", func(call simulated.Call) (ir.Value, []ledger.Log, error) {
		n, err := intArg(call.Args, 0)
		if err != nil {
			return nil, nil, err
		}
		return c.counterAdd(call, n)
	})
	l.Handle("Counter", "count", c.counterCount)
	l.Handle("Counter", "setOwner", c.counterSetOwner)
	l.Handle("Counter", "owner", c.counterOwner)
	l.Handle("Counter", "fail", func(simulated.Call) (ir.Value, []ledger.Log, error) {
		return nil, nil, simulated.Revert("counter: failed")
	})

	l.Handle("Registry", "register", c.registryRegister)
	l.Handle("Registry", "lookup", c.registryLookup)
	return l
}

func (c *contracts) tokenConstructor(call simulated.Call) (ir.Value, []ledger.Log, error) {
	name, err := stringArg(call.Args, 0)
	if err != nil {
		return nil, nil, err
	}
	supply, err := intArg(call.Args, 1)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[call.Address] = name
	c.balances[call.Address] = map[string]int64{call.From: supply}
	return nil, []ledger.Log{transfer(ZeroAddress, call.From, supply)}, nil
}

func (c *contracts) tokenMint(call simulated.Call) (ir.Value, []ledger.Log, error) {
	to, err := stringArg(call.Args, 0)
	if err != nil {
		return nil, nil, err
	}
	amount, err := intArg(call.Args, 1)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[call.Address][to] += amount
	return ir.Int(c.balances[call.Address][to]), []ledger.Log{transfer(ZeroAddress, to, amount)}, nil
}

func (c *contracts) tokenBalanceOf(call simulated.Call) (ir.Value, []ledger.Log, error) {
	owner, err := stringArg(call.Args, 0)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return ir.Int(c.balances[call.Address][owner]), nil, nil
}

func (c *contracts) tokenName(call simulated.Call) (ir.Value, []ledger.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ir.String(c.names[call.Address]), nil, nil
}

func transfer(from, to string, value int64) ledger.Log {
	return ledger.Log{Event: "Transfer", Args: ir.Object{
		"from":  ir.String(from),
		"to":    ir.String(to),
		"value": ir.Int(value),
	}}
}

func (c *contracts) counterConstructor(call simulated.Call) (ir.Value, []ledger.Log, error) {
	start, err := intArg(call.Args, 0)
	if err != nil {
		return nil, nil, err
	}
	if start > 1000 {
		return nil, nil, simulated.Revert("counter: start too large")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[call.Address] = start
	return nil, nil, nil
}

func (c *contracts) counterAdd(call simulated.Call, n int64) (ir.Value, []ledger.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[call.Address] += n
	v := c.counts[call.Address]
	return ir.Int(v), []ledger.Log{{Event: "Incremented", Args: ir.Object{"by": ir.String(call.From), "value": ir.Int(v)}}}, nil
}

func (c *contracts) counterCount(call simulated.Call) (ir.Value, []ledger.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ir.Int(c.counts[call.Address]), nil, nil
}

func (c *contracts) counterSetOwner(call simulated.Call) (ir.Value, []ledger.Log, error) {
	owner, err := stringArg(call.Args, 0)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[call.Address] = owner
	return nil, nil, nil
}

func (c *contracts) counterOwner(call simulated.Call) (ir.Value, []ledger.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ir.String(c.owners[call.Address]), nil, nil
}

func (c *contracts) registryRegister(call simulated.Call) (ir.Value, []ledger.Log, error) {
	name, err := stringArg(call.Args, 0)
	if err != nil {
		return nil, nil, err
	}
	target, err := stringArg(call.Args, 1)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.registry[call.Address]
	if entries == nil {
		entries = map[string]ir.Object{}
		c.registry[call.Address] = entries
	}
	if _, ok := entries[name]; ok {
		return nil, nil, simulated.Revert("registry: name taken")
	}
	id := ir.Int(len(entries) + 1)
	entries[name] = ir.Object{"id": id, "target": ir.String(target)}
	return id, []ledger.Log{{Event: "Registered", Args: ir.Object{"id": id, "name": ir.String(name), "target": ir.String(target)}}}, nil
}

func (c *contracts) registryLookup(call simulated.Call) (ir.Value, []ledger.Log, error) {
	name, err := stringArg(call.Args, 0)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.registry[call.Address][name]
	if !ok {
		return nil, nil, simulated.Revert("registry: unknown name")
	}
	return entry, nil, nil
}

func stringArg(args ir.Array, i int) (string, error) {
	if i >= len(args) {
		return "", simulated.Revert(fmt.Sprintf("missing argument %d", i))
	}
	s, ok := args[i].(ir.String)
	if !ok {
		return "", simulated.Revert(fmt.Sprintf("argument %d: want string, got %s", i, ir.Kind(args[i])))
	}
	return string(s), nil
}

func intArg(args ir.Array, i int) (int64, error) {
	if i >= len(args) {
		return 0, simulated.Revert(fmt.Sprintf("missing argument %d", i))
	}
	switch v := args[i].(type) {
	case ir.Int:
		return int64(v), nil
	case ir.String:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, simulated.Revert(fmt.Sprintf("argument %d: %v", i, err))
		}
		return n, nil
	default:
		return 0, simulated.Revert(fmt.Sprintf("argument %d: want integer, got %s", i, ir.Kind(args[i])))
	}
}
