package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/module"
)

func compile(t *testing.T, src, path string) (*module.Module, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileModule(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileModuleBasic(t *testing.T) {
	m, err := compile(t, `
		module: Token: {
			futures: {
				Token: {
					deploy: "Token"
					args: ["Ignite", {param: "supply", default: 1000}]
					from: {account: 0}
				}
				Mint: {
					call: "mint"
					contract: "Token"
					args: [{account: 1}, 7]
				}
				Minted: {event: "Transfer", emitter: "Mint", argument: "value"}
				Balance: {
					staticCall: "balanceOf"
					contract: "Token"
					args: [{account: 1}]
					after: ["Mint"]
				}
			}
			results: ["Token", "Balance"]
		}
	`, "module.Token")
	require.NoError(t, err)

	assert.Equal(t, "Token", m.ID())
	assert.Equal(t, []string{"Token#Token", "Token#Mint", "Token#Minted", "Token#Balance"}, m.Graph().Order())
	assert.Equal(t, []string{"Token#Token", "Token#Balance"}, m.ResultFutures())

	f, ok := m.Future("Token#Token")
	require.True(t, ok)
	deploy := f.(*module.DeployContract)
	assert.Equal(t, "Token", deploy.Contract)
	assert.Equal(t, []module.Arg{
		module.Lit(ir.String("Ignite")),
		module.Param{Name: "supply", Default: ir.Int(1000)},
	}, deploy.Args)
	assert.Equal(t, module.Account{Index: 0}, deploy.From)

	f, _ = m.Future("Token#Mint")
	call := f.(*module.CallFunction)
	assert.Equal(t, "Token#Token", call.Contract)
	assert.Equal(t, []module.Arg{module.Account{Index: 1}, module.Lit(ir.Int(7))}, call.Args)

	f, _ = m.Future("Token#Minted")
	ev := f.(*module.ReadEventArgument)
	assert.Equal(t, "Token#Mint", ev.Emitter)
	assert.Equal(t, "Transfer", ev.Event)
	assert.Equal(t, "value", ev.Argument)

	f, _ = m.Future("Token#Balance")
	assert.Equal(t, []string{"Token#Mint"}, f.(*module.StaticCall).After)
}

func TestCompileModuleNestedArguments(t *testing.T) {
	m, err := compile(t, `
		module: Registry: futures: {
			Registry: deploy: "Registry"
			Existing: {contractAt: "Counter", address: {param: "counter"}}
			Register: {
				call: "register"
				contract: "Registry"
				args: [{name: "counter", target: {ref: "Existing"}}, [1, {ref: "Registry"}]]
				value: 0
			}
			Pay: {send: {ref: "Registry"}, data: "0x01", value: 5}
			Init: {
				deploy: "Counter"
				args: [1]
				initialize: {function: "setOwner", args: [{account: 2}]}
			}
		}
	`, "module.Registry")
	require.NoError(t, err)

	f, _ := m.Future("Registry#Register")
	call := f.(*module.CallFunction)
	assert.Equal(t, []module.Arg{
		module.Map{"name": module.Lit(ir.String("counter")), "target": module.Ref("Registry#Existing")},
		module.List{module.Lit(ir.Int(1)), module.Ref("Registry#Registry")},
	}, call.Args)
	assert.Equal(t, module.Lit(ir.Int(0)), call.Value)
	assert.ElementsMatch(t, []string{"Registry#Registry", "Registry#Existing"}, call.Dependencies())

	f, _ = m.Future("Registry#Existing")
	assert.Equal(t, module.Param{Name: "counter"}, f.(*module.ContractAt).Address)

	f, _ = m.Future("Registry#Pay")
	send := f.(*module.SendData)
	assert.Equal(t, module.Ref("Registry#Registry"), send.To)
	assert.Equal(t, "0x01", send.Data)

	f, _ = m.Future("Registry#Init")
	initializer := f.(*module.DeployContract).Initialize
	require.NotNil(t, initializer)
	assert.Equal(t, "setOwner", initializer.Function)
	assert.Equal(t, []module.Arg{module.Account{Index: 2}}, initializer.Args)
}

func TestCompileModuleErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "no futures",
			src:     `module: M: results: []`,
			wantErr: "at least one future is required",
		},
		{
			name:    "no kind",
			src:     `module: M: futures: A: args: [1]`,
			wantErr: "must declare one of",
		},
		{
			name:    "two kinds",
			src:     `module: M: futures: A: {deploy: "Token", call: "mint", contract: "A"}`,
			wantErr: "declares both deploy and call",
		},
		{
			name:    "float argument",
			src:     `module: M: futures: A: {deploy: "Token", args: [1.5]}`,
			wantErr: "float values are not allowed",
		},
		{
			name:    "incomplete argument",
			src:     `module: M: futures: A: {deploy: "Token", args: [int]}`,
			wantErr: "value must be concrete",
		},
		{
			name:    "missing contract",
			src:     `module: M: futures: A: {call: "mint"}`,
			wantErr: "futures.A.contract",
		},
		{
			name:    "negative account",
			src:     `module: M: futures: A: {deploy: "Token", from: {account: -1}}`,
			wantErr: "non-negative integer",
		},
		{
			name:    "missing address",
			src:     `module: M: futures: A: {contractAt: "Token"}`,
			wantErr: "futures.A.address",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src, "module.M")
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileModuleStructuralErrors(t *testing.T) {
	_, err := compile(t, `
		module: M: futures: {
			A: {call: "inc", contract: "B"}
			B: {call: "inc", contract: "A"}
		}
	`, "module.M")
	require.Error(t, err)
	assert.True(t, module.IsStructuralError(err))

	_, err = compile(t, `
		module: M: futures: A: {call: "inc", contract: "Missing"}
	`, "module.M")
	require.Error(t, err)
	assert.True(t, module.IsStructuralError(err))
}

func TestCompileErrorPosition(t *testing.T) {
	err := &CompileError{Field: "futures.A", Message: "bad"}
	assert.Equal(t, "futures.A: bad", err.Error())
}
