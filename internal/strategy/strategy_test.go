package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/testutil"
)

const tokenAddr = "0x5fbdb2315678afecb367f032d93f642f64180aa3"

func testEnv(completed map[string]ir.Value) Env {
	return Env{
		Env: module.Env{
			Completed:  completed,
			Parameters: map[string]ir.Object{"M": {"supply": ir.Int(500)}},
			Accounts:   testutil.Accounts(),
			ModuleID:   "M",
		},
		DefaultSender: testutil.Alice,
		Artifacts: artifact.Map{
			"M#Token":   testutil.TokenArtifact(),
			"M#Counter": testutil.CounterArtifact(),
			"M#Short":   testutil.TokenArtifact(),
			"M#NoParam": testutil.TokenArtifact(),
		},
	}
}

func TestBuildDeploy(t *testing.T) {
	b := module.NewBuilder("M")
	token := b.Deploy("Token", "Token", module.Lit(ir.String("Ignite")), module.Param{Name: "supply"})

	reqs, err := BuildRequests(context.Background(), token, testEnv(nil))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, ledger.Request{
		Kind:     ledger.RequestCreate,
		From:     testutil.Alice,
		Contract: "Token",
		Bytecode: "0x60806040",
		Args:     ir.Array{ir.String("Ignite"), ir.Int(500)},
	}, reqs[0])
}

func TestBuildDeployWithInitializer(t *testing.T) {
	b := module.NewBuilder("M")
	counter := b.Deploy("Counter", "Counter", module.Lit(ir.Int(1)))
	counter.From = module.Account{Index: 1}
	counter.Initialize = &module.Initializer{Function: "setOwner", Args: []module.Arg{module.Account{Index: 2}}}

	reqs, err := BuildRequests(context.Background(), counter, testEnv(nil))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, testutil.Bob, reqs[0].From)
	assert.Equal(t, ledger.Request{
		Kind:      ledger.RequestCall,
		From:      testutil.Bob,
		Contract:  "Counter",
		Function:  "setOwner(address)",
		Args:      ir.Array{ir.String(testutil.Carol)},
		ToCreated: true,
	}, reqs[1])
}

func TestBuildCallAndStaticCall(t *testing.T) {
	b := module.NewBuilder("M")
	token := b.Deploy("Token", "Token", module.Lit(ir.String("Ignite")), module.Lit(ir.Int(1)))
	mint := b.Call("Mint", token.ID(), "mint", module.Account{Index: 1}, module.Lit(ir.String("1000000000000000000000")))
	mint.Value = module.Lit(ir.Int(7))
	bal := b.StaticCall("Balance", token.ID(), "balanceOf", module.Account{Index: 1})

	env := testEnv(map[string]ir.Value{token.ID(): ir.String(tokenAddr)})

	reqs, err := BuildRequests(context.Background(), mint, env)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Request{{
		Kind:     ledger.RequestCall,
		From:     testutil.Alice,
		To:       tokenAddr,
		Contract: "Token",
		Function: "mint(address,uint256)",
		Args:     ir.Array{ir.String(testutil.Bob), ir.String("1000000000000000000000")},
		Value:    7,
	}}, reqs)

	reqs, err = BuildRequests(context.Background(), bal, env)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, ledger.RequestStatic, reqs[0].Kind)
	assert.False(t, reqs[0].IsTransaction())
	assert.Equal(t, "balanceOf(address)", reqs[0].Function)
}

func TestBuildSendData(t *testing.T) {
	b := module.NewBuilder("M")
	send := b.Send("Ping", module.Lit(ir.String(testutil.Carol)), "0xdeadbeef")
	send.From = module.Lit(ir.String(testutil.Bob))

	reqs, err := BuildRequests(context.Background(), send, testEnv(nil))
	require.NoError(t, err)
	assert.Equal(t, []ledger.Request{{
		Kind: ledger.RequestRaw,
		From: testutil.Bob,
		To:   testutil.Carol,
		Data: "0xdeadbeef",
	}}, reqs)
}

func TestNoRequestsForLocalFutures(t *testing.T) {
	b := module.NewBuilder("M")
	at := b.ContractAt("Existing", "Token", module.Lit(ir.String(tokenAddr)))
	ev := b.ReadEvent("Minted", b.ID("Mint"), "Transfer", "value")

	for _, f := range []module.Future{at, ev} {
		reqs, err := BuildRequests(context.Background(), f, testEnv(nil))
		require.NoError(t, err)
		assert.Empty(t, reqs)
	}
}

func TestBuildRequestsResolutionErrors(t *testing.T) {
	b := module.NewBuilder("M")
	token := b.Deploy("Token", "Token", module.Lit(ir.String("Ignite")), module.Lit(ir.Int(1)))
	completed := map[string]ir.Value{token.ID(): ir.String(tokenAddr)}

	tests := []struct {
		name      string
		future    module.Future
		completed map[string]ir.Value
		want      string
	}{
		{
			name:   "arity",
			future: b.Deploy("Short", "Token", module.Lit(ir.String("x"))),
			want:   "expects 2 arguments, got 1",
		},
		{
			name:      "address kind",
			future:    b.Call("BadTo", token.ID(), "mint", module.Lit(ir.String("nope")), module.Lit(ir.Int(1))),
			completed: completed,
			want:      "want address",
		},
		{
			name:      "negative uint",
			future:    b.Call("Negative", token.ID(), "mint", module.Account{Index: 0}, module.Lit(ir.Int(-1))),
			completed: completed,
			want:      "negative value",
		},
		{
			name:   "contract not completed",
			future: b.Call("Early", token.ID(), "mint", module.Account{Index: 0}, module.Lit(ir.Int(1))),
			want:   "has not completed",
		},
		{
			name:      "unknown function",
			future:    b.Call("Missing", token.ID(), "burn"),
			completed: completed,
			want:      `no function "burn"`,
		},
		{
			name:   "missing parameter",
			future: b.Deploy("NoParam", "Token", module.Lit(ir.String("x")), module.Param{Name: "absent"}),
			want:   `parameter "absent"`,
		},
		{
			name:   "missing artifact",
			future: b.Deploy("Unknown", "Nothing"),
			want:   "artifact of M#Unknown",
		},
		{
			name:   "sender account out of range",
			future: &module.SendData{Meta: module.Meta{FutureID: "M#Far"}, To: module.Lit(ir.String(testutil.Bob)), Data: "0x", From: module.Account{Index: 9}},
			want:   "account index 9 out of range",
		},
		{
			name:   "send data not hex",
			future: b.Send("BadData", module.Lit(ir.String(testutil.Bob)), "hello"),
			want:   "not 0x-prefixed hex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildRequests(context.Background(), tt.future, testEnv(tt.completed))
			require.Error(t, err)
			assert.True(t, IsResolutionError(err))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestResult(t *testing.T) {
	b := module.NewBuilder("M")
	token := b.Deploy("Token", "Token", module.Lit(ir.String("Ignite")), module.Lit(ir.Int(1)))
	mint := b.Call("Mint", token.ID(), "mint", module.Account{Index: 1}, module.Lit(ir.Int(5)))
	lookup := b.StaticCall("Lookup", token.ID(), "lookup", module.Lit(ir.String("a")))
	lookup.Output = "target"
	second := b.ReadEvent("Second", mint.ID(), "Transfer", "value")
	second.Index = 1
	send := b.Send("Ping", module.Lit(ir.String(testutil.Carol)), "0x")
	at := b.ContractAt("At", "Token", module.Ref(token.ID()))

	env := testEnv(map[string]ir.Value{token.ID(): ir.String(tokenAddr)})
	env.Logs = map[string][]ledger.Log{
		mint.ID(): {
			{Event: "Transfer", Args: ir.Object{"value": ir.Int(1)}},
			{Event: "Approval", Args: ir.Object{"value": ir.Int(2)}},
			{Event: "Transfer", Args: ir.Object{"value": ir.Int(3)}},
		},
	}

	tests := []struct {
		name   string
		future module.Future
		out    Outcome
		want   ir.Value
	}{
		{"deploy", token, Outcome{Receipts: []ledger.Receipt{{Hash: "0x1", ContractAddress: tokenAddr}}}, ir.String(tokenAddr)},
		{"call", mint, Outcome{Receipts: []ledger.Receipt{{Hash: "0x2", ReturnValue: ir.Int(5)}}}, ir.Int(5)},
		{"call without return", mint, Outcome{Receipts: []ledger.Receipt{{Hash: "0x2"}}}, ir.Null{}},
		{"static call projection", lookup, Outcome{Static: ir.Object{"id": ir.Int(1), "target": ir.String(testutil.Bob)}}, ir.String(testutil.Bob)},
		{"event by index", second, Outcome{}, ir.Int(3)},
		{"send", send, Outcome{Receipts: []ledger.Receipt{{Hash: "0xabc"}}}, ir.String("0xabc")},
		{"contract at", at, Outcome{}, ir.String(tokenAddr)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Result(tt.future, env, tt.out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultErrors(t *testing.T) {
	b := module.NewBuilder("M")
	token := b.Deploy("Token", "Token")
	ev := b.ReadEvent("Missing", token.ID(), "Transfer", "value")
	ev.Index = 2
	env := testEnv(nil)
	env.Logs = map[string][]ledger.Log{token.ID(): {{Event: "Transfer", Args: ir.Object{"value": ir.Int(1)}}}}

	_, err := Result(token, env, Outcome{})
	assert.ErrorContains(t, err, "no receipt")

	_, err = Result(token, env, Outcome{Receipts: []ledger.Receipt{{Hash: "0x1"}}})
	assert.ErrorContains(t, err, "no contract address")

	_, err = Result(ev, env, Outcome{})
	assert.True(t, IsResolutionError(err))
	assert.ErrorContains(t, err, "emitted 1 Transfer events, want index 2")
}
