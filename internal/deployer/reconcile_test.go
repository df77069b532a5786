package deployer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/strategy"
	"github.com/roach88/ignite/internal/testutil"
)

func started(t *testing.T, state journal.DeploymentState, f module.Future, sender string) journal.DeploymentState {
	t.Helper()
	m := &journal.ExecutionStarted{
		Header:     journal.Header{Future: f.ID()},
		Kind:       f.Kind(),
		Sender:     sender,
		ParamsHash: module.ParamsHash(f),
	}
	journal.Stamp(m, state.LastSeq+1, testutil.Epoch)
	next, err := state.Apply(m)
	require.NoError(t, err)
	return next
}

func initialized(t *testing.T) journal.DeploymentState {
	t.Helper()
	m := &journal.DeploymentInitialized{ChainID: 31337, ModuleID: "M", EngineVersion: ir.EngineVersion}
	journal.Stamp(m, 1, testutil.Epoch)
	state, err := journal.NewState().Apply(m)
	require.NoError(t, err)
	return state
}

func TestReconcile(t *testing.T) {
	b := module.NewBuilder("M")
	a := b.Deploy("A", "Counter", module.Lit(ir.Int(1)))
	c := b.Call("C", a.ID(), "inc")
	m := build(t, b)

	env := strategy.Env{DefaultSender: testutil.Alice}

	state := started(t, initialized(t), a, testutil.Alice)
	require.NoError(t, Reconcile(m, state, env))

	// Same module, different sender for an in-progress future.
	err := Reconcile(m, started(t, state, c, testutil.Bob), env)
	require.True(t, IsReconciliationError(err))
	assert.Contains(t, err.Error(), "M#C: sender changed")

	// A recorded future that the module no longer declares.
	other := module.NewBuilder("M")
	gone := other.Deploy("Gone", "Counter", module.Lit(ir.Int(1)))
	err = Reconcile(m, started(t, state, gone, testutil.Alice), env)
	var re *ReconciliationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, []Mismatch{{FutureID: "M#Gone", Message: "recorded in the journal but missing from the module"}}, re.Mismatches)

	// Reset futures are free to change.
	reset := &journal.FutureReset{Header: journal.Header{Future: gone.ID()}}
	s := started(t, state, gone, testutil.Alice)
	fail := &journal.FutureFailed{Header: journal.Header{Future: gone.ID()}, Class: journal.FailureReverted, Message: "x"}
	journal.Stamp(fail, s.LastSeq+1, testutil.Epoch)
	s, err = s.Apply(fail)
	require.NoError(t, err)
	journal.Stamp(reset, s.LastSeq+1, testutil.Epoch)
	s, err = s.Apply(reset)
	require.NoError(t, err)
	assert.NoError(t, Reconcile(m, s, env))
}
