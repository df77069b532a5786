package txmanager

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignite/internal/config"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/ledger/simulated"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/testutil"
)

func testConfig() config.Deploy {
	cfg := config.Default()
	cfg.RequiredConfirmations = 1
	cfg.PollInterval = time.Millisecond
	cfg.TransactionTimeoutBudget = time.Hour
	cfg.RPCRateLimit = 0
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 4 * time.Millisecond
	return cfg
}

// memRecorder applies every recorded message to a journal state, so tests
// fail on any transition the journal would reject.
type memRecorder struct {
	mu    sync.Mutex
	state journal.DeploymentState
	msgs  []journal.Message
}

func newRecorder(t *testing.T, futures ...string) *memRecorder {
	t.Helper()
	r := &memRecorder{state: journal.NewState()}
	require.NoError(t, r.Record(context.Background(), &journal.DeploymentInitialized{ChainID: 31337, ModuleID: "M"}))
	for _, f := range futures {
		require.NoError(t, r.Record(context.Background(), &journal.ExecutionStarted{
			Header: journal.Header{Future: f},
			Kind:   module.KindDeployContract,
		}))
	}
	return r
}

func (r *memRecorder) Record(_ context.Context, m journal.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	journal.Stamp(m, r.state.LastSeq+1, testutil.Epoch)
	next, err := r.state.Apply(m)
	if err != nil {
		return err
	}
	r.state = next
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *memRecorder) types(future string) []journal.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []journal.Type
	for _, m := range r.msgs {
		if journal.Head(m).Future == future && m.Type() != journal.TypeExecutionStarted {
			out = append(out, m.Type())
		}
	}
	return out
}

func (r *memRecorder) request(future string, index int) journal.RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Future(future).Requests[index]
}

func deployCounter(from string, start int64) ledger.Request {
	art := testutil.CounterArtifact()
	return ledger.Request{Kind: ledger.RequestCreate, From: from, Contract: art.ContractName, Bytecode: art.Bytecode, Args: ir.Array{ir.Int(start)}}
}

func TestExecuteRecordsLifecycle(t *testing.T) {
	l := testutil.NewLedger()
	m := New(l, testConfig())
	rec := newRecorder(t, "M#Counter")

	receipt, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.NotEmpty(t, receipt.ContractAddress)

	assert.Equal(t, []journal.Type{
		journal.TypeRequestBuilt,
		journal.TypeTransactionSent,
		journal.TypeTransactionConfirmed,
	}, rec.types("M#Counter"))

	r := rec.request("M#Counter", 0)
	assert.Equal(t, uint64(0), r.Nonce)
	require.NotNil(t, r.Confirmed)
	assert.Equal(t, receipt.Hash, r.Confirmed.Hash)
}

func TestExecuteWaitsForConfirmations(t *testing.T) {
	l := testutil.NewLedger(simulated.WithAutoMine(false))
	cfg := testConfig()
	cfg.RequiredConfirmations = 3
	m := New(l, cfg)
	rec := newRecorder(t, "M#Counter")

	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
		done <- err
	}()

	require.Eventually(t, func() bool { return l.PendingCount(testutil.Alice) == 1 }, time.Second, time.Millisecond)
	l.Mine(2)
	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	l.Mine(1)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction never confirmed")
	}
}

func TestRevertIsTerminal(t *testing.T) {
	l := testutil.NewLedger()
	m := New(l, testConfig())
	rec := newRecorder(t, "M#Counter")

	receipt, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 5000)}, rec)
	var re *RevertError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "counter: start too large", re.Reason)
	assert.False(t, receipt.Success)
	assert.Len(t, l.Sent(), 1, "reverts are not retried")

	r := rec.request("M#Counter", 0)
	require.NotNil(t, r.Confirmed)
	assert.False(t, r.Confirmed.Success)
}

func TestSameSenderIsSerialized(t *testing.T) {
	l := testutil.NewLedger(simulated.WithAutoMine(false))
	m := New(l, testConfig())
	rec := newRecorder(t, "M#X", "M#Y", "M#Z")

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(2 * time.Millisecond):
				l.Mine(1)
			}
		}
	}()
	defer close(stop)

	var wg sync.WaitGroup
	for _, job := range []Job{
		{FutureID: "M#X", Request: deployCounter(testutil.Alice, 1)},
		{FutureID: "M#Y", Request: deployCounter(testutil.Alice, 2)},
		{FutureID: "M#Z", Request: deployCounter(testutil.Bob, 3)},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Execute(context.Background(), job, rec)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, l.MaxPending(testutil.Alice))
	nonces := []uint64{rec.request("M#X", 0).Nonce, rec.request("M#Y", 0).Nonce}
	assert.ElementsMatch(t, []uint64{0, 1}, nonces)
	assert.Equal(t, uint64(0), rec.request("M#Z", 0).Nonce)
}

func TestFeeBumpReusesNonce(t *testing.T) {
	l := testutil.NewLedger(simulated.WithAutoMine(false))
	cfg := testConfig()
	cfg.TransactionTimeoutBudget = 5 * time.Millisecond
	m := New(l, cfg)
	rec := newRecorder(t, "M#Counter")
	bumpsBefore := promtest.ToFloat64(feeBumps)
	supersededBefore := promtest.ToFloat64(superseded)
	sendsBefore := promtest.ToFloat64(transactionsSent.WithLabelValues(string(ledger.RequestCreate)))

	done := make(chan ledger.Receipt, 1)
	go func() {
		receipt, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
		assert.NoError(t, err)
		done <- receipt
	}()

	require.Eventually(t, func() bool { return len(l.Sent()) >= 2 }, 5*time.Second, time.Millisecond)
	l.Mine(1)

	var receipt ledger.Receipt
	select {
	case receipt = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transaction never confirmed")
	}

	sent := l.Sent()
	assert.Equal(t, sent[0].Nonce, sent[1].Nonce)
	assert.Equal(t, 1, sent[1].Fee.Cmp(sent[0].Fee), "bump raises the fee")

	r := rec.request("M#Counter", 0)
	assert.GreaterOrEqual(t, len(r.Hashes), 2)
	assert.Contains(t, r.Hashes, receipt.Hash)
	assert.Equal(t, 1, l.MaxPending(testutil.Alice))

	assert.GreaterOrEqual(t, promtest.ToFloat64(feeBumps), bumpsBefore+float64(len(sent)-1))
	assert.Equal(t, supersededBefore+float64(len(r.Hashes)-1), promtest.ToFloat64(superseded))
	assert.Equal(t, sendsBefore+float64(len(sent)), promtest.ToFloat64(transactionsSent.WithLabelValues(string(ledger.RequestCreate))))
}

// mineBeforeReplacement mines a block right before the ledger sees a second
// send of a nonce, so the original transaction is included first.
type mineBeforeReplacement struct {
	*simulated.Ledger
	mu   sync.Mutex
	seen map[uint64]bool
}

func (c *mineBeforeReplacement) SendTransaction(ctx context.Context, tx ledger.Transaction) (string, error) {
	c.mu.Lock()
	replacement := c.seen[tx.Nonce]
	c.seen[tx.Nonce] = true
	c.mu.Unlock()
	if replacement {
		c.Ledger.Mine(1)
	}
	return c.Ledger.SendTransaction(ctx, tx)
}

func TestFeeBumpLosesToMinedOriginal(t *testing.T) {
	l := &mineBeforeReplacement{Ledger: testutil.NewLedger(simulated.WithAutoMine(false)), seen: map[uint64]bool{}}
	cfg := testConfig()
	cfg.TransactionTimeoutBudget = time.Millisecond
	m := New(l, cfg)
	rec := newRecorder(t, "M#Counter")
	bumpsBefore := promtest.ToFloat64(feeBumps)
	confirmedBefore := promtest.ToFloat64(transactionsConfirmed.WithLabelValues("success"))

	receipt, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
	require.NoError(t, err)
	assert.True(t, receipt.Success)

	// The bump was refused because the original had been mined; the
	// original's receipt is the result.
	sent := l.Sent()
	require.Len(t, sent, 1)
	r := rec.request("M#Counter", 0)
	assert.Equal(t, []string{receipt.Hash}, r.Hashes)
	require.NotNil(t, r.Confirmed)
	assert.Equal(t, receipt.Hash, r.Confirmed.Hash)
	assert.Equal(t, []journal.Type{
		journal.TypeRequestBuilt,
		journal.TypeTransactionSent,
		journal.TypeTransactionConfirmed,
	}, rec.types("M#Counter"))

	assert.Equal(t, bumpsBefore+1, promtest.ToFloat64(feeBumps))
	assert.Equal(t, confirmedBefore+1, promtest.ToFloat64(transactionsConfirmed.WithLabelValues("success")))
}

func TestFeeBumpsExhausted(t *testing.T) {
	l := testutil.NewLedger(simulated.WithAutoMine(false))
	cfg := testConfig()
	cfg.TransactionTimeoutBudget = time.Millisecond
	cfg.MaxFeeBumps = 2
	m := New(l, cfg)
	rec := newRecorder(t, "M#Counter")

	_, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
	var ee *ExhaustedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "fee bump", ee.Op)
	assert.Equal(t, "M#Counter", ee.FutureID)
	assert.Len(t, l.Sent(), 3)
}

func TestDroppedTransactionIsResent(t *testing.T) {
	l := testutil.NewLedger(simulated.WithAutoMine(false))
	m := New(l, testConfig())
	rec := newRecorder(t, "M#Counter")

	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
		done <- err
	}()

	require.Eventually(t, func() bool { return l.PendingCount(testutil.Alice) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 1, l.DropPending(testutil.Alice))
	require.Eventually(t, func() bool { return len(l.Sent()) == 2 }, 5*time.Second, time.Millisecond)
	l.Mine(1)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction never confirmed")
	}
	assert.Contains(t, rec.types("M#Counter"), journal.TypeTransactionDropped)
	assert.Equal(t, 1, rec.request("M#Counter", 0).Dropped)
	assert.Equal(t, l.Sent()[0].Nonce, l.Sent()[1].Nonce)
}

func TestResendsExhausted(t *testing.T) {
	l := testutil.NewLedger(simulated.WithAutoMine(false))
	cfg := testConfig()
	cfg.MaxResends = 0
	m := New(l, cfg)
	rec := newRecorder(t, "M#Counter")

	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
		done <- err
	}()
	require.Eventually(t, func() bool { return l.PendingCount(testutil.Alice) == 1 }, time.Second, time.Millisecond)
	l.DropPending(testutil.Alice)

	select {
	case err := <-done:
		assert.True(t, IsExhausted(err))
	case <-time.After(5 * time.Second):
		t.Fatal("execute never returned")
	}
}

func TestTransientSendFailuresAreRetried(t *testing.T) {
	transient := &ledger.TransportError{Op: "send", Err: errors.New("connection reset by peer")}

	l := testutil.NewLedger()
	l.FailSends(transient, transient)
	m := New(l, testConfig())
	rec := newRecorder(t, "M#Counter")
	_, err := m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
	require.NoError(t, err)

	l = testutil.NewLedger()
	l.FailSends(transient, transient, transient)
	cfg := testConfig()
	cfg.MaxTransportRetries = 1
	m = New(l, cfg)
	rec = newRecorder(t, "M#Counter")
	_, err = m.Execute(context.Background(), Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
	assert.True(t, IsExhausted(err))
	assert.ErrorIs(t, err, transient)
}

func TestRejectedSendFailsAndReleasesNonce(t *testing.T) {
	l := testutil.NewLedger()
	l.FailSends(errors.New("insufficient funds for gas * price + value"))
	m := New(l, testConfig())
	rec := newRecorder(t, "M#A", "M#B")

	_, err := m.Execute(context.Background(), Job{FutureID: "M#A", Request: deployCounter(testutil.Alice, 1)}, rec)
	var rj *RejectedError
	require.ErrorAs(t, err, &rj)

	_, err = m.Execute(context.Background(), Job{FutureID: "M#B", Request: deployCounter(testutil.Alice, 1)}, rec)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.request("M#B", 0).Nonce)
}

func TestCancelledBeforeBuildRecordsNothing(t *testing.T) {
	l := testutil.NewLedger()
	m := New(l, testConfig())
	rec := newRecorder(t, "M#Counter")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Execute(ctx, Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.types("M#Counter"))
	assert.Empty(t, l.Sent())
}

func TestCancellationWhileQueuedOnLane(t *testing.T) {
	l := testutil.NewLedger(simulated.WithAutoMine(false))
	m := New(l, testConfig())
	rec := newRecorder(t, "M#A", "M#B")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan error, 1)
	go func() {
		_, err := m.Execute(ctx, Job{FutureID: "M#A", Request: deployCounter(testutil.Alice, 1)}, rec)
		first <- err
	}()
	require.Eventually(t, func() bool { return l.PendingCount(testutil.Alice) == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := m.Execute(ctx, Job{FutureID: "M#B", Request: deployCounter(testutil.Alice, 2)}, rec)
		second <- err
	}()

	cancel()
	select {
	case err := <-second:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("queued request ignored cancellation")
	}

	// The sent transaction still settles after cancellation.
	l.Mine(1)
	select {
	case err := <-first:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sent transaction never confirmed")
	}
	assert.Len(t, l.Sent(), 1)
	assert.Empty(t, rec.types("M#B"))
}

// sentBefore records a request as built and sent, the way a crashed run
// would have left it.
func sentBefore(t *testing.T, rec *memRecorder, future string, req ledger.Request, nonce uint64, hash string) *journal.RequestState {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, &journal.RequestBuilt{Header: journal.Header{Future: future}, Request: req, Nonce: nonce, Fee: big.NewInt(1_000_000_000)}))
	if hash != "" {
		require.NoError(t, rec.Record(ctx, &journal.TransactionSent{Header: journal.Header{Future: future}, Nonce: nonce, Hash: hash, Fee: big.NewInt(1_000_000_000)}))
	}
	r := rec.request(future, 0)
	return &r
}

func TestResumeRequeriesSentTransaction(t *testing.T) {
	ctx := context.Background()
	l := testutil.NewLedger()
	req := deployCounter(testutil.Alice, 1)
	hash, err := l.SendTransaction(ctx, ledger.Transaction{Request: req, Nonce: 0, Fee: big.NewInt(1_000_000_000)})
	require.NoError(t, err)

	rec := newRecorder(t, "M#Counter")
	prior := sentBefore(t, rec, "M#Counter", req, 0, hash)

	m := New(l, testConfig())
	receipt, err := m.Execute(ctx, Job{FutureID: "M#Counter", Request: req, Prior: prior}, rec)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.Hash)
	assert.Len(t, l.Sent(), 1, "a recorded hash is re-queried, never resent")
}

func TestResumeResendsUnrecordedSendWhileNonceOpen(t *testing.T) {
	ctx := context.Background()
	l := testutil.NewLedger()
	req := deployCounter(testutil.Alice, 1)

	rec := newRecorder(t, "M#Counter")
	prior := sentBefore(t, rec, "M#Counter", req, 0, "")

	m := New(l, testConfig())
	receipt, err := m.Execute(ctx, Job{FutureID: "M#Counter", Request: req, Prior: prior}, rec)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	require.Len(t, l.Sent(), 1)
	assert.Equal(t, uint64(0), l.Sent()[0].Nonce)
}

func TestResumeUnknownOutcomeWhenNonceConsumed(t *testing.T) {
	ctx := context.Background()
	l := testutil.NewLedger()
	req := deployCounter(testutil.Alice, 1)
	_, err := l.SendTransaction(ctx, ledger.Transaction{Request: deployCounter(testutil.Alice, 9), Nonce: 0, Fee: big.NewInt(1)})
	require.NoError(t, err)

	rec := newRecorder(t, "M#Counter")
	prior := sentBefore(t, rec, "M#Counter", req, 0, "")

	m := New(l, testConfig())
	_, err = m.Execute(ctx, Job{FutureID: "M#Counter", Request: req, Prior: prior}, rec)
	assert.True(t, IsUnknownOutcome(err))
	assert.Len(t, l.Sent(), 1, "nothing is resent")
}

func TestConfirmedPriorIsNotResubmitted(t *testing.T) {
	l := testutil.NewLedger()
	m := New(l, testConfig())
	prior := &journal.RequestState{Confirmed: &ledger.Receipt{Hash: "0x01", Success: true, ContractAddress: "0xc0"}}

	receipt, err := m.Execute(context.Background(), Job{FutureID: "M#A", Prior: prior}, newRecorder(t))
	require.NoError(t, err)
	assert.Equal(t, "0xc0", receipt.ContractAddress)
	assert.Empty(t, l.Sent())
}

func TestSeededNonceFloor(t *testing.T) {
	l := testutil.NewLedger()
	ctx := context.Background()
	for n := uint64(0); n < 3; n++ {
		_, err := l.SendTransaction(ctx, ledger.Transaction{Request: deployCounter(testutil.Alice, 1), Nonce: n, Fee: big.NewInt(1)})
		require.NoError(t, err)
	}

	m := New(l, testConfig())
	m.SeedNonces(map[string]uint64{testutil.Alice: 2})
	rec := newRecorder(t, "M#Counter")
	_, err := m.Execute(ctx, Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 1)}, rec)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.request("M#Counter", 0).Nonce, "the ledger nonce wins over a lower floor")
}

func TestStaticCall(t *testing.T) {
	ctx := context.Background()
	l := testutil.NewLedger()
	m := New(l, testConfig())
	rec := newRecorder(t, "M#Counter")
	receipt, err := m.Execute(ctx, Job{FutureID: "M#Counter", Request: deployCounter(testutil.Alice, 41)}, rec)
	require.NoError(t, err)

	v, err := m.Call(ctx, ledger.Request{Kind: ledger.RequestStatic, To: receipt.ContractAddress, Function: "count()"})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(41), v)

	_, err = m.Call(ctx, ledger.Request{Kind: ledger.RequestStatic, To: testutil.Carol, Function: "count()"})
	var ce *ledger.CallError
	assert.ErrorAs(t, err, &ce)
}
