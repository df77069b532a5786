// Package txmanager submits transaction requests to the ledger and drives
// each one to a final receipt.
//
// A request moves through built, sent and then confirmed, dropped or
// superseded. Every transition is recorded through a Recorder before the
// manager acts on it, so a restarted run can pick up from the journal:
// recorded hashes are re-queried and never blindly resent.
//
// Transactions of one sender are serialized: the sender's lane is held from
// nonce assignment until the transaction settles, so a sender never has two
// unresolved nonces in flight. Distinct senders proceed in parallel.
package txmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/ignite/internal/config"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/ledger"
)

// Recorder persists journal messages. Record returns once m is durable.
type Recorder interface {
	Record(ctx context.Context, m journal.Message) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, m journal.Message) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, m journal.Message) error { return f(ctx, m) }

// Job is one transaction request of a future. Prior is the recorded state of
// the request when the future is being resumed.
type Job struct {
	FutureID string
	Index    int
	Request  ledger.Request
	Prior    *journal.RequestState
}

// Manager is the transaction lifecycle manager. It is safe for concurrent
// use; the scheduler shares one Manager across all workers of a run.
type Manager struct {
	client  ledger.Client
	cfg     config.Deploy
	limiter *rate.Limiter
	nonces  *nonces
	lanes   *lanes
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithNow sets the clock used for fee bump budgets (default time.Now).
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a manager. cfg must already be resolved for the target network
// (see config.Deploy.Resolve).
func New(client ledger.Client, cfg config.Deploy, opts ...Option) *Manager {
	limit, burst := rate.Inf, 1
	if cfg.RPCRateLimit > 0 {
		limit = rate.Limit(cfg.RPCRateLimit)
		burst = max(1, int(math.Ceil(cfg.RPCRateLimit)))
	}
	m := &Manager{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		nonces:  newNonces(),
		lanes:   newLanes(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SeedNonces raises the per-sender nonce floors, typically to the floors
// recorded in the journal.
func (m *Manager) SeedNonces(floors map[string]uint64) {
	m.nonces.seed(floors)
}

// Call performs a static call, retrying transient transport failures. A
// call the ledger rejects is returned as a *ledger.CallError.
func (m *Manager) Call(ctx context.Context, req ledger.Request) (ir.Value, error) {
	var v ir.Value
	err := m.retry(ctx, "call", func(ctx context.Context) error {
		var err error
		v, err = m.client.Call(ctx, req)
		return err
	})
	return v, err
}

// tracked is the in-memory view of one request being driven to a receipt.
type tracked struct {
	nonce   uint64
	baseFee *big.Int
	fee     *big.Int
	hashes  []string
	bumps   int
	resends int
	sentAt  time.Time
	first   time.Time
}

func (t *tracked) sent() bool { return len(t.hashes) > 0 }

// Execute drives job to a confirmed receipt. A reverted receipt is recorded
// and returned together with a *RevertError.
//
// ctx only governs the work before a request is recorded as built: waiting
// for the sender's lane and fetching nonce and fee. Once the request is in
// the journal it is driven to a final state even if ctx is cancelled, so a
// cancelled Execute either returns ctx's error with nothing recorded or
// settles the transaction.
func (m *Manager) Execute(ctx context.Context, job Job, rec Recorder) (ledger.Receipt, error) {
	if p := job.Prior; p != nil && p.Confirmed != nil {
		return m.settle(job, *p.Confirmed)
	}

	release, err := m.lanes.acquire(ctx, job.Request.From)
	if err != nil {
		return ledger.Receipt{}, err
	}
	defer release()

	t, err := m.submit(ctx, job, rec)
	if err != nil {
		return ledger.Receipt{}, m.annotate(job, err)
	}
	receipt, err := m.await(context.WithoutCancel(ctx), job, t, rec)
	if err != nil {
		return receipt, m.annotate(job, err)
	}
	return receipt, nil
}

// submit gets the request onto the ledger: it resumes a recorded request or
// builds and sends a fresh one.
func (m *Manager) submit(ctx context.Context, job Job, rec Recorder) (*tracked, error) {
	sender := job.Request.From
	if p := job.Prior; p != nil {
		// Recorded by an earlier run: settle it regardless of ctx.
		ctx = context.WithoutCancel(ctx)
		m.nonces.claim(sender, p.Nonce)
		t := &tracked{nonce: p.Nonce, baseFee: p.Fee, fee: p.Fee, hashes: slices.Clone(p.Hashes), resends: p.Dropped}
		t.bumps = max(0, len(p.Hashes)-1)
		t.sentAt, t.first = m.now(), m.now()
		if p.Sent() {
			m.logger.Info("resuming sent transaction", "future", job.FutureID, "index", job.Index, "nonce", p.Nonce, "hashes", len(p.Hashes))
			return t, nil
		}

		// Built but never recorded as sent: the send may or may not have
		// reached the ledger. Resending the identical transaction is safe
		// while its nonce is still open.
		var mined uint64
		if err := m.retry(ctx, "nonce", func(ctx context.Context) error {
			var err error
			mined, err = m.client.NextNonce(ctx, sender, false)
			return err
		}); err != nil {
			return nil, err
		}
		if mined > p.Nonce {
			return nil, &UnknownOutcomeError{FutureID: job.FutureID, Index: job.Index, Nonce: p.Nonce,
				Reason: fmt.Sprintf("ledger nonce of %s is %d but no send was recorded", sender, mined)}
		}
		m.logger.Info("resending unrecorded transaction", "future", job.FutureID, "index", job.Index, "nonce", p.Nonce)
		if err := m.send(ctx, job, t, rec, p.Fee); err != nil {
			if errors.Is(err, ledger.ErrNonceTooLow) {
				return nil, &UnknownOutcomeError{FutureID: job.FutureID, Index: job.Index, Nonce: p.Nonce, Reason: err.Error()}
			}
			return nil, err
		}
		return t, nil
	}

	for attempt := 0; ; attempt++ {
		var pending uint64
		var fee *big.Int
		if err := m.retry(ctx, "nonce", func(ctx context.Context) error {
			var err error
			pending, err = m.client.NextNonce(ctx, sender, true)
			return err
		}); err != nil {
			return nil, err
		}
		if err := m.retry(ctx, "gas price", func(ctx context.Context) error {
			var err error
			fee, err = m.client.GasPrice(ctx)
			return err
		}); err != nil {
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nonce := m.nonces.reserve(sender, pending)
		t := &tracked{nonce: nonce, baseFee: fee, fee: fee, first: m.now()}
		err := rec.Record(ctx, &journal.RequestBuilt{
			Header:  journal.Header{Future: job.FutureID},
			Index:   job.Index,
			Request: job.Request,
			Nonce:   nonce,
			Fee:     fee,
		})
		if err != nil {
			m.nonces.release(sender, nonce)
			return nil, err
		}
		ctx = context.WithoutCancel(ctx)

		err = m.send(ctx, job, t, rec, fee)
		switch {
		case err == nil:
			return t, nil
		case errors.Is(err, ledger.ErrNonceTooLow) && attempt < m.cfg.MaxTransportRetries:
			// Another signer used the nonce; rebuild on a fresh one.
			m.logger.Warn("nonce already used, rebuilding request", "future", job.FutureID, "sender", sender, "nonce", nonce)
			continue
		default:
			m.nonces.release(sender, nonce)
			return nil, err
		}
	}
}

// send submits the transaction at fee and records the accepted hash.
func (m *Manager) send(ctx context.Context, job Job, t *tracked, rec Recorder, fee *big.Int) error {
	tx := ledger.Transaction{Request: job.Request, Nonce: t.nonce, Fee: fee}
	var hash string
	err := m.retry(ctx, "send", func(ctx context.Context) error {
		h, err := m.client.SendTransaction(ctx, tx)
		if errors.Is(err, ledger.ErrAlreadyKnown) && h != "" {
			err = nil
		}
		hash = h
		return err
	})
	if err != nil {
		if IsExhausted(err) || ctx.Err() != nil ||
			errors.Is(err, ledger.ErrNonceTooLow) || errors.Is(err, ledger.ErrReplacementUnderpriced) {
			return err
		}
		return &RejectedError{FutureID: job.FutureID, Index: job.Index, Err: err}
	}

	if err := rec.Record(ctx, &journal.TransactionSent{
		Header: journal.Header{Future: job.FutureID},
		Index:  job.Index,
		Nonce:  t.nonce,
		Hash:   hash,
		Fee:    fee,
	}); err != nil {
		return err
	}

	t.fee = fee
	if !slices.Contains(t.hashes, hash) {
		t.hashes = append(t.hashes, hash)
	}
	t.sentAt = m.now()
	transactionsSent.WithLabelValues(string(job.Request.Kind)).Inc()
	m.logger.Debug("transaction sent", "future", job.FutureID, "index", job.Index, "sender", job.Request.From, "nonce", t.nonce, "hash", hash, "fee", fee)
	return nil
}

// await polls until one of the request's hashes is mined with enough
// confirmations, bumping the fee when the budget runs out and resending when
// every hash has been dropped.
func (m *Manager) await(ctx context.Context, job Job, t *tracked, rec Recorder) (ledger.Receipt, error) {
	for {
		if err := m.pause(ctx); err != nil {
			return ledger.Receipt{}, err
		}

		var head uint64
		if err := m.retry(ctx, "block number", func(ctx context.Context) error {
			var err error
			head, err = m.client.BlockNumber(ctx)
			return err
		}); err != nil {
			return ledger.Receipt{}, err
		}
		mined, pending, err := m.statuses(ctx, t)
		if err != nil {
			return ledger.Receipt{}, err
		}

		switch {
		case mined != nil:
			if mined.Confirmations(head) < uint64(m.cfg.RequiredConfirmations) {
				continue
			}
			return m.confirm(ctx, job, t, *mined, rec)

		case !pending:
			if err := m.resend(ctx, job, t, rec); err != nil {
				return ledger.Receipt{}, err
			}

		case m.now().Sub(t.sentAt) >= m.cfg.TransactionTimeoutBudget:
			if err := m.bump(ctx, job, t, rec); err != nil {
				return ledger.Receipt{}, err
			}
		}
	}
}

// statuses queries every hash of t. It returns the receipt of the mined hash,
// if any, and whether any hash is still pending.
func (m *Manager) statuses(ctx context.Context, t *tracked) (*ledger.Receipt, bool, error) {
	pending := false
	for _, hash := range t.hashes {
		var st ledger.TxStatus
		if err := m.retry(ctx, "status", func(ctx context.Context) error {
			var err error
			st, err = m.client.TransactionStatus(ctx, hash)
			return err
		}); err != nil {
			return nil, false, err
		}
		switch st.State {
		case ledger.TxMined:
			return st.Receipt, false, nil
		case ledger.TxPending:
			pending = true
		}
	}
	return nil, pending, nil
}

func (m *Manager) confirm(ctx context.Context, job Job, t *tracked, receipt ledger.Receipt, rec Recorder) (ledger.Receipt, error) {
	for _, h := range t.hashes {
		if h != receipt.Hash {
			superseded.Inc()
			m.logger.Debug("transaction superseded", "future", job.FutureID, "index", job.Index, "hash", h, "mined", receipt.Hash)
		}
	}
	if err := rec.Record(ctx, &journal.TransactionConfirmed{
		Header:  journal.Header{Future: job.FutureID},
		Index:   job.Index,
		Hash:    receipt.Hash,
		Receipt: receipt,
	}); err != nil {
		return ledger.Receipt{}, err
	}

	outcome := "success"
	if !receipt.Success {
		outcome = "reverted"
	}
	transactionsConfirmed.WithLabelValues(outcome).Inc()
	confirmationLatency.Observe(m.now().Sub(t.first).Seconds())
	m.logger.Info("transaction confirmed", "future", job.FutureID, "index", job.Index, "hash", receipt.Hash, "block", receipt.BlockNumber, "outcome", outcome)
	return m.settle(job, receipt)
}

func (m *Manager) resend(ctx context.Context, job Job, t *tracked, rec Recorder) error {
	latest := t.hashes[len(t.hashes)-1]
	if err := rec.Record(ctx, &journal.TransactionDropped{
		Header: journal.Header{Future: job.FutureID},
		Index:  job.Index,
		Hash:   latest,
	}); err != nil {
		return err
	}
	drops.Inc()
	t.resends++
	if t.resends > m.cfg.MaxResends {
		return &ExhaustedError{Op: "resend", Err: fmt.Errorf("transaction dropped %d times", t.resends)}
	}

	m.logger.Warn("transaction dropped, resending", "future", job.FutureID, "index", job.Index, "nonce", t.nonce, "hash", latest, "resend", t.resends)
	err := m.send(ctx, job, t, rec, t.fee)
	if errors.Is(err, ledger.ErrNonceTooLow) {
		return &UnknownOutcomeError{FutureID: job.FutureID, Index: job.Index, Nonce: t.nonce,
			Reason: "nonce consumed by a transaction outside this deployment"}
	}
	return err
}

func (m *Manager) bump(ctx context.Context, job Job, t *tracked, rec Recorder) error {
	if t.bumps >= m.cfg.MaxFeeBumps {
		return &ExhaustedError{Op: "fee bump", Err: fmt.Errorf("unmined after %d fee bumps", t.bumps)}
	}
	t.bumps++
	fee := bumpFee(m.cfg.BumpStrategy, m.cfg.GasBumpFactor, t.baseFee, t.fee, t.bumps)
	feeBumps.Inc()
	m.logger.Info("transaction unconfirmed past budget, bumping fee", "future", job.FutureID, "index", job.Index, "nonce", t.nonce, "fee", fee, "bump", t.bumps)

	err := m.send(ctx, job, t, rec, fee)
	switch {
	case errors.Is(err, ledger.ErrReplacementUnderpriced):
		t.fee = fee
		t.sentAt = m.now()
		return nil
	case errors.Is(err, ledger.ErrNonceTooLow):
		// A recorded hash was mined meanwhile; the next poll finds it.
		return nil
	default:
		return err
	}
}

// pause waits one poll interval.
func (m *Manager) pause(ctx context.Context) error {
	timer := time.NewTimer(m.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Manager) settle(job Job, receipt ledger.Receipt) (ledger.Receipt, error) {
	if !receipt.Success {
		return receipt, &RevertError{FutureID: job.FutureID, Index: job.Index, Hash: receipt.Hash, Reason: receipt.RevertReason}
	}
	return receipt, nil
}

// annotate fills the future and request of errors raised below Execute.
func (m *Manager) annotate(job Job, err error) error {
	var ee *ExhaustedError
	if errors.As(err, &ee) && ee.FutureID == "" {
		ee.FutureID, ee.Index = job.FutureID, job.Index
	}
	return err
}
