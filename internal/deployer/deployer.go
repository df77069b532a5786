package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/ignite/internal/config"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/store"
	"github.com/roach88/ignite/internal/strategy"
	"github.com/roach88/ignite/internal/txmanager"
	"github.com/roach88/ignite/internal/validate"
)

// Params are the deploy-time inputs of a run.
type Params struct {
	// Parameters holds module parameter values keyed by module id.
	Parameters map[string]ir.Object

	// Accounts are the signers available to the run, in Account index order.
	Accounts []string

	// DefaultSender signs futures that name no sender. Empty selects the
	// first account.
	DefaultSender string
}

// Deployer runs validated modules against one ledger and one deployment
// loader.
//
// Thread-safety model:
//   - Deploy: one call at a time per loader; the journal has a single writer
//   - Listener: called from worker goroutines, serialized by the recorder lock
type Deployer struct {
	loader   store.Loader
	client   ledger.Client
	cfg      config.Deploy
	listener Listener
	logger   *slog.Logger
	runIDs   RunIDGenerator
	now      func() time.Time
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithListener sets the observer of recorded messages.
func WithListener(l Listener) Option {
	return func(d *Deployer) { d.listener = l }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(d *Deployer) { d.logger = l }
}

// WithRunIDGenerator sets the run id source (default UUIDv7Generator).
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(d *Deployer) { d.runIDs = g }
}

// WithNow sets the wall clock used for message timestamps (default
// time.Now). Timestamps are informational; ordering uses Clock.
func WithNow(now func() time.Time) Option {
	return func(d *Deployer) { d.now = now }
}

// New creates a Deployer. cfg is resolved against the ledger at the start
// of every run (see config.Deploy.Resolve).
func New(loader store.Loader, client ledger.Client, cfg config.Deploy, opts ...Option) *Deployer {
	d := &Deployer{
		loader:   loader,
		client:   client,
		cfg:      cfg,
		listener: nopListener{},
		logger:   slog.Default(),
		runIDs:   UUIDv7Generator{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy drives every future of the module to a terminal state, resuming
// from the journal when the loader already holds one.
//
// Failures of individual futures are reported in the Result. The returned
// error is reserved for runs that cannot proceed: operator errors, a corrupt
// or foreign journal, and journal write failures. When ctx is cancelled no
// new future starts, in-flight futures settle, and the Result is marked
// Interrupted.
func (d *Deployer) Deploy(ctx context.Context, v *validate.Validated, p Params) (*Result, error) {
	m := v.Module()
	runID := d.runIDs.Generate()
	logger := d.logger.With("run", runID, "module", m.ID())

	if p.DefaultSender == "" && len(p.Accounts) > 0 {
		p.DefaultSender = p.Accounts[0]
	}
	if err := checkOperator(m, p); err != nil {
		return nil, err
	}

	chainID, err := d.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	autoMining, err := d.client.IsAutoMining(ctx)
	if err != nil {
		return nil, fmt.Errorf("mining mode: %w", err)
	}
	cfg := d.cfg.Resolve(autoMining)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	state, err := journal.Load(ctx, d.loader)
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	r := &run{
		id:        runID,
		deployer:  d,
		validated: v,
		module:    m,
		params:    p,
		logger:    logger,
		clock:     NewClockAt(state.LastSeq),
		state:     state,
		queue:     newOutcomeQueue(),
		inFlight:  map[string]bool{},
		resuming:  map[string]bool{},
		limit:     cfg.ConcurrencyLimit,
	}

	if state.Initialized {
		if err := checkJournal(state, chainID, m.ID()); err != nil {
			return nil, err
		}
		if err := Reconcile(m, state, r.env(nil)); err != nil {
			var re *ReconciliationError
			if !errors.As(err, &re) {
				return nil, err
			}
			msgs := make([]string, len(re.Mismatches))
			for i, mm := range re.Mismatches {
				msgs[i] = mm.String()
			}
			logger.Warn("journal does not match module", "mismatches", len(msgs))
			return ValidationFailure(runID, msgs), nil
		}
		logger.Info("resuming deployment", "entries", state.LastSeq, "chain", chainID)
	} else {
		if err := r.record(&journal.DeploymentInitialized{
			ChainID:       chainID,
			ModuleID:      m.ID(),
			EngineVersion: ir.EngineVersion,
		}); err != nil {
			return nil, err
		}
		logger.Info("deployment initialized", "chain", chainID)
	}

	r.manager = txmanager.New(d.client, cfg, txmanager.WithLogger(logger))
	r.manager.SeedNonces(r.state.NonceFloors())

	if err := r.loop(ctx); err != nil {
		return nil, err
	}

	res := buildResult(runID, m, r.snapshot(), ctx.Err() != nil)
	logger.Info("deployment finished",
		"status", res.Status,
		"completed", len(res.Completed),
		"failed", len(res.Failed),
		"interrupted", res.Interrupted)
	return res, nil
}

// checkOperator verifies that every sender the module can name statically
// is one of the available accounts.
func checkOperator(m *module.Module, p Params) error {
	if p.DefaultSender == "" {
		return operatorf(ErrCodeUnknownSender, "", "no accounts available")
	}
	if !hasAccount(p.Accounts, p.DefaultSender) {
		return operatorf(ErrCodeUnknownSender, "", "default sender %s is not an available account", p.DefaultSender)
	}
	for _, f := range m.Futures() {
		switch a := f.Sender().(type) {
		case module.Literal:
			s, ok := a.Value.(ir.String)
			if !ok || !hasAccount(p.Accounts, string(s)) {
				return operatorf(ErrCodeUnknownSender, f.ID(), "sender %v is not an available account", a.Value)
			}
		case module.Account:
			if a.Index < 0 || a.Index >= len(p.Accounts) {
				return operatorf(ErrCodeUnknownSender, f.ID(), "account index %d out of range (%d accounts)", a.Index, len(p.Accounts))
			}
		}
	}
	return nil
}

func hasAccount(accounts []string, addr string) bool {
	return slices.ContainsFunc(accounts, func(a string) bool { return strings.EqualFold(a, addr) })
}

// checkJournal verifies that a replayed journal belongs to this deployment.
func checkJournal(state journal.DeploymentState, chainID int64, moduleID string) error {
	if state.ChainID != chainID {
		return operatorf(ErrCodeChainMismatch, "", "journal was recorded on chain %d, ledger is chain %d", state.ChainID, chainID)
	}
	if state.ModuleID != moduleID {
		return operatorf(ErrCodeModuleMismatch, "", "journal was recorded for module %s, deploying %s", state.ModuleID, moduleID)
	}
	if err := journal.CheckVersion(state.EngineVersion, ir.EngineVersion); err != nil {
		return &OperatorError{Code: ErrCodeEngineVersion, Message: err.Error()}
	}
	return nil
}

// run is the state of one Deploy call.
type run struct {
	id        string
	deployer  *Deployer
	validated *validate.Validated
	module    *module.Module
	params    Params
	logger    *slog.Logger
	manager   *txmanager.Manager
	clock     *Clock
	queue     *outcomeQueue
	limit     int

	// Owned by the scheduler goroutine.
	inFlight map[string]bool
	resuming map[string]bool
	fatal    error

	// mu guards state and serializes appends.
	mu    sync.Mutex
	state journal.DeploymentState
}

// record appends m to the journal and applies it to the projection. The
// message is checked against the projection first, so an impossible
// transition never reaches the journal.
func (r *run) record(m journal.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	journal.Stamp(m, r.clock.Next(), r.deployer.now())
	next, err := r.state.Apply(m)
	if err != nil {
		return &recordError{err: err}
	}
	// Appends must not be abandoned half way when the run is cancelled.
	if err := r.deployer.loader.Append(context.Background(), m); err != nil {
		return &recordError{err: err}
	}
	r.state = next
	r.emit(m)
	return nil
}

// emit notifies the listener. Listener panics are contained.
func (r *run) emit(m journal.Message) {
	h := journal.Head(m)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("listener panicked", "seq", h.Seq, "type", m.Type(), "panic", p)
		}
	}()
	r.deployer.listener.HandleEvent(Event{
		RunID:    r.id,
		Seq:      h.Seq,
		FutureID: h.Future,
		Type:     m.Type(),
		Message:  m,
	})
}

func (r *run) snapshot() journal.DeploymentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// env builds the resolution environment from the recorded state. logsOf
// lists the futures whose event logs are made available.
func (r *run) env(logsOf []string) strategy.Env {
	state := r.snapshot()
	env := strategy.Env{
		Env: module.Env{
			Completed:  state.Completed(),
			Parameters: r.params.Parameters,
			Accounts:   r.params.Accounts,
			ModuleID:   r.module.ID(),
		},
		DefaultSender: r.params.DefaultSender,
		Logs:          map[string][]ledger.Log{},
		Artifacts:     r.deployer.loader,
	}
	for _, id := range logsOf {
		if fs := state.Future(id); fs.Status == journal.StatusCompleted {
			env.Logs[id] = fs.Logs()
		}
	}
	return env
}
