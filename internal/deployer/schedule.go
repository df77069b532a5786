package deployer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/strategy"
	"github.com/roach88/ignite/internal/txmanager"
)

// loop runs the scheduler until nothing is ready and nothing is in flight.
// After cancellation or a fatal error it dispatches nothing more but still
// waits for every in-flight worker, so their outcomes are recorded.
func (r *run) loop(ctx context.Context) error {
	interrupted := false
	for {
		if r.fatal == nil {
			r.fatal = r.propagateFailures()
		}
		if r.fatal == nil && ctx.Err() == nil {
			r.fatal = r.dispatch(ctx)
		}
		if len(r.inFlight) == 0 {
			return r.fatal
		}

		if ctx.Err() != nil || r.fatal != nil {
			<-r.queue.Wait()
		} else {
			select {
			case <-r.queue.Wait():
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil && !interrupted {
			interrupted = true
			r.logger.Warn("deployment interrupted, waiting for in-flight futures", "inFlight", len(r.inFlight))
		}

		for {
			o, ok := r.queue.TryDequeue()
			if !ok {
				break
			}
			if err := r.settle(o); err != nil && r.fatal == nil {
				r.fatal = err
			}
		}
	}
}

// propagateFailures fails every waiting future with a failed dependency.
// Walking in topological order carries failures down whole chains in one
// pass.
func (r *run) propagateFailures() error {
	g := r.module.Graph()
	for _, id := range g.Order() {
		if r.inFlight[id] || !waiting(r.snapshot().Future(id).Status) {
			continue
		}
		deps := g.DependenciesOf(id)
		for _, dep := range deps {
			if r.snapshot().Future(dep).Status != journal.StatusFailed {
				continue
			}
			r.logger.Warn("future failed on dependency", "future", id, "cause", dep)
			err := r.record(&journal.FutureFailed{
				Header:       journal.Header{Future: id},
				Class:        journal.FailureDependency,
				Message:      fmt.Sprintf("dependency %s failed", dep),
				Cause:        dep,
				Dependencies: deps,
			})
			if err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// dispatch starts futures up to the concurrency limit. Futures left in
// progress by an earlier run go first, and no new future starts until they
// have settled: they hold nonces that later requests of the same sender
// queue behind.
func (r *run) dispatch(ctx context.Context) error {
	g := r.module.Graph()
	order := g.Order()

	for _, id := range order {
		if len(r.inFlight) >= r.limit {
			return nil
		}
		if r.inFlight[id] || r.snapshot().Future(id).Status != journal.StatusInProgress {
			continue
		}
		r.resuming[id] = true
		if err := r.start(ctx, id, true); err != nil {
			return err
		}
	}
	if len(r.resuming) > 0 {
		return nil
	}

	for _, id := range order {
		if len(r.inFlight) >= r.limit {
			return nil
		}
		if r.inFlight[id] {
			continue
		}
		state := r.snapshot()
		if !waiting(state.Future(id).Status) || !g.IsReady(id, completedSet(state)) {
			continue
		}
		if err := r.start(ctx, id, false); err != nil {
			return err
		}
	}
	return nil
}

func waiting(s journal.Status) bool {
	return s == journal.StatusUnstarted || s == journal.StatusReset
}

func completedSet(state journal.DeploymentState) map[string]bool {
	out := map[string]bool{}
	for id, fs := range state.Futures {
		if fs.Status == journal.StatusCompleted {
			out[id] = true
		}
	}
	return out
}

// start records the start of a future and hands it to a worker. A resumed
// future already has its start recorded.
func (r *run) start(ctx context.Context, id string, resumed bool) error {
	f, _ := r.module.Future(id)
	deps := f.Dependencies()

	if !resumed {
		if a, ok := r.validated.Artifact(id); ok {
			if err := r.deployer.loader.StoreArtifact(context.Background(), id, a); err != nil {
				return &recordError{err: fmt.Errorf("store artifact of %s: %w", id, err)}
			}
		}

		var sender string
		if sends(f) {
			s, err := strategy.Sender(f, r.env(nil))
			if err != nil {
				r.logger.Warn("future failed", "future", id, "class", journal.FailureResolution, "error", err)
				return r.record(&journal.FutureFailed{
					Header:  journal.Header{Future: id},
					Class:   journal.FailureResolution,
					Message: err.Error(),
				})
			}
			sender = s
		}
		err := r.record(&journal.ExecutionStarted{
			Header:       journal.Header{Future: id},
			Kind:         f.Kind(),
			Sender:       sender,
			Dependencies: deps,
			ParamsHash:   module.ParamsHash(f),
		})
		if err != nil {
			return err
		}
		r.logger.Info("future started", "future", id, "kind", f.Kind(), "sender", sender)
	} else {
		r.logger.Info("future resumed", "future", id, "kind", f.Kind())
	}

	prior := slices.Clone(r.snapshot().Future(id).Requests)
	env := r.env(deps)

	// The transaction manager detaches from ctx once a request is recorded,
	// so cancellation only stops work that has not reached the ledger.
	r.inFlight[id] = true
	go func() {
		value, err := r.execute(ctx, f, env, prior)
		stopped := err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
		r.queue.Enqueue(outcome{futureID: id, value: value, err: err, interrupted: stopped})
	}()
	return nil
}

// sends reports whether f is signed by an account.
func sends(f module.Future) bool {
	switch f.(type) {
	case *module.ReadEventArgument, *module.ContractAt:
		return false
	}
	return true
}

// settle records the outcome of a worker.
func (r *run) settle(o outcome) error {
	delete(r.inFlight, o.futureID)
	delete(r.resuming, o.futureID)

	if o.interrupted {
		r.logger.Info("future interrupted before sending, left in progress", "future", o.futureID)
		return nil
	}
	if o.err != nil {
		var re *recordError
		if errors.As(o.err, &re) {
			return o.err
		}
		class := classify(o.err)
		r.logger.Warn("future failed", "future", o.futureID, "class", class, "error", o.err)
		return r.record(&journal.FutureFailed{
			Header:  journal.Header{Future: o.futureID},
			Class:   class,
			Message: o.err.Error(),
		})
	}

	r.logger.Info("future completed", "future", o.futureID)
	return r.record(&journal.FutureCompleted{
		Header: journal.Header{Future: o.futureID},
		Result: o.value,
	})
}

// classify maps a worker error to the failure class recorded for it.
func classify(err error) journal.FailureClass {
	var (
		revert     *txmanager.RevertError
		unknown    *txmanager.UnknownOutcomeError
		exhausted  *txmanager.ExhaustedError
		rejected   *txmanager.RejectedError
		call       *ledger.CallError
		resolution *strategy.ResolutionError
	)
	switch {
	case errors.As(err, &revert):
		return journal.FailureReverted
	case errors.As(err, &unknown):
		return journal.FailureUnknownOutcome
	case errors.As(err, &rejected):
		return journal.FailureRejected
	case errors.As(err, &exhausted):
		return journal.FailureTransportExhausted
	case errors.As(err, &call):
		return journal.FailureStaticCall
	case errors.As(err, &resolution):
		return journal.FailureResolution
	default:
		return journal.FailureTransportExhausted
	}
}
