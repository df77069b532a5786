// Package wiper invalidates recorded futures so the next run executes them
// again.
package wiper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/ignite/internal/journal"
)

// UnknownFutureError reports a future the journal has no state for.
type UnknownFutureError struct {
	FutureID string
}

func (e *UnknownFutureError) Error() string {
	return fmt.Sprintf("future %s has no recorded state", e.FutureID)
}

// InProgressError reports a wipe that would invalidate a future with
// transactions that may still land.
type InProgressError struct {
	FutureID string
	// InProgress lists the members of the wipe set that are in progress.
	InProgress []string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("cannot wipe %s: in progress: %s", e.FutureID, strings.Join(e.InProgress, ", "))
}

// IsUnknownFuture reports whether err is or wraps an UnknownFutureError.
func IsUnknownFuture(err error) bool {
	var ue *UnknownFutureError
	return errors.As(err, &ue)
}

// IsInProgress reports whether err is or wraps an InProgressError.
func IsInProgress(err error) bool {
	var ie *InProgressError
	return errors.As(err, &ie)
}

// Wiper resets futures in a deployment journal.
type Wiper struct {
	journal journal.Journal
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Wiper.
type Option func(*Wiper)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(w *Wiper) { w.logger = l }
}

// WithNow sets the clock used for message timestamps (default time.Now).
func WithNow(now func() time.Time) Option {
	return func(w *Wiper) { w.now = now }
}

// New creates a Wiper over j. j must not be written by a running
// deployment at the same time.
func New(j journal.Journal, opts ...Option) *Wiper {
	w := &Wiper{journal: j, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wipe appends a future-reset for futureID and for every recorded future
// that depends on it, directly or through a dependency failure. It returns
// the reset ids in journal order. If any of them is in progress nothing is
// appended.
func (w *Wiper) Wipe(ctx context.Context, futureID string) ([]string, error) {
	state, err := journal.Load(ctx, w.journal)
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	if _, ok := state.Futures[futureID]; !ok {
		return nil, &UnknownFutureError{FutureID: futureID}
	}

	set := wipeSet(state, futureID)
	var inProgress, ids []string
	for _, id := range state.IDs() {
		if !set[id] {
			continue
		}
		switch state.Futures[id].Status {
		case journal.StatusInProgress:
			inProgress = append(inProgress, id)
		case journal.StatusReset:
			// Already runs afresh.
		default:
			ids = append(ids, id)
		}
	}
	if len(inProgress) > 0 {
		return nil, &InProgressError{FutureID: futureID, InProgress: inProgress}
	}

	// Check every reset against the state before anything is appended.
	msgs := make([]journal.Message, len(ids))
	next := state
	for i, id := range ids {
		m := &journal.FutureReset{Header: journal.Header{Future: id}}
		journal.Stamp(m, next.LastSeq+1, w.now())
		if next, err = next.Apply(m); err != nil {
			return nil, err
		}
		msgs[i] = m
	}
	for _, m := range msgs {
		if err := w.journal.Append(ctx, m); err != nil {
			return nil, fmt.Errorf("append reset of %s: %w", journal.Head(m).Future, err)
		}
	}
	w.logger.Info("futures wiped", "future", futureID, "reset", len(ids))
	return ids, nil
}

// wipeSet returns futureID and its transitive dependents, derived from the
// dependencies recorded at execution start or on a dependency failure. The
// failure's cause is followed too, for journals whose failures carry no
// dependency list.
func wipeSet(state journal.DeploymentState, futureID string) map[string]bool {
	dependents := map[string][]string{}
	for id, fs := range state.Futures {
		for _, dep := range fs.Dependencies {
			dependents[dep] = append(dependents[dep], id)
		}
		if fs.Failure != nil && fs.Failure.Cause != "" && !slices.Contains(fs.Dependencies, fs.Failure.Cause) {
			dependents[fs.Failure.Cause] = append(dependents[fs.Failure.Cause], id)
		}
	}

	set := map[string]bool{futureID: true}
	stack := []string{futureID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range dependents[id] {
			if !set[d] {
				set[d] = true
				stack = append(stack, d)
			}
		}
	}
	return set
}
