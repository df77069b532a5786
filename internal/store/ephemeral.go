package store

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/journal"
)

// Ephemeral is an in-memory Loader.
type Ephemeral struct {
	mu        sync.Mutex
	messages  []journal.Message
	artifacts map[string]artifact.Artifact
}

// NewEphemeral returns an empty in-memory loader.
func NewEphemeral() *Ephemeral {
	return &Ephemeral{artifacts: map[string]artifact.Artifact{}}
}

// Append implements journal.Journal.
func (e *Ephemeral) Append(_ context.Context, m journal.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkSeq(int64(len(e.messages)), m); err != nil {
		return err
	}
	e.messages = append(e.messages, m)
	return nil
}

// Replay implements journal.Journal. Each iteration sees the messages
// appended before it started.
func (e *Ephemeral) Replay(ctx context.Context) iter.Seq2[journal.Message, error] {
	return func(yield func(journal.Message, error) bool) {
		e.mu.Lock()
		snapshot := slices.Clone(e.messages)
		e.mu.Unlock()

		for _, m := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// StoreArtifact implements Loader.
func (e *Ephemeral) StoreArtifact(_ context.Context, futureID string, a artifact.Artifact) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.artifacts[futureID] = a
	return nil
}

// LoadArtifact implements Loader.
func (e *Ephemeral) LoadArtifact(_ context.Context, futureID string) (artifact.Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.artifacts[futureID]
	if !ok {
		return artifact.Artifact{}, fmt.Errorf("future %s: %w", futureID, artifact.ErrArtifactNotFound)
	}
	return a, nil
}

// Close implements Loader.
func (e *Ephemeral) Close() error { return nil }

func checkSeq(last int64, m journal.Message) error {
	if seq := journal.Head(m).Seq; seq != last+1 {
		return fmt.Errorf("append %s: sequence %d does not follow %d", m.Type(), seq, last)
	}
	return nil
}
