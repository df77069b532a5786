package store

import (
	"context"
	"errors"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/journal"
)

// ErrCorruptJournal is returned by Replay when stored entries fail
// verification. It is fatal: the deployment cannot resume from the journal.
var ErrCorruptJournal = errors.New("corrupt journal")

// Loader is the storage backend of one deployment.
type Loader interface {
	journal.Journal

	// StoreArtifact records the artifact used by future id so that requests
	// can be re-derived after a restart.
	StoreArtifact(ctx context.Context, futureID string, a artifact.Artifact) error

	// LoadArtifact returns the artifact recorded for future id.
	LoadArtifact(ctx context.Context, futureID string) (artifact.Artifact, error)

	Close() error
}

// Open returns an Ephemeral loader when dir is empty and a Durable loader
// rooted at dir otherwise.
func Open(dir string) (Loader, error) {
	if dir == "" {
		return NewEphemeral(), nil
	}
	return OpenDurable(dir)
}
