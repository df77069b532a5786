// Package journal defines the append-only execution journal: the messages
// recorded for every state transition of a deployment, their encoding, and
// the pure fold that derives deployment state from them.
//
// The journal is the single source of truth. State held in memory by the
// scheduler is always a projection obtained by applying the same messages
// with DeploymentState.Apply, so replaying a journal after a crash yields
// exactly the state the crashed process had recorded.
package journal

import (
	"context"
	"iter"
)

// Journal is durable, ordered storage for messages.
type Journal interface {
	// Append records m. When Append returns nil the message survives a
	// crash of the process.
	Append(ctx context.Context, m Message) error

	// Replay yields every message in append order. The sequence is lazy and
	// may be iterated more than once; each iteration starts from the first
	// message.
	Replay(ctx context.Context) iter.Seq2[Message, error]
}

// Load folds the full contents of j.
func Load(ctx context.Context, j Journal) (DeploymentState, error) {
	return Fold(j.Replay(ctx))
}
