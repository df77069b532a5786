package deployer

import "github.com/roach88/ignite/internal/journal"

// Event reports one journal message recorded by a run.
type Event struct {
	RunID    string
	Seq      int64
	FutureID string
	Type     journal.Type
	Message  journal.Message
}

// Listener observes a run. HandleEvent is called synchronously under the
// recorder lock, in journal order; it must not block. A panicking listener
// is logged and otherwise ignored.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// HandleEvent calls f.
func (f ListenerFunc) HandleEvent(e Event) { f(e) }

type nopListener struct{}

func (nopListener) HandleEvent(Event) {}
