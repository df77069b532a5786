package txmanager

import (
	"context"
	"sync"
)

// nonces is the sender nonce ledger. next[sender] is the lowest nonce not
// yet handed out in this run; floors come from the journal.
type nonces struct {
	mu     sync.Mutex
	next   map[string]uint64
	floors map[string]uint64
}

func newNonces() *nonces {
	return &nonces{next: map[string]uint64{}, floors: map[string]uint64{}}
}

func (n *nonces) seed(floors map[string]uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sender, floor := range floors {
		n.floors[sender] = max(n.floors[sender], floor)
	}
}

// reserve hands out the next nonce of sender given the ledger's pending
// nonce. Callers hold the sender's lane.
func (n *nonces) reserve(sender string, pending uint64) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	nonce := max(pending, n.floors[sender], n.next[sender])
	n.next[sender] = nonce + 1
	return nonce
}

// claim marks nonce as used by a resumed request.
func (n *nonces) claim(sender string, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next[sender] = max(n.next[sender], nonce+1)
}

// release returns a reserved nonce that was never sent, when it is still the
// latest one handed out.
func (n *nonces) release(sender string, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.next[sender] == nonce+1 {
		n.next[sender] = nonce
	}
	if n.floors[sender] == nonce+1 {
		n.floors[sender] = nonce
	}
}

// lanes serializes the transactions of each sender: a lane is held from
// nonce assignment until the transaction settles.
type lanes struct {
	mu    sync.Mutex
	lanes map[string]chan struct{}
}

func newLanes() *lanes {
	return &lanes{lanes: map[string]chan struct{}{}}
}

// acquire waits for the lane of sender. A cancelled ctx wins over a free
// lane.
func (l *lanes) acquire(ctx context.Context, sender string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	ch, ok := l.lanes[sender]
	if !ok {
		ch = make(chan struct{}, 1)
		l.lanes[sender] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
