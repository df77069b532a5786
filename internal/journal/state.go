package journal

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"math/big"
	"slices"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
)

// ErrInvalidTransition is returned when a message cannot follow the state
// it is applied to. A journal that produces one is corrupt.
var ErrInvalidTransition = errors.New("invalid journal transition")

// Status is the lifecycle status of a future.
type Status string

const (
	StatusUnstarted  Status = "unstarted"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReset      Status = "reset"
)

// Failure describes why a future failed.
type Failure struct {
	Class   FailureClass
	Message string
	Cause   string
}

// RequestState is the lifecycle of one transaction request of a future.
type RequestState struct {
	Index   int
	Request ledger.Request
	Nonce   uint64
	Fee     *big.Int
	// Hashes lists every hash sent for this nonce, oldest first.
	Hashes    []string
	Dropped   int
	Confirmed *ledger.Receipt
}

// Sent reports whether any transaction was accepted for this request.
func (r RequestState) Sent() bool { return len(r.Hashes) > 0 }

// FutureState is the derived state of one future.
type FutureState struct {
	ID           string
	Status       Status
	Kind         module.Kind
	Sender       string
	Dependencies []string
	ParamsHash   string
	Requests     []RequestState
	Result       ir.Value
	Failure      *Failure
	FirstSeq     int64
	LastSeq      int64
}

// DeploymentState is the fold of a journal. Values are never mutated once
// returned: Apply builds a new state.
type DeploymentState struct {
	Initialized   bool
	ChainID       int64
	ModuleID      string
	EngineVersion string
	Futures       map[string]FutureState
	LastSeq       int64
}

// NewState returns the state of an empty journal.
func NewState() DeploymentState {
	return DeploymentState{Futures: map[string]FutureState{}}
}

// Fold replays messages into a state.
func Fold(messages iter.Seq2[Message, error]) (DeploymentState, error) {
	s := NewState()
	for m, err := range messages {
		if err != nil {
			return DeploymentState{}, err
		}
		s, err = s.Apply(m)
		if err != nil {
			return DeploymentState{}, err
		}
	}
	return s, nil
}

func transitionf(m Message, format string, args ...any) error {
	h := Head(m)
	return fmt.Errorf("%w: seq %d %s %s: %s", ErrInvalidTransition, h.Seq, m.Type(), h.Future, fmt.Sprintf(format, args...))
}

// Apply returns the state after m. s is not modified.
func (s DeploymentState) Apply(m Message) (DeploymentState, error) {
	h := Head(m)
	if h.Seq <= s.LastSeq {
		return s, transitionf(m, "sequence not after %d", s.LastSeq)
	}

	next := s
	next.Futures = maps.Clone(s.Futures)
	if next.Futures == nil {
		next.Futures = map[string]FutureState{}
	}
	next.LastSeq = h.Seq

	if di, ok := m.(*DeploymentInitialized); ok {
		if s.Initialized {
			return s, transitionf(m, "deployment already initialized")
		}
		next.Initialized = true
		next.ChainID = di.ChainID
		next.ModuleID = di.ModuleID
		next.EngineVersion = di.EngineVersion
		return next, nil
	}

	if !s.Initialized {
		return s, transitionf(m, "deployment not initialized")
	}
	if h.Future == "" {
		return s, transitionf(m, "message has no future")
	}

	fs, known := s.Futures[h.Future]
	if !known {
		fs = FutureState{ID: h.Future, Status: StatusUnstarted, FirstSeq: h.Seq}
	}
	fs.LastSeq = h.Seq

	var err error
	switch msg := m.(type) {
	case *ExecutionStarted:
		if fs.Status != StatusUnstarted && fs.Status != StatusReset {
			return s, transitionf(m, "future is %s", fs.Status)
		}
		fs = FutureState{
			ID:           fs.ID,
			Status:       StatusInProgress,
			Kind:         msg.Kind,
			Sender:       msg.Sender,
			Dependencies: slices.Clone(msg.Dependencies),
			ParamsHash:   msg.ParamsHash,
			FirstSeq:     fs.FirstSeq,
			LastSeq:      h.Seq,
		}

	case *RequestBuilt:
		fs, err = applyRequestBuilt(fs, msg)

	case *TransactionSent:
		fs, err = updateRequest(fs, msg.Index, func(r *RequestState) error {
			if r.Nonce != msg.Nonce {
				return fmt.Errorf("nonce %d does not match request nonce %d", msg.Nonce, r.Nonce)
			}
			if slices.Contains(r.Hashes, msg.Hash) {
				return nil
			}
			r.Hashes = append(slices.Clone(r.Hashes), msg.Hash)
			r.Fee = msg.Fee
			return nil
		})

	case *TransactionDropped:
		fs, err = updateRequest(fs, msg.Index, func(r *RequestState) error {
			if !slices.Contains(r.Hashes, msg.Hash) {
				return fmt.Errorf("hash %s was never sent", msg.Hash)
			}
			r.Dropped++
			return nil
		})

	case *TransactionConfirmed:
		fs, err = updateRequest(fs, msg.Index, func(r *RequestState) error {
			if !slices.Contains(r.Hashes, msg.Hash) {
				return fmt.Errorf("hash %s was never sent", msg.Hash)
			}
			receipt := msg.Receipt
			r.Confirmed = &receipt
			return nil
		})

	case *FutureCompleted:
		if fs.Status != StatusInProgress {
			return s, transitionf(m, "future is %s", fs.Status)
		}
		fs.Status = StatusCompleted
		fs.Result = msg.Result

	case *FutureFailed:
		switch fs.Status {
		case StatusInProgress, StatusUnstarted, StatusReset:
		default:
			return s, transitionf(m, "future is %s", fs.Status)
		}
		fs.Status = StatusFailed
		fs.Failure = &Failure{Class: msg.Class, Message: msg.Message, Cause: msg.Cause}
		if len(fs.Dependencies) == 0 {
			fs.Dependencies = slices.Clone(msg.Dependencies)
		}

	case *FutureReset:
		if !known {
			return s, transitionf(m, "future has no recorded state")
		}
		if fs.Status == StatusInProgress {
			return s, transitionf(m, "future is in progress")
		}
		fs = FutureState{ID: fs.ID, Status: StatusReset, FirstSeq: fs.FirstSeq, LastSeq: h.Seq}

	default:
		return s, transitionf(m, "unhandled message type %T", m)
	}
	if err != nil {
		return s, transitionf(m, "%v", err)
	}

	next.Futures[h.Future] = fs
	return next, nil
}

func applyRequestBuilt(fs FutureState, msg *RequestBuilt) (FutureState, error) {
	if fs.Status != StatusInProgress {
		return fs, fmt.Errorf("future is %s", fs.Status)
	}
	n := len(fs.Requests)
	r := RequestState{Index: msg.Index, Request: msg.Request, Nonce: msg.Nonce, Fee: msg.Fee}
	switch {
	case msg.Index == n:
		fs.Requests = append(slices.Clone(fs.Requests), r)
	case msg.Index == n-1 && !fs.Requests[n-1].Sent():
		fs.Requests = slices.Clone(fs.Requests)
		fs.Requests[n-1] = r
	default:
		return fs, fmt.Errorf("request index %d out of order (%d requests)", msg.Index, n)
	}
	return fs, nil
}

func updateRequest(fs FutureState, index int, update func(*RequestState) error) (FutureState, error) {
	if fs.Status != StatusInProgress {
		return fs, fmt.Errorf("future is %s", fs.Status)
	}
	if index < 0 || index >= len(fs.Requests) {
		return fs, fmt.Errorf("unknown request index %d", index)
	}
	fs.Requests = slices.Clone(fs.Requests)
	r := fs.Requests[index]
	if err := update(&r); err != nil {
		return fs, err
	}
	fs.Requests[index] = r
	return fs, nil
}

// Future returns the state of id. Futures absent from the journal are
// unstarted.
func (s DeploymentState) Future(id string) FutureState {
	if fs, ok := s.Futures[id]; ok {
		return fs
	}
	return FutureState{ID: id, Status: StatusUnstarted}
}

// Completed returns the results of every completed future.
func (s DeploymentState) Completed() map[string]ir.Value {
	out := make(map[string]ir.Value)
	for id, fs := range s.Futures {
		if fs.Status == StatusCompleted {
			out[id] = fs.Result
		}
	}
	return out
}

// IDs returns every future with recorded state, ordered by first appearance.
func (s DeploymentState) IDs() []string {
	ids := slices.Collect(maps.Keys(s.Futures))
	slices.SortFunc(ids, func(a, b string) int {
		return int(s.Futures[a].FirstSeq - s.Futures[b].FirstSeq)
	})
	return ids
}

// NonceFloors returns, per sender, one past the highest nonce the journal
// holds claimed: every sent request, and the unsent requests of in-progress
// futures, which resume on their recorded nonce. A sender must never reuse a
// nonce below its floor for a new request.
func (s DeploymentState) NonceFloors() map[string]uint64 {
	floors := map[string]uint64{}
	for _, fs := range s.Futures {
		for _, r := range fs.Requests {
			if !r.Sent() && fs.Status != StatusInProgress {
				continue
			}
			if next := r.Nonce + 1; next > floors[r.Request.From] {
				floors[r.Request.From] = next
			}
		}
	}
	return floors
}

// Logs returns the event logs of every confirmed transaction of a future,
// in request order.
func (fs FutureState) Logs() []ledger.Log {
	var logs []ledger.Log
	for _, r := range fs.Requests {
		if r.Confirmed != nil {
			logs = append(logs, r.Confirmed.Logs...)
		}
	}
	return logs
}
