package journal

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
)

type seqMessages struct {
	seq int64
	at  time.Time
}

func (s *seqMessages) stamp(m Message) Message {
	s.seq++
	Stamp(m, s.seq, s.at)
	return m
}

func at(future string) Header { return Header{Future: future} }

// happyPath records a single-request future through to completion.
func happyPath() []Message {
	s := &seqMessages{at: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	req := ledger.Request{Kind: ledger.RequestCreate, From: "0xaa", Contract: "Counter"}
	return []Message{
		s.stamp(&DeploymentInitialized{ChainID: 31337, ModuleID: "M", EngineVersion: "1.0.0"}),
		s.stamp(&ExecutionStarted{Header: at("M#A"), Kind: module.KindDeployContract, Sender: "0xaa", ParamsHash: "h"}),
		s.stamp(&RequestBuilt{Header: at("M#A"), Index: 0, Request: req, Nonce: 4, Fee: big.NewInt(10)}),
		s.stamp(&TransactionSent{Header: at("M#A"), Index: 0, Nonce: 4, Hash: "0x01", Fee: big.NewInt(10)}),
		s.stamp(&TransactionSent{Header: at("M#A"), Index: 0, Nonce: 4, Hash: "0x02", Fee: big.NewInt(12)}),
		s.stamp(&TransactionConfirmed{Header: at("M#A"), Index: 0, Hash: "0x01", Receipt: ledger.Receipt{Hash: "0x01", Success: true, ContractAddress: "0xc0"}}),
		s.stamp(&FutureCompleted{Header: at("M#A"), Result: ir.String("0xc0")}),
	}
}

func foldAll(t *testing.T, msgs []Message) DeploymentState {
	t.Helper()
	s := NewState()
	var err error
	for _, m := range msgs {
		s, err = s.Apply(m)
		require.NoError(t, err)
	}
	return s
}

func TestApplyHappyPath(t *testing.T) {
	s := foldAll(t, happyPath())

	assert.True(t, s.Initialized)
	assert.Equal(t, int64(31337), s.ChainID)
	assert.Equal(t, int64(7), s.LastSeq)

	fs := s.Future("M#A")
	assert.Equal(t, StatusCompleted, fs.Status)
	assert.Equal(t, ir.String("0xc0"), fs.Result)
	require.Len(t, fs.Requests, 1)
	assert.Equal(t, []string{"0x01", "0x02"}, fs.Requests[0].Hashes)
	assert.Equal(t, big.NewInt(12), fs.Requests[0].Fee)
	require.NotNil(t, fs.Requests[0].Confirmed)
	assert.Equal(t, "0xc0", fs.Requests[0].Confirmed.ContractAddress)

	assert.Equal(t, map[string]uint64{"0xaa": 5}, s.NonceFloors())
	assert.Equal(t, StatusUnstarted, s.Future("M#Other").Status)
}

func TestApplyDoesNotMutateReceiver(t *testing.T) {
	msgs := happyPath()
	before := foldAll(t, msgs[:4])
	snapshot := before.Future("M#A")

	after, err := before.Apply(msgs[4])
	require.NoError(t, err)

	assert.Equal(t, []string{"0x01"}, before.Future("M#A").Requests[0].Hashes)
	assert.Equal(t, snapshot, before.Future("M#A"))
	assert.Equal(t, []string{"0x01", "0x02"}, after.Future("M#A").Requests[0].Hashes)
}

func TestApplyRejectsInvalidTransitions(t *testing.T) {
	msgs := happyPath()
	initialized := foldAll(t, msgs[:1])
	started := foldAll(t, msgs[:2])
	completed := foldAll(t, msgs)

	tests := []struct {
		name  string
		state DeploymentState
		msg   Message
	}{
		{"before init", NewState(), &ExecutionStarted{Header: Header{Seq: 1, Future: "M#A"}}},
		{"double init", initialized, &DeploymentInitialized{Header: Header{Seq: 2}}},
		{"stale seq", started, &FutureCompleted{Header: Header{Seq: 2, Future: "M#A"}}},
		{"sent without request", started, &TransactionSent{Header: Header{Seq: 3, Future: "M#A"}, Index: 0}},
		{"complete unstarted", initialized, &FutureCompleted{Header: Header{Seq: 2, Future: "M#B"}}},
		{"restart completed", completed, &ExecutionStarted{Header: Header{Seq: 8, Future: "M#A"}}},
		{"reset in progress", started, &FutureReset{Header: Header{Seq: 3, Future: "M#A"}}},
		{"reset unknown", initialized, &FutureReset{Header: Header{Seq: 2, Future: "M#Z"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.state.Apply(tt.msg)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestResetClearsFutureState(t *testing.T) {
	s := foldAll(t, happyPath())
	s, err := s.Apply(&FutureReset{Header: Header{Seq: 8, Future: "M#A"}})
	require.NoError(t, err)

	fs := s.Future("M#A")
	assert.Equal(t, StatusReset, fs.Status)
	assert.Empty(t, fs.Requests)
	assert.Nil(t, fs.Result)
	assert.NotContains(t, s.Completed(), "M#A")

	s, err = s.Apply(&ExecutionStarted{Header: Header{Seq: 9, Future: "M#A"}, Kind: module.KindDeployContract})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s.Future("M#A").Status)
}

func TestDependencyFailureOnUnstartedFuture(t *testing.T) {
	s := foldAll(t, happyPath()[:1])
	s, err := s.Apply(&FutureFailed{Header: Header{Seq: 2, Future: "M#D"}, Class: FailureDependency, Cause: "M#E"})
	require.NoError(t, err)

	fs := s.Future("M#D")
	assert.Equal(t, StatusFailed, fs.Status)
	assert.Equal(t, "M#E", fs.Failure.Cause)
}

func TestDependencyFailureRecordsDependencies(t *testing.T) {
	s := foldAll(t, happyPath()[:1])
	s, err := s.Apply(&FutureFailed{
		Header:       Header{Seq: 2, Future: "M#D"},
		Class:        FailureDependency,
		Cause:        "M#E",
		Dependencies: []string{"M#E", "M#F"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"M#E", "M#F"}, s.Future("M#D").Dependencies)

	// A started future keeps the dependencies it started with.
	s = foldAll(t, happyPath()[:1])
	s, err = s.Apply(&ExecutionStarted{Header: Header{Seq: 2, Future: "M#B"}, Kind: module.KindCallFunction, Dependencies: []string{"M#A"}})
	require.NoError(t, err)
	s, err = s.Apply(&FutureFailed{
		Header:       Header{Seq: 3, Future: "M#B"},
		Class:        FailureDependency,
		Cause:        "M#Z",
		Dependencies: []string{"M#Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"M#A"}, s.Future("M#B").Dependencies)
}

func TestRebuildUnsentRequestReplacesIt(t *testing.T) {
	msgs := happyPath()[:3]
	s := foldAll(t, msgs)

	s, err := s.Apply(&RequestBuilt{Header: Header{Seq: 4, Future: "M#A"}, Index: 0, Nonce: 9})
	require.NoError(t, err)
	require.Len(t, s.Future("M#A").Requests, 1)
	assert.Equal(t, uint64(9), s.Future("M#A").Requests[0].Nonce)
}

func TestIDsOrderedByFirstAppearance(t *testing.T) {
	s := foldAll(t, happyPath()[:1])
	var err error
	for i, id := range []string{"M#C", "M#A", "M#B"} {
		s, err = s.Apply(&ExecutionStarted{Header: Header{Seq: int64(i + 2), Future: id}})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"M#C", "M#A", "M#B"}, s.IDs())
}

func TestNonceFloorsIgnoreAbandonedRequests(t *testing.T) {
	s := foldAll(t, happyPath())
	req := ledger.Request{Kind: ledger.RequestCall, From: "0xaa"}

	s, err := s.Apply(&ExecutionStarted{Header: Header{Seq: 8, Future: "M#B"}, Kind: module.KindCallFunction, Sender: "0xaa"})
	require.NoError(t, err)
	s, err = s.Apply(&RequestBuilt{Header: Header{Seq: 9, Future: "M#B"}, Index: 0, Request: req, Nonce: 5, Fee: big.NewInt(1)})
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"0xaa": 6}, s.NonceFloors(), "unsent request of an in-progress future holds its nonce")

	s, err = s.Apply(&FutureFailed{Header: Header{Seq: 10, Future: "M#B"}, Class: FailureRejected, Message: "insufficient funds"})
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"0xaa": 5}, s.NonceFloors(), "a failed future never used its unsent nonce")
}
