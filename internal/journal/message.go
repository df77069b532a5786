package journal

import (
	"math/big"
	"time"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
)

// Type names a journal message kind. It is the discriminator stored with
// every entry.
type Type string

const (
	TypeDeploymentInitialized Type = "deployment-initialized"
	TypeExecutionStarted      Type = "execution-started"
	TypeRequestBuilt          Type = "transaction-request-built"
	TypeTransactionSent       Type = "transaction-sent"
	TypeTransactionConfirmed  Type = "transaction-confirmed"
	TypeTransactionDropped    Type = "transaction-dropped"
	TypeFutureCompleted       Type = "future-completed"
	TypeFutureFailed          Type = "future-failed"
	TypeFutureReset           Type = "future-reset"
)

// FailureClass is the terminal reason recorded for a failed future.
type FailureClass string

const (
	FailureReverted           FailureClass = "execution-reverted"
	FailureDependency         FailureClass = "dependency-failed"
	FailureResolution         FailureClass = "resolution-failed"
	FailureUnknownOutcome     FailureClass = "unknown-outcome"
	FailureTransportExhausted FailureClass = "transport-exhausted"
	FailureStaticCall         FailureClass = "static-call-failed"
	FailureRejected           FailureClass = "transaction-rejected"
)

// Header is carried by every message. Seq is a strictly increasing logical
// sequence number; Time is informational only.
type Header struct {
	Seq    int64     `json:"seq"`
	Future string    `json:"future,omitempty"`
	Time   time.Time `json:"time"`
}

func (h *Header) header() *Header { return h }

// Message is a journal entry. The set of implementations is closed.
type Message interface {
	Type() Type
	header() *Header
}

// Head returns the message header.
func Head(m Message) Header { return *m.header() }

// Stamp sets the sequence number and time of m.
func Stamp(m Message, seq int64, at time.Time) {
	h := m.header()
	h.Seq = seq
	h.Time = at.UTC()
}

// DeploymentInitialized is the first entry of every journal.
type DeploymentInitialized struct {
	Header
	ChainID       int64  `json:"chainId"`
	ModuleID      string `json:"moduleId"`
	EngineVersion string `json:"engineVersion"`
}

// ExecutionStarted marks a future in progress. It is recorded before any
// request for the future is built.
type ExecutionStarted struct {
	Header
	Kind         module.Kind `json:"kind"`
	Sender       string      `json:"sender,omitempty"`
	Dependencies []string    `json:"dependencies"`
	ParamsHash   string      `json:"paramsHash"`
}

// RequestBuilt records a transaction request with its nonce before it is
// sent. Rebuilding an index that was never sent replaces it.
type RequestBuilt struct {
	Header
	Index   int            `json:"index"`
	Request ledger.Request `json:"request"`
	Nonce   uint64         `json:"nonce"`
	Fee     *big.Int       `json:"fee"`
}

// TransactionSent records a hash accepted by the ledger. Fee bumps and
// resends after a drop are further TransactionSent entries for the same
// index and nonce.
type TransactionSent struct {
	Header
	Index int      `json:"index"`
	Nonce uint64   `json:"nonce"`
	Hash  string   `json:"hash"`
	Fee   *big.Int `json:"fee"`
}

// TransactionConfirmed records the receipt of the hash that was mined with
// enough confirmations. A reverted receipt is recorded too.
type TransactionConfirmed struct {
	Header
	Index   int            `json:"index"`
	Hash    string         `json:"hash"`
	Receipt ledger.Receipt `json:"receipt"`
}

// TransactionDropped records that the ledger no longer knows a sent hash.
type TransactionDropped struct {
	Header
	Index int    `json:"index"`
	Hash  string `json:"hash"`
}

// FutureCompleted records a future's final value.
type FutureCompleted struct {
	Header
	Result ir.Value `json:"-"`
}

// FutureFailed records a terminal failure. For FailureDependency, Cause
// names the failed dependency and Dependencies lists all of the future's
// dependencies, since such a future never recorded an ExecutionStarted.
type FutureFailed struct {
	Header
	Class        FailureClass `json:"class"`
	Message      string       `json:"message"`
	Cause        string       `json:"cause,omitempty"`
	Dependencies []string     `json:"dependencies,omitempty"`
}

// FutureReset returns a future to a state where it will run again.
type FutureReset struct {
	Header
}

func (*DeploymentInitialized) Type() Type { return TypeDeploymentInitialized }
func (*ExecutionStarted) Type() Type      { return TypeExecutionStarted }
func (*RequestBuilt) Type() Type          { return TypeRequestBuilt }
func (*TransactionSent) Type() Type       { return TypeTransactionSent }
func (*TransactionConfirmed) Type() Type  { return TypeTransactionConfirmed }
func (*TransactionDropped) Type() Type    { return TypeTransactionDropped }
func (*FutureCompleted) Type() Type       { return TypeFutureCompleted }
func (*FutureFailed) Type() Type          { return TypeFutureFailed }
func (*FutureReset) Type() Type           { return TypeFutureReset }
