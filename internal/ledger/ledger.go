// Package ledger defines the remote ledger client the engine submits
// transactions through, and the request/receipt types exchanged with it.
//
// Encoding calls into wire payloads (ABI packing, signing) is the client's
// job; the engine hands over the function signature and resolved arguments.
package ledger

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/roach88/ignite/internal/ir"
)

// RequestKind distinguishes what a request asks the ledger to do.
type RequestKind string

const (
	// RequestCreate deploys contract bytecode with constructor arguments.
	RequestCreate RequestKind = "create"
	// RequestCall sends a state-changing function call.
	RequestCall RequestKind = "call"
	// RequestRaw sends pre-encoded data.
	RequestRaw RequestKind = "raw"
	// RequestStatic reads through a call that is never mined.
	RequestStatic RequestKind = "static-call"
)

// Request is one remote operation produced by the execution strategy.
type Request struct {
	Kind     RequestKind `json:"kind"`
	From     string      `json:"from"`
	To       string      `json:"to,omitempty"`
	Contract string      `json:"contract,omitempty"`
	Bytecode string      `json:"bytecode,omitempty"`
	Function string      `json:"function,omitempty"`
	Args     ir.Array    `json:"args,omitempty"`
	Data     string      `json:"data,omitempty"`
	Value    int64       `json:"value,omitempty"`
	// ToCreated targets the contract created by the first request of the
	// same future. The scheduler fills To once that address is known.
	ToCreated bool `json:"toCreated,omitempty"`
}

// IsTransaction reports whether the request is mined (and so needs a nonce).
func (r Request) IsTransaction() bool {
	return r.Kind != RequestStatic
}

// Transaction is a request bound to a nonce and fee.
type Transaction struct {
	Request
	Nonce uint64
	Fee   *big.Int
}

// TxState is the observed state of a sent transaction.
type TxState int

const (
	TxPending TxState = iota
	TxMined
	TxDropped
)

// String returns the state name.
func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxMined:
		return "mined"
	case TxDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// TxStatus is the answer to a transaction status query. Receipt is set when
// State is TxMined.
type TxStatus struct {
	State   TxState
	Receipt *Receipt
}

// Receipt is the ledger's record of a mined transaction.
type Receipt struct {
	Hash            string   `json:"hash"`
	BlockNumber     uint64   `json:"blockNumber"`
	Success         bool     `json:"success"`
	ContractAddress string   `json:"contractAddress,omitempty"`
	ReturnValue     ir.Value `json:"-"`
	RevertReason    string   `json:"revertReason,omitempty"`
	Logs            []Log    `json:"logs,omitempty"`
}

type receiptJSON Receipt

// MarshalJSON implements json.Marshaler.
func (r Receipt) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		receiptJSON
		ReturnValue ir.Raw `json:"returnValue"`
	}{receiptJSON(r), ir.Raw{Value: r.ReturnValue}})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Receipt) UnmarshalJSON(data []byte) error {
	var aux struct {
		receiptJSON
		ReturnValue ir.Raw `json:"returnValue"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Receipt(aux.receiptJSON)
	r.ReturnValue = aux.ReturnValue.Value
	return nil
}

// Confirmations returns how many blocks include the receipt at head.
func (r Receipt) Confirmations(head uint64) uint64 {
	if head < r.BlockNumber {
		return 0
	}
	return head - r.BlockNumber + 1
}

// Log is a decoded event emitted during a transaction.
type Log struct {
	Address string    `json:"address"`
	Event   string    `json:"event"`
	Args    ir.Object `json:"args"`
}

// Client is the remote ledger. Implementations must be safe for concurrent use.
type Client interface {
	ChainID(ctx context.Context) (int64, error)
	// IsAutoMining reports whether every accepted transaction is mined
	// immediately (development networks).
	IsAutoMining(ctx context.Context) (bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
	// NextNonce returns the next nonce for sender, counting mempool
	// transactions when pending is true and only mined ones otherwise.
	NextNonce(ctx context.Context, sender string, pending bool) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx Transaction) (string, error)
	TransactionStatus(ctx context.Context, hash string) (TxStatus, error)
	Call(ctx context.Context, req Request) (ir.Value, error)
}
