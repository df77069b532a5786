// Package simulated is an in-process ledger for rehearsals and tests.
//
// It keeps per-sender nonces and a mempool, mines either on every accepted
// transaction (auto-mining) or only when Mine is called, and supports
// same-nonce replacement by a higher fee. Contract behavior is supplied as Go
// handlers keyed by contract and function name. Fault injection hooks cover
// transport failures and dropped transactions.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
)

// Call is what a handler sees of a transaction or static call.
type Call struct {
	Contract string
	Address  string
	Function string
	Args     ir.Array
	From     string
	Value    int64
}

// Handler implements one contract function. Returning a *RevertError (see
// Revert) reverts the transaction.
type Handler func(Call) (ir.Value, []ledger.Log, error)

// RevertError is returned by handlers to revert.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "reverted: " + e.Reason }

// Revert returns a handler error that reverts with reason.
func Revert(reason string) error { return &RevertError{Reason: reason} }

type txState int

const (
	statePending txState = iota
	stateMined
	stateDropped
)

type txRecord struct {
	tx      ledger.Transaction
	hash    string
	state   txState
	receipt *ledger.Receipt
}

// Ledger is a simulated ledger. It is safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	chainID  int64
	autoMine bool
	block    uint64
	gasPrice *big.Int

	nonces    map[string]uint64                // mined transactions per sender
	pending   map[string]map[uint64]*txRecord // sender -> nonce -> tx
	txs       map[string]*txRecord
	contracts map[string]string // address -> contract name
	handlers  map[string]Handler

	sendFaults []error
	sent       []ledger.Transaction
	maxPending map[string]int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithChainID sets the chain id (default 31337).
func WithChainID(id int64) Option {
	return func(l *Ledger) { l.chainID = id }
}

// WithAutoMine sets whether every accepted transaction is mined at once
// (default true).
func WithAutoMine(on bool) Option {
	return func(l *Ledger) { l.autoMine = on }
}

// WithGasPrice sets the starting gas price (default 1 gwei).
func WithGasPrice(p int64) Option {
	return func(l *Ledger) { l.gasPrice = big.NewInt(p) }
}

// New creates a simulated ledger at block 0.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		chainID:    31337,
		autoMine:   true,
		gasPrice:   big.NewInt(1_000_000_000),
		nonces:     map[string]uint64{},
		pending:    map[string]map[uint64]*txRecord{},
		txs:        map[string]*txRecord{},
		contracts:  map[string]string{},
		handlers:   map[string]Handler{},
		maxPending: map[string]int{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Handle registers the behavior of contract.function. The function name is
// the bare name; "constructor" handles deployment.
func (l *Ledger) Handle(contract, function string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[contract+"."+function] = h
}

// SetAutoMine switches auto-mining on or off.
func (l *Ledger) SetAutoMine(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoMine = on
	if on {
		l.mineLocked(false)
	}
}

// SetGasPrice changes the price reported by GasPrice.
func (l *Ledger) SetGasPrice(p int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gasPrice = big.NewInt(p)
}

// FailSends makes the next len(errs) SendTransaction calls return the given
// errors without accepting the transaction.
func (l *Ledger) FailSends(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendFaults = append(l.sendFaults, errs...)
}

// DropPending evicts every pending transaction of sender from the mempool.
func (l *Ledger) DropPending(sender string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for nonce, rec := range l.pending[sender] {
		rec.state = stateDropped
		delete(l.pending[sender], nonce)
		n++
	}
	return n
}

// PendingCount returns the number of pending transactions of sender.
func (l *Ledger) PendingCount(sender string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending[sender])
}

// Mine mines n blocks, empty or not. Each block includes every pending
// transaction whose nonce is next for its sender.
func (l *Ledger) Mine(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.mineLocked(true)
	}
}

// Sent returns every transaction accepted so far, in order.
func (l *Ledger) Sent() []ledger.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.sent)
}

// MaxPending returns the largest number of transactions sender ever had
// pending at once.
func (l *Ledger) MaxPending(sender string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxPending[sender]
}

// ChainID implements ledger.Client.
func (l *Ledger) ChainID(context.Context) (int64, error) {
	return l.chainID, nil
}

// IsAutoMining implements ledger.Client.
func (l *Ledger) IsAutoMining(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.autoMine, nil
}

// BlockNumber implements ledger.Client.
func (l *Ledger) BlockNumber(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block, nil
}

// NextNonce implements ledger.Client.
func (l *Ledger) NextNonce(_ context.Context, sender string, pending bool) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.nonces[sender]
	if pending {
		for l.pending[sender][n] != nil {
			n++
		}
	}
	return n, nil
}

// GasPrice implements ledger.Client.
func (l *Ledger) GasPrice(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.gasPrice), nil
}

// SendTransaction implements ledger.Client.
func (l *Ledger) SendTransaction(_ context.Context, tx ledger.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.sendFaults) > 0 {
		err := l.sendFaults[0]
		l.sendFaults = l.sendFaults[1:]
		return "", err
	}
	if tx.Fee == nil || tx.Fee.Sign() <= 0 {
		return "", errors.New("transaction fee must be positive")
	}
	if tx.Nonce < l.nonces[tx.From] {
		return "", fmt.Errorf("%w: next nonce %d, got %d", ledger.ErrNonceTooLow, l.nonces[tx.From], tx.Nonce)
	}

	hash := txHash(tx)
	if rec, ok := l.txs[hash]; ok && rec.state != stateDropped {
		return hash, nil
	}

	if existing := l.pending[tx.From][tx.Nonce]; existing != nil {
		if tx.Fee.Cmp(existing.tx.Fee) <= 0 {
			return "", fmt.Errorf("%w: fee %s does not exceed %s", ledger.ErrReplacementUnderpriced, tx.Fee, existing.tx.Fee)
		}
		existing.state = stateDropped
	}

	rec := &txRecord{tx: tx, hash: hash, state: statePending}
	rec.tx.Fee = new(big.Int).Set(tx.Fee)
	rec.tx.Args = slices.Clone(tx.Args)
	l.txs[hash] = rec
	if l.pending[tx.From] == nil {
		l.pending[tx.From] = map[uint64]*txRecord{}
	}
	l.pending[tx.From][tx.Nonce] = rec
	l.sent = append(l.sent, rec.tx)
	l.maxPending[tx.From] = max(l.maxPending[tx.From], len(l.pending[tx.From]))

	if l.autoMine {
		l.mineLocked(false)
	}
	return hash, nil
}

// TransactionStatus implements ledger.Client. Unknown hashes are reported
// dropped.
func (l *Ledger) TransactionStatus(_ context.Context, hash string) (ledger.TxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.txs[hash]
	if !ok {
		return ledger.TxStatus{State: ledger.TxDropped}, nil
	}
	switch rec.state {
	case stateMined:
		receipt := *rec.receipt
		return ledger.TxStatus{State: ledger.TxMined, Receipt: &receipt}, nil
	case statePending:
		return ledger.TxStatus{State: ledger.TxPending}, nil
	default:
		return ledger.TxStatus{State: ledger.TxDropped}, nil
	}
}

// Call implements ledger.Client.
func (l *Ledger) Call(_ context.Context, req ledger.Request) (ir.Value, error) {
	l.mu.Lock()
	contract, ok := l.contracts[req.To]
	h := l.handlers[contract+"."+bareName(req.Function)]
	l.mu.Unlock()

	if !ok {
		return nil, &ledger.CallError{Reason: "no contract at " + req.To}
	}
	if h == nil {
		return ir.Null{}, nil
	}
	v, _, err := h(Call{Contract: contract, Address: req.To, Function: bareName(req.Function), Args: req.Args, From: req.From})
	var rev *RevertError
	if errors.As(err, &rev) {
		return nil, &ledger.CallError{Reason: rev.Reason}
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// mineLocked mines one block containing every executable pending
// transaction. Without force, no block is produced when nothing is executable.
func (l *Ledger) mineLocked(force bool) {
	if force {
		l.block++
	}
	senders := slices.Sorted(maps.Keys(l.pending))
	mined := force
	for _, sender := range senders {
		for {
			rec := l.pending[sender][l.nonces[sender]]
			if rec == nil {
				break
			}
			if !mined {
				l.block++
				mined = true
			}
			delete(l.pending[sender], rec.tx.Nonce)
			l.nonces[sender]++
			l.execute(rec)
		}
	}
}

func (l *Ledger) execute(rec *txRecord) {
	tx := rec.tx
	receipt := &ledger.Receipt{Hash: rec.hash, BlockNumber: l.block, Success: true}
	rec.state = stateMined
	rec.receipt = receipt

	var (
		contract, address, function string
	)
	switch tx.Kind {
	case ledger.RequestCreate:
		address = contractAddress(tx.From, tx.Nonce)
		contract, function = tx.Contract, "constructor"
		receipt.ContractAddress = address
	case ledger.RequestCall:
		var ok bool
		address = tx.To
		if contract, ok = l.contracts[address]; !ok {
			receipt.Success = false
			receipt.RevertReason = "no contract at " + address
			return
		}
		function = bareName(tx.Function)
	default:
		return
	}

	if h := l.handlers[contract+"."+function]; h != nil {
		v, logs, err := h(Call{Contract: contract, Address: address, Function: function, Args: tx.Args, From: tx.From, Value: tx.Value})
		if err != nil {
			receipt.Success = false
			receipt.RevertReason = err.Error()
			var rev *RevertError
			if errors.As(err, &rev) {
				receipt.RevertReason = rev.Reason
			}
			receipt.ContractAddress = ""
			return
		}
		receipt.ReturnValue = v
		for _, lg := range logs {
			if lg.Address == "" {
				lg.Address = address
			}
			receipt.Logs = append(receipt.Logs, lg)
		}
	}
	if tx.Kind == ledger.RequestCreate {
		l.contracts[address] = contract
	}
}

func bareName(function string) string {
	if i := strings.IndexByte(function, '('); i >= 0 {
		return function[:i]
	}
	return function
}

func txHash(tx ledger.Transaction) string {
	obj := ir.Object{
		"kind":     ir.String(tx.Kind),
		"from":     ir.String(tx.From),
		"to":       ir.String(tx.To),
		"contract": ir.String(tx.Contract),
		"bytecode": ir.String(tx.Bytecode),
		"function": ir.String(tx.Function),
		"args":     tx.Args,
		"data":     ir.String(tx.Data),
		"value":    ir.Int(tx.Value),
		"nonce":    ir.String(strconv.FormatUint(tx.Nonce, 10)),
		"fee":      ir.String(tx.Fee.String()),
	}
	if tx.Args == nil {
		obj["args"] = ir.Array{}
	}
	return "0x" + ir.MustHashValue(ir.DomainTx, obj)
}

func contractAddress(sender string, nonce uint64) string {
	return "0x" + ir.Hash(ir.DomainAddress, []byte(sender+"/"+strconv.FormatUint(nonce, 10)))[:40]
}
