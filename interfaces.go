package safeq

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Gateway is the off-chain transaction service that keeps the queue of
// proposed transactions and their confirmations.
//
// The gateway is eventually consistent. Its queue is the source of truth for
// the set of live transactions, never for the account nonce.
type Gateway interface {
	// Queue returns all queued transactions of given Safe.
	Queue(ctx context.Context, safe common.Address) ([]Transaction, error)

	// HistoricalTx returns a single transaction by its identity, including
	// already executed ones. ErrNotFound is returned if it is unknown.
	HistoricalTx(ctx context.Context, id common.Hash) (*Transaction, error)

	// History returns a page of executed transactions, most recent first.
	// Pass the cursor of the previous page to fetch the next one.
	History(ctx context.Context, safe common.Address, cursor string) (*HistoryPage, error)

	// Propose stores a new transaction together with the proposer's
	// signature.
	Propose(ctx context.Context, safe common.Address, p Proposal) error

	// Confirm adds an owner signature to a stored transaction.
	Confirm(ctx context.Context, id common.Hash, signature []byte) error
}

// HistoryPage is a single page of historical transactions.
type HistoryPage struct {
	Results []Transaction `json:"results"`
	Next    string        `json:"next,omitempty"`
}

// Proposal is the payload sent when proposing a transaction.
type Proposal struct {
	Tx        SafeTx         `json:"tx"`
	ID        common.Hash    `json:"id"`
	Proposer  common.Address `json:"proposer"`
	Signature []byte         `json:"signature"`
}

// Call is an on-chain call request.
type Call struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// FeeParams describes the current network fees. GasPrice is used by chains
// that do not support EIP-1559.
type FeeParams struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	// Success is false when the transaction was mined but reverted.
	Success bool
}

// Chain is the JSON-RPC node access.
type Chain interface {
	Nonce(ctx context.Context, safe common.Address) (uint64, error)
	Owners(ctx context.Context, safe common.Address) ([]common.Address, error)
	Threshold(ctx context.Context, safe common.Address) (int, error)
	EstimateGas(ctx context.Context, call Call) (uint64, error)
	FeeParams(ctx context.Context) (FeeParams, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)

	// TransactionReceipt returns nil and no error when the transaction is
	// not mined yet.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// RelayRequest is a fully signed execution submitted to the relay. The relay
// pays the gas.
type RelayRequest struct {
	ChainID  uint64
	Safe     common.Address
	To       common.Address
	Data     []byte
	GasLimit uint64
}

// RelayTask is the state of a relayed submission.
type RelayTask struct {
	// TxHash is zero until the relay broadcasts the transaction.
	TxHash common.Hash
	// Failed is set when the relay gave up without mining the
	// transaction.
	Failed bool
	Reason string
}

// Relay is the fee sponsoring relay service.
type Relay interface {
	Relay(ctx context.Context, req RelayRequest) (taskID string, err error)

	// RemainingQuota returns how many relayed transactions the Safe may
	// still submit in the current window.
	RemainingQuota(ctx context.Context, chainID uint64, safe common.Address) (int, error)

	TaskStatus(ctx context.Context, taskID string) (*RelayTask, error)
}

// Signer is the connected wallet of an owner.
type Signer interface {
	Address() common.Address

	// SignMessage signs given transaction identity off-chain.
	SignMessage(ctx context.Context, hash common.Hash) ([]byte, error)

	// SendTransaction signs and broadcasts an on-chain call.
	SendTransaction(ctx context.Context, call Call, fees FeeParams) (Broadcast, error)
}

// Broadcast is the outcome of Signer.SendTransaction.
//
// Externally owned accounts return the hash immediately. Smart contract
// wallets may only know it once the wallet's own signers approved the call,
// in which case Hash is zero and Wait blocks until it is known.
type Broadcast struct {
	Hash common.Hash
	Wait func(ctx context.Context) (common.Hash, error)
}

// IsDeferred returns true if the hash is not known yet.
func (b Broadcast) IsDeferred() bool {
	return b.Hash == (common.Hash{}) && b.Wait != nil
}

// Resolve returns the transaction hash, waiting for it if it was deferred.
func (b Broadcast) Resolve(ctx context.Context) (common.Hash, error) {
	if !b.IsDeferred() {
		return b.Hash, nil
	}
	return b.Wait(ctx)
}
