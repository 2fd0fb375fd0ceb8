package safeqtest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// Chain is an in-memory node implementing safeq.Chain for a single Safe.
//
// Broadcast transactions are not executed. Call Mine to produce a receipt
// and SetNonce to move the account forward, or set AutoMine.
type Chain struct {
	mu       sync.Mutex
	account  safeq.Account
	sent     []*types.Transaction
	receipts map[common.Hash]*safeq.Receipt
	block    uint64

	// Gas is returned by EstimateGas.
	Gas uint64
	// EstimateErr is returned by EstimateGas when set.
	EstimateErr error
	// Fees is returned by FeeParams.
	Fees safeq.FeeParams
	// SendErr is returned by SendRawTransaction when set.
	SendErr error
	// AutoMine produces a successful receipt for every accepted
	// transaction and increments the Safe nonce.
	AutoMine bool

	readFailures int
	nonceCall    int
}

var _ safeq.Chain = (*Chain)(nil)

// NewChain returns a node that reports the state of given account.
func NewChain(a *safeq.Account) *Chain {
	return &Chain{
		account:  *a.Copy(),
		receipts: make(map[common.Hash]*safeq.Receipt),
		Gas:      100000,
		Fees: safeq.FeeParams{
			MaxFeePerGas:         big.NewInt(30e9),
			MaxPriorityFeePerGas: big.NewInt(1e9),
		},
	}
}

// SetNonce changes the nonce of the Safe.
func (c *Chain) SetNonce(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account.Nonce = n
}

// SetOwners changes the owners and the threshold of the Safe.
func (c *Chain) SetOwners(threshold int, owners ...common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account.Owners = append([]common.Address(nil), owners...)
	c.account.Threshold = threshold
}

// FailReads makes the next n nonce reads fail with a network error.
func (c *Chain) FailReads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readFailures = n
}

// NonceCallCount returns how many times the nonce was read.
func (c *Chain) NonceCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonceCall
}

// Sent returns all accepted transactions, oldest first.
func (c *Chain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

// Mine creates the receipt of given transaction. A successful execution also
// increments the Safe nonce.
func (c *Chain) Mine(hash common.Hash, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mine(hash, success)
}

func (c *Chain) mine(hash common.Hash, success bool) {
	c.block++
	c.receipts[hash] = &safeq.Receipt{
		TxHash:      hash,
		BlockNumber: c.block,
		GasUsed:     c.Gas,
		Success:     success,
	}
	if success {
		c.account.Nonce++
	}
}

func (c *Chain) Nonce(ctx context.Context, safe common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonceCall++
	if c.readFailures > 0 {
		c.readFailures--
		return 0, errors.Wrap(errors.ErrNetwork, "connection reset")
	}
	if err := c.checkSafe(safe); err != nil {
		return 0, err
	}
	return c.account.Nonce, nil
}

func (c *Chain) Owners(ctx context.Context, safe common.Address) ([]common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkSafe(safe); err != nil {
		return nil, err
	}
	return append([]common.Address(nil), c.account.Owners...), nil
}

func (c *Chain) Threshold(ctx context.Context, safe common.Address) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkSafe(safe); err != nil {
		return 0, err
	}
	return c.account.Threshold, nil
}

func (c *Chain) checkSafe(safe common.Address) error {
	if safe != c.account.Address {
		return errors.Wrapf(errors.ErrNotFound, "no contract at %s", safe.Hex())
	}
	return nil
}

func (c *Chain) EstimateGas(ctx context.Context, call safeq.Call) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EstimateErr != nil {
		return 0, c.EstimateErr
	}
	return c.Gas, nil
}

func (c *Chain) FeeParams(ctx context.Context) (safeq.FeeParams, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Fees, nil
}

func (c *Chain) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return common.Hash{}, c.SendErr
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, errors.Wrap(errors.ErrInput, err.Error())
	}
	c.sent = append(c.sent, &tx)
	if c.AutoMine {
		c.mine(tx.Hash(), true)
	}
	return tx.Hash(), nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*safeq.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, nil
	}
	cpy := *r
	return &cpy, nil
}
