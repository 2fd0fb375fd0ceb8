package client

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/recovery"
)

const safeABIJSON = `[
	{"name":"nonce","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getOwners","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"name":"getThreshold","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const delayABIJSON = `[
	{"name":"txNonce","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"queueNonce","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"txCooldown","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"txExpiration","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"txHash","type":"function","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"name":"txCreatedAt","type":"function","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	safeABI  = mustParseABI(safeABIJSON)
	delayABI = mustParseABI(delayABIJSON)
)

func mustParseABI(def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return a
}

// Backend is the part of the node API used by Chain. It is implemented by
// ethclient.Client.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Chain reads Safe and delay modifier state from a node and broadcasts
// transactions.
type Chain struct {
	backend Backend
	close   func()
}

var (
	_ safeq.Chain     = (*Chain)(nil)
	_ recovery.Source = (*Chain)(nil)
)

// Dial connects to the node at given JSON-RPC endpoint.
func Dial(ctx context.Context, rawurl string) (*Chain, error) {
	c, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "dial %s: %s", rawurl, err)
	}
	chain := NewChain(c)
	chain.close = c.Close
	return chain, nil
}

// NewChain returns a chain reading through given backend.
func NewChain(b Backend) *Chain {
	return &Chain{backend: b}
}

// Close releases the node connection opened by Dial.
func (c *Chain) Close() {
	if c.close != nil {
		c.close()
	}
}

// call executes a view method on the latest block and returns its single
// output.
func (c *Chain) call(ctx context.Context, def abi.ABI, contract common.Address, method string, args ...interface{}) (interface{}, error) {
	input, err := def.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "pack %s: %s", method, err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "call %s: %s", method, err)
	}
	if len(raw) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "no contract at %s", contract.Hex())
	}
	out, err := def.Unpack(method, raw)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "unpack %s: %s", method, err)
	}
	if len(out) != 1 {
		return nil, errors.Wrapf(errors.ErrInput, "%s returned %d values", method, len(out))
	}
	return out[0], nil
}

func (c *Chain) callUint(ctx context.Context, def abi.ABI, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	v, err := c.call(ctx, def, contract, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInput, "%s returned %T", method, v)
	}
	return n, nil
}

func (c *Chain) callUint64(ctx context.Context, def abi.ABI, contract common.Address, method string, args ...interface{}) (uint64, error) {
	n, err := c.callUint(ctx, def, contract, method, args...)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, errors.Wrapf(errors.ErrInput, "%s overflows: %s", method, n)
	}
	return n.Uint64(), nil
}

// callSeconds reads a timestamp or a period. ErrOverflow is returned for
// values UnixTime cannot hold.
func (c *Chain) callSeconds(ctx context.Context, def abi.ABI, contract common.Address, method string, args ...interface{}) (uint64, error) {
	n, err := c.callUint(ctx, def, contract, method, args...)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, errors.Wrapf(errors.ErrOverflow, "%s: %s seconds", method, n)
	}
	return n.Uint64(), nil
}

// Nonce returns the nonce the Safe executes next.
func (c *Chain) Nonce(ctx context.Context, safe common.Address) (uint64, error) {
	return c.callUint64(ctx, safeABI, safe, "nonce")
}

// Owners returns the owners of the Safe.
func (c *Chain) Owners(ctx context.Context, safe common.Address) ([]common.Address, error) {
	v, err := c.call(ctx, safeABI, safe, "getOwners")
	if err != nil {
		return nil, err
	}
	owners, ok := v.([]common.Address)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInput, "getOwners returned %T", v)
	}
	return owners, nil
}

// Threshold returns the number of confirmations the Safe requires.
func (c *Chain) Threshold(ctx context.Context, safe common.Address) (int, error) {
	n, err := c.callUint64(ctx, safeABI, safe, "getThreshold")
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// EstimateGas returns the gas used by given call.
func (c *Chain) EstimateGas(ctx context.Context, call safeq.Call) (uint64, error) {
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  call.From,
		To:    &call.To,
		Gas:   call.Gas,
		Value: call.Value,
		Data:  call.Data,
	})
	if err != nil {
		return 0, errors.Wrapf(errors.ErrNetwork, "estimate gas: %s", err)
	}
	return gas, nil
}

// FeeParams returns EIP-1559 fees when the latest block carries a base fee,
// and a legacy gas price otherwise. The fee cap allows the base fee to
// double before the transaction is priced out.
func (c *Chain) FeeParams(ctx context.Context) (safeq.FeeParams, error) {
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return safeq.FeeParams{}, errors.Wrapf(errors.ErrNetwork, "latest header: %s", err)
	}
	if head.BaseFee == nil {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return safeq.FeeParams{}, errors.Wrapf(errors.ErrNetwork, "gas price: %s", err)
		}
		return safeq.FeeParams{GasPrice: price}, nil
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return safeq.FeeParams{}, errors.Wrapf(errors.ErrNetwork, "gas tip: %s", err)
	}
	feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return safeq.FeeParams{
		MaxFeePerGas:         feeCap,
		MaxPriorityFeePerGas: tip,
	}, nil
}

// SendRawTransaction broadcasts a signed transaction in its binary encoding.
func (c *Chain) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, errors.Wrapf(errors.ErrInput, "decode transaction: %s", err)
	}
	if err := c.backend.SendTransaction(ctx, &tx); err != nil {
		return common.Hash{}, errors.Wrapf(errors.ErrNetwork, "send transaction: %s", err)
	}
	return tx.Hash(), nil
}

// TransactionReceipt returns the receipt of a mined transaction, or nil if
// it is not mined yet.
func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*safeq.Receipt, error) {
	r, err := c.backend.TransactionReceipt(ctx, hash)
	switch {
	case err == ethereum.NotFound:
		return nil, nil
	case err != nil:
		return nil, errors.Wrapf(errors.ErrNetwork, "receipt %s: %s", hash.Hex(), err)
	}
	res := &safeq.Receipt{
		TxHash:  r.TxHash,
		GasUsed: r.GasUsed,
		Success: r.Status == types.ReceiptStatusSuccessful,
	}
	if r.BlockNumber != nil {
		res.BlockNumber = r.BlockNumber.Uint64()
	}
	return res, nil
}

// PendingNonce returns the next nonce of an externally owned account,
// including transactions in the pool.
func (c *Chain) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	n, err := c.backend.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrNetwork, "pending nonce: %s", err)
	}
	return n, nil
}

// ChainID returns the identifier of the chain the node serves.
func (c *Chain) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrNetwork, "chain id: %s", err)
	}
	return id.Uint64(), nil
}

// RecoveryQueue returns the items of the delay modifier that were not
// executed yet. The modifier only stores the hash of a queued call, so the
// returned items carry no arguments.
func (c *Chain) RecoveryQueue(ctx context.Context, modifier common.Address) ([]recovery.QueueItem, error) {
	first, err := c.callUint64(ctx, delayABI, modifier, "txNonce")
	if err != nil {
		return nil, err
	}
	end, err := c.callUint64(ctx, delayABI, modifier, "queueNonce")
	if err != nil {
		return nil, err
	}
	if end <= first {
		return nil, nil
	}
	cooldown, err := c.callSeconds(ctx, delayABI, modifier, "txCooldown")
	if err != nil {
		return nil, err
	}
	expiration, err := c.callSeconds(ctx, delayABI, modifier, "txExpiration")
	if err != nil {
		return nil, err
	}

	items := make([]recovery.QueueItem, 0, end-first)
	for n := first; n < end; n++ {
		index := new(big.Int).SetUint64(n)
		v, err := c.call(ctx, delayABI, modifier, "txHash", index)
		if err != nil {
			return nil, err
		}
		hash, ok := v.([32]byte)
		if !ok {
			return nil, errors.Wrapf(errors.ErrInput, "txHash returned %T", v)
		}
		created, err := c.callSeconds(ctx, delayABI, modifier, "txCreatedAt", index)
		if err != nil {
			return nil, err
		}
		items = append(items, recovery.QueueItem{
			Modifier:     modifier,
			QueueNonce:   n,
			TxHash:       hash,
			CreatedAt:    safeq.UnixTime(created),
			DelayPeriod:  cooldown,
			ExpiryPeriod: expiration,
		})
	}
	return items, nil
}
