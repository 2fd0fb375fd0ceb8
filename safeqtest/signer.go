package safeqtest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/sigs"
)

// Signer is a connected wallet of an owner implementing safeq.Signer.
//
// Transactions are signed with the owner key and sent to the Chain.
type Signer struct {
	Owner Owner
	Chain *Chain

	// EthSign makes SignMessage produce eth_sign style signatures.
	EthSign bool
	// Deferred simulates a smart contract wallet: the hash is only known
	// once Wait is called.
	Deferred bool
	// Gate, when set, blocks SendTransaction until it is closed or the
	// context is cancelled. Use it to hold a dispatch before broadcast.
	Gate chan struct{}
	// SendErr is returned by SendTransaction when set.
	SendErr error

	mu    sync.Mutex
	nonce uint64
	calls []safeq.Call
}

var _ safeq.Signer = (*Signer)(nil)

// NewSigner returns a wallet of given owner connected to given chain.
func NewSigner(o Owner, c *Chain) *Signer {
	return &Signer{Owner: o, Chain: c}
}

func (s *Signer) Address() common.Address {
	return s.Owner.Address
}

func (s *Signer) SignMessage(ctx context.Context, hash common.Hash) ([]byte, error) {
	if s.EthSign {
		return sigs.SignEthMessage(s.Owner.Key, hash)
	}
	return sigs.Sign(s.Owner.Key, hash)
}

// Calls returns all calls the wallet was asked to send.
func (s *Signer) Calls() []safeq.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]safeq.Call(nil), s.calls...)
}

func (s *Signer) SendTransaction(ctx context.Context, call safeq.Call, fees safeq.FeeParams) (safeq.Broadcast, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return safeq.Broadcast{}, errors.Wrap(errors.ErrBroadcast, "rejected in wallet")
		}
	}
	if s.SendErr != nil {
		return safeq.Broadcast{}, s.SendErr
	}

	send := func(ctx context.Context) (common.Hash, error) {
		raw, err := s.sign(call, fees)
		if err != nil {
			return common.Hash{}, err
		}
		return s.Chain.SendRawTransaction(ctx, raw)
	}
	if s.Deferred {
		return safeq.Broadcast{Wait: send}, nil
	}
	hash, err := send(ctx)
	if err != nil {
		return safeq.Broadcast{}, err
	}
	return safeq.Broadcast{Hash: hash}, nil
}

func (s *Signer) sign(call safeq.Call, fees safeq.FeeParams) ([]byte, error) {
	s.mu.Lock()
	nonce := s.nonce
	s.nonce++
	s.mu.Unlock()

	chainID := new(big.Int).SetUint64(ChainID)
	to := call.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: safeq.BigOrZero(fees.MaxPriorityFeePerGas),
		GasFeeCap: safeq.BigOrZero(fees.MaxFeePerGas),
		Gas:       call.Gas,
		To:        &to,
		Value:     safeq.BigOrZero(call.Value),
		Data:      call.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.Owner.Key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return raw, nil
}
