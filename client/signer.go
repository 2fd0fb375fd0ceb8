package client

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/sigs"
)

// KeySigner is a wallet backed by a private key held in memory. Sent
// transactions are signed locally and broadcast through the chain, so the
// hash is always known immediately.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chain   *Chain

	// mu serializes sends so that two executions never pick the same
	// account nonce.
	mu sync.Mutex
}

var _ safeq.Signer = (*KeySigner)(nil)

// NewKeySigner returns a wallet of given key.
func NewKeySigner(key *ecdsa.PrivateKey, chain *Chain) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chain:   chain,
	}
}

// LoadKeySigner parses a hex encoded private key, with or without 0x
// prefix.
func LoadKeySigner(hexkey string, chain *Chain) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexkey, "0x"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, "invalid private key")
	}
	return NewKeySigner(key, chain), nil
}

func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignMessage signs the transaction identity directly, without the eth_sign
// prefix.
func (s *KeySigner) SignMessage(ctx context.Context, hash common.Hash) ([]byte, error) {
	return sigs.Sign(s.key, hash)
}

// SendTransaction signs the call and broadcasts it. A legacy transaction is
// built when the fees only carry a gas price.
func (s *KeySigner) SendTransaction(ctx context.Context, call safeq.Call, fees safeq.FeeParams) (safeq.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chainID, err := s.chain.ChainID(ctx)
	if err != nil {
		return safeq.Broadcast{}, err
	}
	nonce, err := s.chain.PendingNonce(ctx, s.address)
	if err != nil {
		return safeq.Broadcast{}, err
	}
	raw, err := s.sign(new(big.Int).SetUint64(chainID), nonce, call, fees)
	if err != nil {
		return safeq.Broadcast{}, err
	}
	hash, err := s.chain.SendRawTransaction(ctx, raw)
	if err != nil {
		return safeq.Broadcast{}, err
	}
	return safeq.Broadcast{Hash: hash}, nil
}

func (s *KeySigner) sign(chainID *big.Int, nonce uint64, call safeq.Call, fees safeq.FeeParams) ([]byte, error) {
	to := call.To
	var data types.TxData
	if fees.MaxFeePerGas == nil && fees.GasPrice != nil {
		data = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: fees.GasPrice,
			Gas:      call.Gas,
			To:       &to,
			Value:    safeq.BigOrZero(call.Value),
			Data:     call.Data,
		}
	} else {
		data = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: safeq.BigOrZero(fees.MaxPriorityFeePerGas),
			GasFeeCap: safeq.BigOrZero(fees.MaxFeePerGas),
			Gas:       call.Gas,
			To:        &to,
			Value:     safeq.BigOrZero(call.Value),
			Data:      call.Data,
		}
	}
	signed, err := types.SignTx(types.NewTx(data), types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return raw, nil
}
