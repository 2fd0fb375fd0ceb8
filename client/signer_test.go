package client

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/sigs"
	"github.com/stretchr/testify/require"
)

func TestKeySignerSendTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cases := map[string]struct {
		fees     safeq.FeeParams
		wantType uint8
	}{
		"dynamic fee": {
			fees:     safeq.FeeParams{MaxFeePerGas: big.NewInt(22), MaxPriorityFeePerGas: big.NewInt(2)},
			wantType: types.DynamicFeeTxType,
		},
		"legacy": {
			fees:     safeq.FeeParams{GasPrice: big.NewInt(50)},
			wantType: types.LegacyTxType,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			b := newFakeBackend()
			b.nonce = 5
			s := NewKeySigner(key, NewChain(b))

			call := safeq.Call{
				From: s.Address(),
				To:   common.HexToAddress("0x5afe"),
				Data: []byte{0x6a, 0x76, 0x12, 0x02},
				Gas:  130000,
			}
			res, err := s.SendTransaction(context.Background(), call, tc.fees)
			require.NoError(t, err)
			require.False(t, res.IsDeferred())

			require.Len(t, b.sent, 1)
			tx := b.sent[0]
			require.Equal(t, tc.wantType, tx.Type())
			require.Equal(t, res.Hash, tx.Hash())
			require.Equal(t, uint64(5), tx.Nonce())
			require.Equal(t, uint64(130000), tx.Gas())
			require.Equal(t, call.To, *tx.To())

			sender, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
			require.NoError(t, err)
			require.Equal(t, s.Address(), sender)
		})
	}
}

func TestKeySignerSignMessage(t *testing.T) {
	s, err := LoadKeySigner("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", NewChain(newFakeBackend()))
	require.NoError(t, err)

	hash := crypto.Keccak256Hash([]byte("safe tx"))
	sig, err := s.SignMessage(context.Background(), hash)
	require.NoError(t, err)
	require.NoError(t, sigs.Verify(hash, s.Address(), sig))
}

func TestLoadKeySignerRejectsGarbage(t *testing.T) {
	_, err := LoadKeySigner("not a key", NewChain(newFakeBackend()))
	require.True(t, errors.ErrInput.Is(err))
}
