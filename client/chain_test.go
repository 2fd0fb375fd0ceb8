package client

import (
	"context"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers view calls from a table keyed by calldata.
type fakeBackend struct {
	outputs  map[string][]byte
	baseFee  *big.Int
	tip      *big.Int
	price    *big.Int
	receipts map[common.Hash]*types.Receipt
	nonce    uint64
	chainID  *big.Int
	sent     []*types.Transaction
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		outputs:  make(map[string][]byte),
		tip:      big.NewInt(2),
		price:    big.NewInt(50),
		receipts: make(map[common.Hash]*types.Receipt),
		chainID:  big.NewInt(1),
	}
}

// set registers the result of a view method called with given arguments.
func (b *fakeBackend) set(t *testing.T, def abi.ABI, method string, args []interface{}, out ...interface{}) {
	t.Helper()
	input, err := def.Pack(method, args...)
	require.NoError(t, err)
	raw, err := def.Methods[method].Outputs.Pack(out...)
	require.NoError(t, err)
	b.outputs[string(input)] = raw
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return b.outputs[string(msg.Data)], nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000 + uint64(len(msg.Data))*16, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return b.price, nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return b.tip, nil
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: b.baseFee}, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return b.chainID, nil
}

func TestChainReadsSafe(t *testing.T) {
	safe := common.HexToAddress("0x5afe")
	owners := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}

	b := newFakeBackend()
	b.set(t, safeABI, "nonce", nil, big.NewInt(7))
	b.set(t, safeABI, "getOwners", nil, owners)
	b.set(t, safeABI, "getThreshold", nil, big.NewInt(2))
	c := NewChain(b)
	ctx := context.Background()

	nonce, err := c.Nonce(ctx, safe)
	require.NoError(t, err)
	require.Equal(t, uint64(7), nonce)

	got, err := c.Owners(ctx, safe)
	require.NoError(t, err)
	require.Equal(t, owners, got)

	threshold, err := c.Threshold(ctx, safe)
	require.NoError(t, err)
	require.Equal(t, 2, threshold)
}

func TestChainWithoutContract(t *testing.T) {
	c := NewChain(newFakeBackend())
	_, err := c.Nonce(context.Background(), common.HexToAddress("0x5afe"))
	require.True(t, errors.ErrNotFound.Is(err), "got %+v", err)
}

func TestChainFeeParams(t *testing.T) {
	b := newFakeBackend()
	c := NewChain(b)

	fees, err := c.FeeParams(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), fees.GasPrice)
	require.Nil(t, fees.MaxFeePerGas)

	b.baseFee = big.NewInt(10)
	fees, err = c.FeeParams(context.Background())
	require.NoError(t, err)
	require.Nil(t, fees.GasPrice)
	require.Equal(t, big.NewInt(22), fees.MaxFeePerGas)
	require.Equal(t, big.NewInt(2), fees.MaxPriorityFeePerGas)
}

func TestChainTransactionReceipt(t *testing.T) {
	b := newFakeBackend()
	c := NewChain(b)
	ctx := context.Background()

	mined := common.HexToHash("0x01")
	reverted := common.HexToHash("0x02")
	b.receipts[mined] = &types.Receipt{TxHash: mined, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9), GasUsed: 100}
	b.receipts[reverted] = &types.Receipt{TxHash: reverted, Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9)}

	r, err := c.TransactionReceipt(ctx, common.HexToHash("0x03"))
	require.NoError(t, err)
	require.Nil(t, r)

	r, err = c.TransactionReceipt(ctx, mined)
	require.NoError(t, err)
	require.Equal(t, &safeq.Receipt{TxHash: mined, BlockNumber: 9, GasUsed: 100, Success: true}, r)

	r, err = c.TransactionReceipt(ctx, reverted)
	require.NoError(t, err)
	require.False(t, r.Success)
}

func TestChainRecoveryQueue(t *testing.T) {
	modifier := common.HexToAddress("0xde1a7")
	b := newFakeBackend()
	b.set(t, delayABI, "txNonce", nil, big.NewInt(1))
	b.set(t, delayABI, "queueNonce", nil, big.NewInt(3))
	b.set(t, delayABI, "txCooldown", nil, big.NewInt(86400))
	b.set(t, delayABI, "txExpiration", nil, big.NewInt(0))
	for n, created := range map[int64]int64{1: 1000, 2: 2000} {
		b.set(t, delayABI, "txHash", []interface{}{big.NewInt(n)}, [32]byte(crypto.Keccak256Hash(big.NewInt(n).Bytes())))
		b.set(t, delayABI, "txCreatedAt", []interface{}{big.NewInt(n)}, big.NewInt(created))
	}

	items, err := NewChain(b).RecoveryQueue(context.Background(), modifier)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for i, item := range items {
		n := uint64(i + 1)
		require.Equal(t, modifier, item.Modifier)
		require.Equal(t, n, item.QueueNonce)
		require.Equal(t, crypto.Keccak256Hash(new(big.Int).SetUint64(n).Bytes()), item.TxHash)
		require.Equal(t, safeq.UnixTime(n*1000), item.CreatedAt)
		require.Equal(t, uint64(86400), item.DelayPeriod)
		require.Zero(t, item.ExpiryPeriod)
	}
}

func TestChainRecoveryQueueOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 63)

	cases := map[string]struct {
		cooldown, expiration, created *big.Int
	}{
		"cooldown": {cooldown: huge, expiration: big.NewInt(0), created: big.NewInt(1000)},
		"expiration": {
			cooldown:   big.NewInt(60),
			expiration: new(big.Int).SetUint64(math.MaxUint64),
			created:    big.NewInt(1000),
		},
		"creation time": {cooldown: big.NewInt(60), expiration: big.NewInt(0), created: huge},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			b := newFakeBackend()
			b.set(t, delayABI, "txNonce", nil, big.NewInt(0))
			b.set(t, delayABI, "queueNonce", nil, big.NewInt(1))
			b.set(t, delayABI, "txCooldown", nil, tc.cooldown)
			b.set(t, delayABI, "txExpiration", nil, tc.expiration)
			b.set(t, delayABI, "txHash", []interface{}{big.NewInt(0)}, [32]byte{1})
			b.set(t, delayABI, "txCreatedAt", []interface{}{big.NewInt(0)}, tc.created)

			items, err := NewChain(b).RecoveryQueue(context.Background(), common.HexToAddress("0xde1a7"))
			require.True(t, errors.ErrOverflow.Is(err), "unexpected error: %+v", err)
			require.Empty(t, items)
		})
	}
}

func TestChainEmptyRecoveryQueue(t *testing.T) {
	b := newFakeBackend()
	b.set(t, delayABI, "txNonce", nil, big.NewInt(4))
	b.set(t, delayABI, "queueNonce", nil, big.NewInt(4))

	items, err := NewChain(b).RecoveryQueue(context.Background(), common.HexToAddress("0xde1a7"))
	require.NoError(t, err)
	require.Empty(t, items)
}
