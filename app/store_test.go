package app

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerIsBoundToSafe(t *testing.T) {
	safe := common.HexToAddress("0x5afe")
	db := store.MemStore()

	_, err := NewLedger(db, safe, 1)
	require.NoError(t, err)
	_, err = NewLedger(db, safe, 1)
	require.NoError(t, err)

	_, err = NewLedger(db, common.HexToAddress("0x0a"), 1)
	assert.True(t, errors.ErrUnauthorized.Is(err))
	_, err = NewLedger(db, safe, 5)
	assert.True(t, errors.ErrUnauthorized.Is(err))
	_, err = NewLedger(store.MemStore(), common.Address{}, 1)
	assert.True(t, errors.ErrInput.Is(err))
}

func TestLedgerUpdateIsAtomic(t *testing.T) {
	db, ops := store.LogableStore()
	l, err := NewLedger(db, common.HexToAddress("0x5afe"), 1)
	require.NoError(t, err)
	require.Len(t, ops.ShowOps(), 1, "safe identity is stored")

	err = l.Update(func(db safeq.KVStore) error {
		require.NoError(t, db.Set([]byte("a"), []byte("1")))
		return errors.Wrap(errors.ErrState, "abort")
	})
	require.True(t, errors.ErrState.Is(err))
	require.Len(t, ops.ShowOps(), 1, "aborted update wrote nothing")

	err = l.Update(func(db safeq.KVStore) error {
		return db.Set([]byte("b"), []byte("2"))
	})
	require.NoError(t, err)
	require.Len(t, ops.ShowOps(), 2)

	err = l.View(func(db safeq.ReadOnlyKVStore) error {
		a, err := db.Get([]byte("a"))
		require.NoError(t, err)
		assert.Nil(t, a)
		b, err := db.Get([]byte("b"))
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), b)
		return nil
	})
	require.NoError(t, err)
}
