package app

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// Ledger guards the local store of a single Safe. Writes go through a cache
// wrap that is only written back when the whole update succeeded.
type Ledger struct {
	mu sync.RWMutex
	db safeq.CacheableKVStore
}

// NewLedger binds the store to given Safe. A store that was already bound to
// another Safe is rejected.
func NewLedger(db safeq.CacheableKVStore, safe common.Address, chainID uint64) (*Ledger, error) {
	l := &Ledger{db: db}
	err := l.Update(func(db safeq.KVStore) error {
		return saveSafeID(db, safe, chainID)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Update runs fn on a cache wrap of the store. All changes are written when
// fn returns no error and discarded otherwise.
func (l *Ledger) Update(fn func(db safeq.KVStore) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cache := l.db.CacheWrap()
	if err := fn(cache); err != nil {
		cache.Discard()
		return err
	}
	if err := cache.Write(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// View runs fn with read access to the store.
func (l *Ledger) View(fn func(db safeq.ReadOnlyKVStore) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(l.db)
}

//------- storing the Safe identity ---------

// _sq: is a prefix for internal data
const safeIDKey = "_sq:safe"

func safeID(safe common.Address, chainID uint64) []byte {
	id := make([]byte, 0, common.AddressLength+8)
	id = append(id, safe[:]...)
	return binary.BigEndian.AppendUint64(id, chainID)
}

// saveSafeID stores the Safe identity in the kv store. Returns an error if
// another identity is already stored.
func saveSafeID(kv safeq.KVStore, safe common.Address, chainID uint64) error {
	if safe == (common.Address{}) || chainID == 0 {
		return errors.Wrap(errors.ErrInput, "safe identity")
	}
	want := safeID(safe, chainID)
	k := []byte(safeIDKey)
	got, err := kv.Get(k)
	if err != nil {
		return errors.Wrap(err, "load safe identity")
	}
	switch {
	case got == nil:
	case bytes.Equal(got, want):
		return nil
	default:
		return errors.Wrap(errors.ErrUnauthorized, "store belongs to another Safe")
	}
	if err := kv.Set(k, want); err != nil {
		return errors.Wrap(err, "save safe identity")
	}
	return nil
}
