package orm

import (
	"bytes"
	"sort"

	"github.com/goccy/go-json"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// Indexer calculates the secondary index key for a given model. Returning a
// nil key means the model is not indexed.
type Indexer func(Model) ([]byte, error)

const compactIdxPrefix = "_i."

// index stores all keys indexed under one value as a set, serialized and
// stored under single key. This implementation should be used only for small
// sized index collections.
type index struct {
	name    string
	id      []byte
	unique  bool
	indexer Indexer
}

func newIndex(bucket, name string, indexer Indexer, unique bool) *index {
	return &index{
		name:    name,
		id:      []byte(compactIdxPrefix + bucket + "_" + name + ":"),
		unique:  unique,
		indexer: indexer,
	}
}

// indexKey is the full key we store in the db, including prefix.
func (i *index) indexKey(value []byte) []byte {
	out := make([]byte, len(i.id)+len(value))
	copy(out, i.id)
	copy(out[len(i.id):], value)
	return out
}

// Keys returns all primary keys indexed under given value, sorted.
func (i *index) Keys(db safeq.ReadOnlyKVStore, value []byte) ([][]byte, error) {
	raw, err := db.Get(i.indexKey(value))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var keys [][]byte
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "corrupted index %q: %s", i.name, err)
	}
	return keys, nil
}

// Update moves the reference of the primary key from the index value of
// prev to the index value of save.
//
// prev == nil means insert
// save == nil means delete
func (i *index) Update(db safeq.KVStore, key []byte, prev, save Model) error {
	if prev == nil && save == nil {
		return errors.Wrap(errors.ErrHuman, "update requires at least one model")
	}

	var prevValue, saveValue []byte
	if prev != nil {
		v, err := i.indexer(prev)
		if err != nil {
			return err
		}
		prevValue = v
	}
	if save != nil {
		v, err := i.indexer(save)
		if err != nil {
			return err
		}
		saveValue = v
	}

	if prev != nil && save != nil && bytes.Equal(prevValue, saveValue) {
		return nil
	}
	if prevValue != nil {
		if err := i.remove(db, prevValue, key); err != nil {
			return err
		}
	}
	if saveValue != nil {
		if err := i.add(db, saveValue, key); err != nil {
			return err
		}
	}
	return nil
}

// CheckUnique returns ErrDuplicate if the index is unique and the value of
// given model is already referenced by another key.
func (i *index) CheckUnique(db safeq.ReadOnlyKVStore, key []byte, m Model) error {
	if !i.unique {
		return nil
	}
	value, err := i.indexer(m)
	if err != nil || value == nil {
		return err
	}
	keys, err := i.Keys(db, value)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !bytes.Equal(k, key) {
			return errors.Wrapf(errors.ErrDuplicate, "index %q value %x", i.name, value)
		}
	}
	return nil
}

func (i *index) add(db safeq.KVStore, value, key []byte) error {
	keys, err := i.Keys(db, value)
	if err != nil {
		return err
	}
	at := sort.Search(len(keys), func(n int) bool { return bytes.Compare(keys[n], key) >= 0 })
	if at < len(keys) && bytes.Equal(keys[at], key) {
		return nil
	}
	if i.unique && len(keys) > 0 {
		return errors.Wrapf(errors.ErrDuplicate, "index %q value %x", i.name, value)
	}
	keys = append(keys, nil)
	copy(keys[at+1:], keys[at:])
	keys[at] = key
	return i.store(db, value, keys)
}

func (i *index) remove(db safeq.KVStore, value, key []byte) error {
	keys, err := i.Keys(db, value)
	if err != nil {
		return err
	}
	at := sort.Search(len(keys), func(n int) bool { return bytes.Compare(keys[n], key) >= 0 })
	if at == len(keys) || !bytes.Equal(keys[at], key) {
		return errors.Wrapf(errors.ErrNotFound, "index %q has no %x reference", i.name, key)
	}
	keys = append(keys[:at], keys[at+1:]...)
	return i.store(db, value, keys)
}

func (i *index) store(db safeq.KVStore, value []byte, keys [][]byte) error {
	if len(keys) == 0 {
		return db.Delete(i.indexKey(value))
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return db.Set(i.indexKey(value), raw)
}
