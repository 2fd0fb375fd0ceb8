package store

import (
	"bytes"

	"github.com/google/btree"
	"github.com/iov-one/safeq/errors"
)

const (
	// DefaultFreeListSize is the size we hold for free node in btree
	DefaultFreeListSize = btree.DefaultFreeListSize

	degree = 2
)

// MemStore returns a simple in-memory implementation. There is no
// persistence here. Use CacheWrap to group writes that must be applied
// together.
func MemStore() CacheableKVStore {
	e := EmptyKVStore{}
	return memStore{NewBTreeCacheWrap(e, e, nil)}
}

// memStore is the bottom layer. It has nothing to flush into.
type memStore struct {
	BTreeCacheWrap
}

func (memStore) Write() error { return nil }

func (memStore) Discard() {}

// item is a single btree entry. Deleted items shadow the value of the
// backing store.
type item struct {
	key     []byte
	value   []byte
	deleted bool
}

func itemLess(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// BTreeCacheWrap places a btree cache over a KVStore. All writes are kept in
// the btree until Write is called.
type BTreeCacheWrap struct {
	bt   *btree.BTreeG[item]
	free *btree.FreeListG[item]
	back ReadOnlyKVStore
	out  SetDeleter
}

var _ KVCacheWrap = BTreeCacheWrap{}

// NewBTreeCacheWrap initializes a BTree to cache around given store. Reads
// fall through to back and Write flushes into out. Usually both are the same
// store.
//
// free may be nil, but set to an existing list to reuse it for memory
// savings.
func NewBTreeCacheWrap(back ReadOnlyKVStore, out SetDeleter, free *btree.FreeListG[item]) BTreeCacheWrap {
	if free == nil {
		free = btree.NewFreeListG[item](DefaultFreeListSize)
	}
	return BTreeCacheWrap{
		bt:   btree.NewWithFreeListG[item](degree, itemLess, free),
		free: free,
		back: back,
		out:  out,
	}
}

// CacheWrap layers another BTree on top of this one.
func (b BTreeCacheWrap) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(b, b, b.free)
}

// Write flushes all cached operations, in key order, to the underlying
// store and clears the cache.
func (b BTreeCacheWrap) Write() error {
	var err error
	b.bt.Ascend(func(it item) bool {
		if it.deleted {
			err = b.out.Delete(it.key)
		} else {
			err = b.out.Set(it.key, it.value)
		}
		return err == nil
	})
	b.Discard()
	return errors.Wrap(err, "write cache")
}

// Discard invalidates this CacheWrap and releases all data.
func (b BTreeCacheWrap) Discard() {
	b.bt.Clear(true)
}

// Set writes to the BTree.
func (b BTreeCacheWrap) Set(key, value []byte) error {
	assertKey(key)
	b.bt.ReplaceOrInsert(item{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

// Delete marks given key as deleted in the BTree.
func (b BTreeCacheWrap) Delete(key []byte) error {
	assertKey(key)
	b.bt.ReplaceOrInsert(item{key: copyBytes(key), deleted: true})
	return nil
}

// Get reads from btree if there, else backing store.
func (b BTreeCacheWrap) Get(key []byte) ([]byte, error) {
	assertKey(key)
	if it, ok := b.bt.Get(item{key: key}); ok {
		if it.deleted {
			return nil, nil
		}
		return it.value, nil
	}
	return b.back.Get(key)
}

// Has reads from btree if there, else backing store.
func (b BTreeCacheWrap) Has(key []byte) (bool, error) {
	assertKey(key)
	if it, ok := b.bt.Get(item{key: key}); ok {
		return !it.deleted, nil
	}
	return b.back.Has(key)
}

// Iterator over a domain of keys in ascending order. Combines results from
// btree and backing store.
func (b BTreeCacheWrap) Iterator(start, end []byte) (Iterator, error) {
	models, err := b.merged(start, end)
	if err != nil {
		return nil, err
	}
	return NewSliceIterator(models), nil
}

// ReverseIterator over a domain of keys in descending order. Combines
// results from btree and backing store.
func (b BTreeCacheWrap) ReverseIterator(start, end []byte) (Iterator, error) {
	models, err := b.merged(start, end)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
		models[i], models[j] = models[j], models[i]
	}
	return NewSliceIterator(models), nil
}

// merged returns all entries within given range, with our changes applied
// over those of the backing store.
func (b BTreeCacheWrap) merged(start, end []byte) ([]Model, error) {
	parent, err := b.back.Iterator(start, end)
	if err != nil {
		return nil, errors.Wrap(err, "backing iterator")
	}
	defer parent.Release()

	var back []Model
	for {
		k, v, err := parent.Next()
		if errors.ErrIteratorDone.Is(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		back = append(back, Model{Key: k, Value: v})
	}

	var ours []item
	collect := func(it item) bool {
		ours = append(ours, it)
		return true
	}
	switch {
	case start == nil && end == nil:
		b.bt.Ascend(collect)
	case start == nil:
		b.bt.AscendLessThan(item{key: end}, collect)
	case end == nil:
		b.bt.AscendGreaterOrEqual(item{key: start}, collect)
	default:
		b.bt.AscendRange(item{key: start}, item{key: end}, collect)
	}

	res := make([]Model, 0, len(back)+len(ours))
	i, j := 0, 0
	for i < len(back) || j < len(ours) {
		var cmp int
		switch {
		case i == len(back):
			cmp = 1
		case j == len(ours):
			cmp = -1
		default:
			cmp = bytes.Compare(back[i].Key, ours[j].key)
		}

		if cmp < 0 {
			res = append(res, back[i])
			i++
			continue
		}
		// Our entry overwrites the backing one when the keys are equal.
		if cmp == 0 {
			i++
		}
		if !ours[j].deleted {
			res = append(res, Model{Key: ours[j].key, Value: ours[j].value})
		}
		j++
	}
	return res, nil
}

func assertKey(key []byte) {
	if key == nil {
		panic("nil key")
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
