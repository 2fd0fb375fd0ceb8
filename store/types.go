package store

import "github.com/iov-one/safeq"

// Move references for all storage types into this package
// for shorter names everywhere

type ReadOnlyKVStore = safeq.ReadOnlyKVStore
type SetDeleter = safeq.SetDeleter
type KVStore = safeq.KVStore
type Iterator = safeq.Iterator
type CacheableKVStore = safeq.CacheableKVStore
type KVCacheWrap = safeq.KVCacheWrap
