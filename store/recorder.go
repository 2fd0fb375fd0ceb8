package store

// Op is a single recorded write.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// ShowOpser returns an ordered list of all write operations performed.
type ShowOpser interface {
	ShowOps() []Op
}

// LogableStore will return a store, along with insight into all operations
// that were run on it. Tests use it to ensure that a rejected operation did
// not write anything.
func LogableStore() (CacheableKVStore, ShowOpser) {
	r := &recorder{KVStore: MemStore()}
	return recordingStore{recorder: r}, r
}

type recorder struct {
	KVStore
	ops []Op
}

func (r *recorder) ShowOps() []Op {
	return r.ops
}

type recordingStore struct {
	*recorder
}

var _ CacheableKVStore = recordingStore{}

func (r recordingStore) Set(key, value []byte) error {
	r.ops = append(r.ops, Op{Key: key, Value: value})
	return r.KVStore.Set(key, value)
}

func (r recordingStore) Delete(key []byte) error {
	r.ops = append(r.ops, Op{Key: key, Delete: true})
	return r.KVStore.Delete(key)
}

// CacheWrap writes go through the recorder once the cache is written.
func (r recordingStore) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(r, r, nil)
}
