package orm

import (
	"reflect"
	"regexp"

	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/store"
)

// Model is implemented by any entity that can be stored using ModelBucket.
type Model interface {
	safeq.Persistent
	Validate() error
}

// ModelSlicePtr represents a pointer to a slice of models. Think of it as
// *[]Model Because of Go type system, using []Model type would not work for
// us. Instead we use a placeholder type and the validation is done during the
// runtime.
type ModelSlicePtr interface{}

// ModelBucket is implemented by buckets that operates on Models rather than
// Objects.
type ModelBucket interface {
	// One query the database for a single model instance. Lookup is done
	// by the primary index key. Result is loaded into given destination
	// model.
	// This method returns ErrNotFound if the entity does not exist in the
	// database.
	One(db safeq.ReadOnlyKVStore, key []byte, dest Model) error

	// Has returns nil if an entity with given primary key value exists.
	// It returns ErrNotFound if no entity can be found.
	Has(db safeq.ReadOnlyKVStore, key []byte) error

	// ByIndex returns all objects that secondary index with given name and
	// given key. Main index is always unique but secondary indexes can
	// return more than one value for the same key.
	// All matching entities are appended to given destination slice. The
	// returned keys are in the same order as the models.
	ByIndex(db safeq.ReadOnlyKVStore, indexName string, key []byte, dest ModelSlicePtr) (keys [][]byte, err error)

	// All loads every entity of this bucket, in primary key order.
	All(db safeq.ReadOnlyKVStore, dest ModelSlicePtr) (keys [][]byte, err error)

	// Put saves given model in the database. Before inserting into the
	// database, model is validated using its Validate method.
	Put(db safeq.KVStore, key []byte, m Model) error

	// Delete removes an entity with given primary key from the database.
	// It returns ErrNotFound if an entity with given key does not exist.
	Delete(db safeq.KVStore, key []byte) error
}

var isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString

// NewModelBucket returns a ModelBucket instance. Example model is used to
// create new instances when loading.
func NewModelBucket(name string, example Model, opts ...ModelBucketOption) ModelBucket {
	if !isBucketName(name) {
		panic("invalid bucket name: " + name)
	}
	tp := reflect.TypeOf(example)
	if tp.Kind() != reflect.Ptr {
		panic("model must be a pointer")
	}
	b := &modelBucket{
		name:   name,
		prefix: []byte(name + ":"),
		model:  tp.Elem(),
		idx:    make(map[string]*index),
	}
	for _, fn := range opts {
		fn(b)
	}
	return b
}

// ModelBucketOption is implemented by any function that can configure
// ModelBucket during creation.
type ModelBucketOption func(mb *modelBucket)

// WithIndex configures the bucket to build an index with given name. All
// entities stored in the bucket are indexed using value returned by the
// indexer function. If an index is unique, there can be only one entity
// referenced per index value.
func WithIndex(name string, indexer Indexer, unique bool) ModelBucketOption {
	return func(mb *modelBucket) {
		if _, ok := mb.idx[name]; ok {
			panic("index " + name + " already registered")
		}
		mb.idx[name] = newIndex(mb.name, name, indexer, unique)
	}
}

type modelBucket struct {
	name   string
	prefix []byte
	model  reflect.Type
	idx    map[string]*index
}

func (mb *modelBucket) dbKey(key []byte) []byte {
	out := make([]byte, len(mb.prefix)+len(key))
	copy(out, mb.prefix)
	copy(out[len(mb.prefix):], key)
	return out
}

func (mb *modelBucket) newModel() Model {
	return reflect.New(mb.model).Interface().(Model)
}

func (mb *modelBucket) One(db safeq.ReadOnlyKVStore, key []byte, dest Model) error {
	raw, err := db.Get(mb.dbKey(key))
	if err != nil {
		return errors.Wrap(err, "db get")
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%s %x", mb.name, key)
	}
	if reflect.TypeOf(dest) != reflect.PtrTo(mb.model) {
		return errors.Wrapf(errors.ErrType, "%s cannot be represented as %T", mb.model, dest)
	}
	if err := dest.Unmarshal(raw); err != nil {
		return errors.Wrap(errors.ErrModel, err.Error())
	}
	return nil
}

func (mb *modelBucket) Has(db safeq.ReadOnlyKVStore, key []byte) error {
	ok, err := db.Has(mb.dbKey(key))
	if err != nil {
		return errors.Wrap(err, "db has")
	}
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "%s %x", mb.name, key)
	}
	return nil
}

func (mb *modelBucket) ByIndex(db safeq.ReadOnlyKVStore, indexName string, key []byte, dest ModelSlicePtr) ([][]byte, error) {
	idx, ok := mb.idx[indexName]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidIndex, "unknown index %q", indexName)
	}
	keys, err := idx.Keys(db, key)
	if err != nil {
		return nil, errors.Wrap(err, "index keys")
	}
	return keys, mb.load(db, keys, dest)
}

func (mb *modelBucket) All(db safeq.ReadOnlyKVStore, dest ModelSlicePtr) ([][]byte, error) {
	it, err := db.Iterator(mb.prefix, store.PrefixEnd(mb.prefix))
	if err != nil {
		return nil, errors.Wrap(err, "iterator")
	}
	defer it.Release()

	var keys [][]byte
	for {
		k, _, err := it.Next()
		if errors.ErrIteratorDone.Is(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, k[len(mb.prefix):])
	}
	return keys, mb.load(db, keys, dest)
}

// load appends the models stored under given keys to the destination slice.
func (mb *modelBucket) load(db safeq.ReadOnlyKVStore, keys [][]byte, dest ModelSlicePtr) error {
	slice := reflect.ValueOf(dest)
	if slice.Kind() != reflect.Ptr || slice.Elem().Kind() != reflect.Slice {
		return errors.Wrapf(errors.ErrType, "destination must be a pointer to a slice, got %T", dest)
	}
	elem := slice.Elem().Type().Elem()
	byPtr := elem.Kind() == reflect.Ptr
	if (byPtr && elem.Elem() != mb.model) || (!byPtr && elem != mb.model) {
		return errors.Wrapf(errors.ErrType, "%s cannot be represented as %s", mb.model, elem)
	}

	res := slice.Elem()
	for _, key := range keys {
		m := mb.newModel()
		if err := mb.One(db, key, m); err != nil {
			return errors.Wrapf(err, "index references %x", key)
		}
		val := reflect.ValueOf(m)
		if !byPtr {
			val = val.Elem()
		}
		res = reflect.Append(res, val)
	}
	slice.Elem().Set(res)
	return nil
}

func (mb *modelBucket) Put(db safeq.KVStore, key []byte, m Model) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	if reflect.TypeOf(m) != reflect.PtrTo(mb.model) {
		return errors.Wrapf(errors.ErrType, "cannot store %T in %s bucket", m, mb.name)
	}
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}

	var prev Model
	if len(mb.idx) > 0 {
		p := mb.newModel()
		switch err := mb.One(db, key, p); {
		case err == nil:
			prev = p
		case !errors.ErrNotFound.Is(err):
			return errors.Wrap(err, "previous state")
		}
	}

	for name, idx := range mb.idx {
		if err := idx.CheckUnique(db, key, m); err != nil {
			return errors.Wrapf(err, "%q index", name)
		}
	}

	raw, err := m.Marshal()
	if err != nil {
		return errors.Wrap(errors.ErrModel, err.Error())
	}
	if err := db.Set(mb.dbKey(key), raw); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	for name, idx := range mb.idx {
		if err := idx.Update(db, key, prev, m); err != nil {
			return errors.Wrapf(err, "cannot update %q index", name)
		}
	}
	return nil
}

func (mb *modelBucket) Delete(db safeq.KVStore, key []byte) error {
	prev := mb.newModel()
	if err := mb.One(db, key, prev); err != nil {
		return err
	}
	if err := db.Delete(mb.dbKey(key)); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	for name, idx := range mb.idx {
		if err := idx.Update(db, key, prev, nil); err != nil {
			return errors.Wrapf(err, "cannot update %q index", name)
		}
	}
	return nil
}

var _ ModelBucket = (*modelBucket)(nil)
