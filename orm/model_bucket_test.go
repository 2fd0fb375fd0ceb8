package orm

import (
	"strconv"
	"testing"

	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/safeqtest/assert"
	"github.com/iov-one/safeq/store"
)

type counter struct {
	Count int64 `json:"count"`
}

func (c *counter) Validate() error {
	if c.Count < 0 {
		return errors.Wrap(errors.ErrModel, "negative count")
	}
	return nil
}

func (c *counter) Marshal() ([]byte, error) { return json.Marshal(c) }

func (c *counter) Unmarshal(raw []byte) error { return json.Unmarshal(raw, c) }

type other struct{ counter }

func indexByCount(m Model) ([]byte, error) {
	c, ok := m.(*counter)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "%T", m)
	}
	return []byte(strconv.FormatInt(c.Count, 10)), nil
}

func TestModelBucket(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts", &counter{})

	assert.Nil(t, b.Put(db, []byte("c1"), &counter{Count: 1}))

	var c1 counter
	assert.Nil(t, b.One(db, []byte("c1"), &c1))
	assert.Equal(t, int64(1), c1.Count)
	assert.Nil(t, b.Has(db, []byte("c1")))

	assert.IsErr(t, errors.ErrModel, b.Put(db, []byte("c2"), &counter{Count: -1}))
	assert.IsErr(t, errors.ErrType, b.Put(db, []byte("c2"), &other{}))
	assert.IsErr(t, errors.ErrType, b.One(db, []byte("c1"), &other{}))

	assert.Nil(t, b.Delete(db, []byte("c1")))
	assert.IsErr(t, errors.ErrNotFound, b.Delete(db, []byte("unknown")))
	assert.IsErr(t, errors.ErrNotFound, b.One(db, []byte("c1"), &c1))
	assert.IsErr(t, errors.ErrNotFound, b.Has(db, []byte("c1")))
}

func TestModelBucketByIndex(t *testing.T) {
	cases := map[string]struct {
		indexName string
		queryKey  string
		dest      []*counter
		wantErr   *errors.Error
		wantRes   []*counter
		wantKeys  [][]byte
	}{
		"find none": {
			indexName: "value",
			queryKey:  "124089710947120",
		},
		"find one": {
			indexName: "value",
			queryKey:  "1111",
			wantRes:   []*counter{{Count: 1111}},
			wantKeys:  [][]byte{[]byte("c3")},
		},
		"find two": {
			indexName: "value",
			queryKey:  "4444",
			wantRes:   []*counter{{Count: 4444}, {Count: 4444}},
			wantKeys:  [][]byte{[]byte("c1"), []byte("c2")},
		},
		"destination is always appended to": {
			indexName: "value",
			queryKey:  "4444",
			dest:      []*counter{{Count: 7}},
			wantRes:   []*counter{{Count: 7}, {Count: 4444}, {Count: 4444}},
			wantKeys:  [][]byte{[]byte("c1"), []byte("c2")},
		},
		"non existing index name": {
			indexName: "xyz",
			wantErr:   ErrInvalidIndex,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			b := NewModelBucket("cnts", &counter{}, WithIndex("value", indexByCount, false))

			assert.Nil(t, b.Put(db, []byte("c1"), &counter{Count: 4444}))
			assert.Nil(t, b.Put(db, []byte("c2"), &counter{Count: 4444}))
			assert.Nil(t, b.Put(db, []byte("c3"), &counter{Count: 1111}))
			assert.Nil(t, b.Put(db, []byte("c4"), &counter{Count: 99999}))

			keys, err := b.ByIndex(db, tc.indexName, []byte(tc.queryKey), &tc.dest)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %s", err)
			}
			assert.Equal(t, tc.wantRes, tc.dest)
			assert.Equal(t, tc.wantKeys, keys)
		})
	}
}

func TestModelBucketIndexUpdates(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts", &counter{}, WithIndex("value", indexByCount, true))

	assert.Nil(t, b.Put(db, []byte("a"), &counter{Count: 1}))
	assert.IsErr(t, errors.ErrDuplicate, b.Put(db, []byte("b"), &counter{Count: 1}))

	// Moving a model to another value releases the previous one.
	assert.Nil(t, b.Put(db, []byte("a"), &counter{Count: 2}))
	assert.Nil(t, b.Put(db, []byte("b"), &counter{Count: 1}))

	var found []counter
	keys, err := b.ByIndex(db, "value", []byte("2"), &found)
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, keys)

	assert.Nil(t, b.Delete(db, []byte("a")))
	found = nil
	keys, err = b.ByIndex(db, "value", []byte("2"), &found)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(keys))
}

func TestModelBucketAll(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts", &counter{})
	others := NewModelBucket("cntx", &counter{})

	assert.Nil(t, b.Put(db, []byte("b"), &counter{Count: 2}))
	assert.Nil(t, b.Put(db, []byte("a"), &counter{Count: 1}))
	assert.Nil(t, others.Put(db, []byte("c"), &counter{Count: 3}))

	var all []counter
	keys, err := b.All(db, &all)
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, keys)
	assert.Equal(t, []counter{{Count: 1}, {Count: 2}}, all)

	var wrong []string
	_, err = b.All(db, &wrong)
	assert.IsErr(t, errors.ErrType, err)
}

func TestNewModelBucketPanics(t *testing.T) {
	assert.Panics(t, func() { NewModelBucket("Invalid Name", &counter{}) })
	assert.Panics(t, func() {
		NewModelBucket("cnts", &counter{},
			WithIndex("value", indexByCount, false),
			WithIndex("value", indexByCount, true))
	})
}
