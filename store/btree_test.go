package store

import (
	"testing"

	"github.com/iov-one/safeq/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t testing.TB, db ReadOnlyKVStore, key []byte) []byte {
	t.Helper()
	v, err := db.Get(key)
	require.NoError(t, err)
	return v
}

func has(t testing.TB, db ReadOnlyKVStore, key []byte) bool {
	t.Helper()
	ok, err := db.Has(key)
	require.NoError(t, err)
	return ok
}

// TestBTreeCacheGetSet does basic sanity checks on our cache.
func TestBTreeCacheGetSet(t *testing.T) {
	base := MemStore()

	k, v := []byte("french"), []byte("fry")
	assert.Nil(t, get(t, base, k))
	assert.False(t, has(t, base, k))
	require.NoError(t, base.Set(k, v))
	assert.Equal(t, v, get(t, base, k))
	assert.True(t, has(t, base, k))

	// now layer another btree on top and make sure that we get
	// base data
	cache := base.CacheWrap()
	assert.Equal(t, v, get(t, cache, k))

	// writing more data is only visible in the cache
	k2, v2 := []byte("LA"), []byte("Dodgers")
	require.NoError(t, cache.Set(k2, v2))
	assert.Equal(t, v2, get(t, cache, k2))
	assert.Nil(t, get(t, base, k2))

	// we can write the cache to the base layer...
	require.NoError(t, cache.Write())
	assert.Equal(t, v, get(t, base, k))
	assert.Equal(t, v2, get(t, base, k2))

	// we can discard one
	k3, v3 := []byte("Bayern"), []byte("Munich")
	c2 := base.CacheWrap()
	require.NoError(t, c2.Set(k3, v3))
	c2.Discard()
	assert.Nil(t, get(t, base, k3))

	// and commit another
	c3 := base.CacheWrap()
	require.NoError(t, c3.Delete(k))
	assert.False(t, has(t, c3, k))
	require.NoError(t, c3.Write())

	assert.Nil(t, get(t, base, k))
	assert.Equal(t, v2, get(t, base, k2))

	// writing the bottom layer keeps the data
	require.NoError(t, base.(KVCacheWrap).Write())
	assert.Equal(t, v2, get(t, base, k2))
}

func TestBTreeCacheIterator(t *testing.T) {
	base := MemStore()
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, base.Set([]byte(k), []byte("base-"+k)))
	}

	cache := base.CacheWrap()
	require.NoError(t, cache.Delete([]byte("b")))
	require.NoError(t, cache.Set([]byte("c"), []byte("cache-c")))
	require.NoError(t, cache.Set([]byte("bb"), []byte("cache-bb")))

	cases := map[string]struct {
		start, end []byte
		reverse    bool
		want       []Model
	}{
		"full range": {
			want: []Model{
				{Key: []byte("a"), Value: []byte("base-a")},
				{Key: []byte("bb"), Value: []byte("cache-bb")},
				{Key: []byte("c"), Value: []byte("cache-c")},
				{Key: []byte("d"), Value: []byte("base-d")},
			},
		},
		"bounded range": {
			start: []byte("b"),
			end:   []byte("d"),
			want: []Model{
				{Key: []byte("bb"), Value: []byte("cache-bb")},
				{Key: []byte("c"), Value: []byte("cache-c")},
			},
		},
		"open end": {
			start: []byte("c"),
			want: []Model{
				{Key: []byte("c"), Value: []byte("cache-c")},
				{Key: []byte("d"), Value: []byte("base-d")},
			},
		},
		"reverse with open start": {
			end:     []byte("c"),
			reverse: true,
			want: []Model{
				{Key: []byte("bb"), Value: []byte("cache-bb")},
				{Key: []byte("a"), Value: []byte("base-a")},
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var (
				it  Iterator
				err error
			)
			if tc.reverse {
				it, err = cache.ReverseIterator(tc.start, tc.end)
			} else {
				it, err = cache.Iterator(tc.start, tc.end)
			}
			require.NoError(t, err)
			defer it.Release()

			var got []Model
			for {
				k, v, err := it.Next()
				if errors.ErrIteratorDone.Is(err) {
					break
				}
				require.NoError(t, err)
				got = append(got, Model{Key: k, Value: v})
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLogableStore(t *testing.T) {
	db, log := LogableStore()
	cache := db.CacheWrap()
	require.NoError(t, cache.Set([]byte("x"), []byte("1")))
	require.NoError(t, cache.Delete([]byte("y")))
	assert.Empty(t, log.ShowOps())

	require.NoError(t, cache.Write())
	assert.Equal(t, []Op{
		{Key: []byte("x"), Value: []byte("1")},
		{Key: []byte("y"), Delete: true},
	}, log.ShowOps())
	assert.Equal(t, []byte("1"), get(t, db, []byte("x")))
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("ab"), PrefixEnd([]byte("aa")))
	assert.Equal(t, []byte{0x02}, PrefixEnd([]byte{0x01, 0xff}))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}
