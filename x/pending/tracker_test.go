package pending

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/safeqtest/assert"
)

var (
	idA = common.HexToHash("0xa1")
	idB = common.HexToHash("0xb2")
	idC = common.HexToHash("0xc3")
)

func sub(id common.Hash, batch string) Submission {
	return Submission{ID: id, BatchID: batch, StartedAt: 1600000000}
}

// testTracker runs the behaviour shared by all tracker implementations.
func testTracker(t *testing.T, newTracker func(t *testing.T) Tracker) {
	ctx := safeq.WithNow(context.Background(), safeq.UnixTime(1600000001).Time())

	t.Run("register and release", func(t *testing.T) {
		tr := newTracker(t)
		assert.Nil(t, tr.Register(ctx, []Submission{sub(idA, "one"), sub(idB, "one")}))

		got, err := tr.Get(ctx, idA)
		assert.Nil(t, err)
		assert.Equal(t, "one", got.BatchID)

		assert.Nil(t, tr.Release(ctx, idA, idB, idC))
		_, err = tr.Get(ctx, idA)
		assert.IsErr(t, errors.ErrNotFound, err)

		// Released identities can be submitted again.
		assert.Nil(t, tr.Register(ctx, []Submission{sub(idA, "two")}))
	})

	t.Run("registration is all or nothing", func(t *testing.T) {
		tr := newTracker(t)
		assert.Nil(t, tr.Register(ctx, []Submission{sub(idB, "one")}))

		err := tr.Register(ctx, []Submission{sub(idA, "two"), sub(idB, "two"), sub(idC, "two")})
		assert.IsErr(t, errors.ErrInProgress, err)

		subs, err := tr.List(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 1, len(subs))
		assert.Equal(t, "one", subs[0].BatchID)
	})

	t.Run("invalid registrations", func(t *testing.T) {
		tr := newTracker(t)
		assert.IsErr(t, errors.ErrEmpty, tr.Register(ctx, nil))
		assert.IsErr(t, errors.ErrDuplicate, tr.Register(ctx, []Submission{sub(idA, "x"), sub(idA, "x")}))
		assert.IsErr(t, errors.ErrEmpty, tr.Register(ctx, []Submission{{ID: idA, StartedAt: 1}}))
	})

	t.Run("update keeps the registration", func(t *testing.T) {
		tr := newTracker(t)
		s := sub(idA, "one")
		assert.IsErr(t, errors.ErrNotFound, tr.Update(ctx, s))
		assert.Nil(t, tr.Register(ctx, []Submission{s}))

		s.TxHash = common.HexToHash("0xbeef")
		assert.Nil(t, tr.Update(ctx, s))
		got, err := tr.Get(ctx, idA)
		assert.Nil(t, err)
		assert.Equal(t, true, got.IsBroadcast())
		assert.Equal(t, s.TxHash, got.TxHash)
	})

	t.Run("in flight lookup", func(t *testing.T) {
		tr := newTracker(t)
		assert.Nil(t, tr.Register(ctx, []Submission{sub(idA, "one")}))
		inFlight, err := InFlight(ctx, tr)
		assert.Nil(t, err)
		assert.Equal(t, true, inFlight(idA))
		assert.Equal(t, false, inFlight(idB))
	})

	t.Run("concurrent registration of the same identity", func(t *testing.T) {
		tr := newTracker(t)
		const workers = 16

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := tr.Register(ctx, []Submission{sub(idA, "batch")})
				switch {
				case err == nil:
					mu.Lock()
					accepted++
					mu.Unlock()
				case !errors.ErrInProgress.Is(err):
					t.Errorf("unexpected error: %+v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, accepted)
	})
}

func TestMemTracker(t *testing.T) {
	testTracker(t, func(t *testing.T) Tracker {
		return NewMemTracker(DefaultConfiguration())
	})
}

func TestMemTrackerExpiry(t *testing.T) {
	conf := DefaultConfiguration()
	tr := NewMemTracker(conf)
	start := safeq.UnixTime(1600000000)
	ctx := safeq.WithNow(context.Background(), start.Time())

	assert.Nil(t, tr.Register(ctx, []Submission{{ID: idA, BatchID: "one", StartedAt: start}}))

	before := safeq.WithNow(ctx, start.Add(conf.TTL()-1e9).Time())
	_, err := tr.Get(before, idA)
	assert.Nil(t, err)

	after := safeq.WithNow(ctx, start.Add(conf.TTL()).Time())
	_, err = tr.Get(after, idA)
	assert.IsErr(t, errors.ErrNotFound, err)
	assert.Nil(t, tr.Register(after, []Submission{{ID: idA, BatchID: "two", StartedAt: start.Add(conf.TTL())}}))
}
