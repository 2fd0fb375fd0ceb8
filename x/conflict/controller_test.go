package conflict

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/safeqtest"
	"github.com/iov-one/safeq/safeqtest/assert"
	"github.com/iov-one/safeq/store"
	"github.com/iov-one/safeq/x/confirm"
)

func TestResolve(t *testing.T) {
	owners := safeqtest.NewOwners(t, 2)
	a := safeqtest.NewAccount(t, 2, owners...)

	old := safeqtest.NewTx(t, a, 5, owners, safeqtest.WithSubmittedAt(100))
	recent := safeqtest.NewTx(t, a, 5, owners[:1], safeqtest.WithValue(2), safeqtest.WithSubmittedAt(200))
	next := safeqtest.NewTx(t, a, 6, owners)
	executed := safeqtest.NewTx(t, a, 7, owners, safeqtest.WithStatus(safeq.StatusSuccess))
	sibling := safeqtest.NewTx(t, a, 7, owners, safeqtest.WithValue(2))

	cases := map[string]struct {
		queue       []*safeq.Transaction
		wantNonces  []uint64
		wantCurrent []common.Hash
		check       func(t *testing.T, groups []NonceGroup)
	}{
		"empty queue": {},
		"groups are ordered by nonce": {
			queue:       []*safeq.Transaction{next, old},
			wantNonces:  []uint64{5, 6},
			wantCurrent: []common.Hash{old.ID, next.ID},
		},
		"latest submission is current": {
			queue:       []*safeq.Transaction{old, recent},
			wantNonces:  []uint64{5},
			wantCurrent: []common.Hash{recent.ID},
			check: func(t *testing.T, groups []NonceGroup) {
				assert.Equal(t, true, groups[0].IsConflict())
				assert.Equal(t, old.ID, groups[0].Alternatives[0].ID)
				// The current one is not confirmed, the alternative is.
				assert.Equal(t, old.ID, groups[0].Executable().ID)
			},
		},
		"success replaces siblings": {
			queue:      []*safeq.Transaction{sibling, executed},
			wantNonces: []uint64{7},
			check: func(t *testing.T, groups []NonceGroup) {
				g := groups[0]
				assert.Equal(t, executed.ID, g.Winner)
				for _, m := range g.Members() {
					if m.ID == sibling.ID {
						assert.Status(t, safeq.StatusWillBeReplaced, m)
					}
				}
				if g.Executable() != nil {
					t.Fatal("settled group must not be executable")
				}
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			groups := Resolve(tc.queue)
			assert.Equal(t, len(tc.wantNonces), len(groups))
			for i, n := range tc.wantNonces {
				assert.Equal(t, n, groups[i].Nonce)
			}
			for i, id := range tc.wantCurrent {
				assert.Equal(t, id, groups[i].Current.ID)
			}
			if tc.check != nil {
				tc.check(t, groups)
			}
		})
	}

	// The queue itself is never modified.
	assert.Equal(t, safeq.StatusAwaitingExecution, sibling.Status)
}

func TestResolveTieIsDeterministic(t *testing.T) {
	owners := safeqtest.NewOwners(t, 1)
	a := safeqtest.NewAccount(t, 1, owners...)
	x := safeqtest.NewTx(t, a, 0, owners, safeqtest.WithSubmittedAt(10))
	y := safeqtest.NewTx(t, a, 0, owners, safeqtest.WithValue(2), safeqtest.WithSubmittedAt(10))

	first := Resolve([]*safeq.Transaction{x, y})[0].Current.ID
	second := Resolve([]*safeq.Transaction{y, x})[0].Current.ID
	assert.Equal(t, first, second)
}

func TestAtMostOneWinnerPerNonce(t *testing.T) {
	owners := safeqtest.NewOwners(t, 1)
	a := safeqtest.NewAccount(t, 1, owners...)
	statuses := []safeq.Status{
		safeq.StatusAwaitingConfirmations,
		safeq.StatusAwaitingExecution,
		safeq.StatusSuccess,
		safeq.StatusFailed,
		safeq.StatusCancelled,
	}

	rnd := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		var queue []*safeq.Transaction
		for i := 0; i < 12; i++ {
			queue = append(queue, safeqtest.NewTx(t, a, uint64(rnd.Intn(4)), owners,
				safeqtest.WithValue(int64(i+1)),
				safeqtest.WithSubmittedAt(safeq.UnixTime(rnd.Intn(5))),
				safeqtest.WithStatus(statuses[rnd.Intn(len(statuses))])))
		}
		for _, g := range Resolve(queue) {
			winners := 0
			for _, m := range g.Members() {
				switch m.Status {
				case safeq.StatusSuccess:
					winners++
				case safeq.StatusAwaitingConfirmations, safeq.StatusAwaitingExecution:
					if g.IsSettled() {
						t.Fatalf("nonce %d: %s left %s next to a winner", g.Nonce, m.ID.Hex(), m.Status)
					}
				}
			}
			if winners > 1 {
				t.Fatalf("nonce %d has %d winners", g.Nonce, winners)
			}
		}
	}
}

func TestApplySuccess(t *testing.T) {
	owners := safeqtest.NewOwners(t, 3)
	a := safeqtest.NewAccount(t, 2, owners...)
	a.Nonce = 5

	db := store.MemStore()
	bucket := confirm.NewTransactionBucket()
	t1 := safeqtest.NewTx(t, a, 5, owners[:2])
	t2 := safeqtest.NewTx(t, a, 5, owners[1:], safeqtest.WithValue(2))
	other := safeqtest.NewTx(t, a, 6, owners[:2])
	for _, tx := range []*safeq.Transaction{t1, t2, other} {
		assert.Nil(t, confirm.Propose(db, a, tx))
	}

	txHash := common.HexToHash("0xbeef")
	replaced, err := ApplySuccess(db, t1.ID, txHash)
	assert.Nil(t, err)
	assert.Hashes(t, []common.Hash{t2.ID}, replaced)

	got, err := bucket.GetTransaction(db, t1.ID)
	assert.Nil(t, err)
	assert.Status(t, safeq.StatusSuccess, got)
	assert.Equal(t, txHash, got.ExecutedTxHash)

	got, err = bucket.GetTransaction(db, t2.ID)
	assert.Nil(t, err)
	assert.Status(t, safeq.StatusWillBeReplaced, got)

	got, err = bucket.GetTransaction(db, other.ID)
	assert.Nil(t, err)
	assert.Status(t, safeq.StatusAwaitingExecution, got)

	// The replaced sibling can never win anymore.
	_, err = ApplySuccess(db, t2.ID, common.Hash{})
	assert.IsErr(t, errors.ErrConflict, err)
}
