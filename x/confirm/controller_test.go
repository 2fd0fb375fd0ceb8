package confirm

import (
	"testing"

	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/safeqtest"
	"github.com/iov-one/safeq/safeqtest/assert"
	"github.com/iov-one/safeq/store"
)

func TestPropose(t *testing.T) {
	owners := safeqtest.NewOwners(t, 3)
	stranger := safeqtest.NewOwner(t)

	cases := map[string]struct {
		nonce      uint64
		build      func(a *safeq.Account) *safeq.Transaction
		wantErr    *errors.Error
		wantStatus safeq.Status
	}{
		"unsigned proposal": {
			build: func(a *safeq.Account) *safeq.Transaction {
				return safeqtest.NewTx(t, a, 5, nil)
			},
			wantStatus: safeq.StatusAwaitingConfirmations,
		},
		"proposal signed by the threshold": {
			build: func(a *safeq.Account) *safeq.Transaction {
				return safeqtest.NewTx(t, a, 5, owners[:2])
			},
			wantStatus: safeq.StatusAwaitingExecution,
		},
		"identity does not match payload": {
			build: func(a *safeq.Account) *safeq.Transaction {
				tx := safeqtest.NewTx(t, a, 5, nil)
				tx.Tx.Nonce = 6
				return tx
			},
			wantErr: errors.ErrValidation,
		},
		"stale nonce": {
			build: func(a *safeq.Account) *safeq.Transaction {
				return safeqtest.NewTx(t, a, 4, nil)
			},
			wantErr: errors.ErrValidation,
		},
		"signed by a stranger": {
			build: func(a *safeq.Account) *safeq.Transaction {
				return safeqtest.NewTx(t, a, 5, []safeqtest.Owner{stranger})
			},
			wantErr: errors.ErrValidation,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			a := safeqtest.NewAccount(t, 2, owners...)
			a.Nonce = 5
			tx := tc.build(a)

			if err := Propose(db, a, tx); !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if tc.wantErr != nil {
				return
			}
			got, err := NewTransactionBucket().GetTransaction(db, tx.ID)
			assert.Nil(t, err)
			assert.Equal(t, tc.wantStatus, got.Status)
			assert.Equal(t, 2, got.ConfirmationsRequired)

			assert.IsErr(t, errors.ErrDuplicate, Propose(db, a, tx))
		})
	}
}

// Threshold 2 of 3. The transaction signed by A becomes executable once B
// signs.
func TestRecordConfirmationCrossesThreshold(t *testing.T) {
	owners := safeqtest.NewOwners(t, 3)
	a, b := owners[0], owners[1]
	account := safeqtest.NewAccount(t, 2, owners...)
	account.Nonce = 5

	db := store.MemStore()
	tx := safeqtest.NewTx(t, account, 5, []safeqtest.Owner{a})
	assert.Nil(t, Propose(db, account, tx))

	full, err := IsFullyConfirmed(db, tx.ID)
	assert.Nil(t, err)
	assert.Equal(t, false, full)

	changed, err := RecordConfirmation(db, account, tx.ID, b.Address, b.Sign(t, tx.ID), 1700000000)
	assert.Nil(t, err)
	assert.Equal(t, true, changed)

	got, err := NewTransactionBucket().GetTransaction(db, tx.ID)
	assert.Nil(t, err)
	assert.Equal(t, 2, got.ConfirmationsSubmitted())
	assert.Status(t, safeq.StatusAwaitingExecution, got)

	full, err = IsFullyConfirmed(db, tx.ID)
	assert.Nil(t, err)
	assert.Equal(t, true, full)
}

func TestRecordConfirmationIsMonotonic(t *testing.T) {
	owners := safeqtest.NewOwners(t, 3)
	account := safeqtest.NewAccount(t, 3, owners...)
	stranger := safeqtest.NewOwner(t)

	db := store.MemStore()
	tx := safeqtest.NewTx(t, account, 0, nil)
	assert.Nil(t, Propose(db, account, tx))

	steps := []struct {
		signer      safeqtest.Owner
		sig         func() []byte
		wantChanged bool
		wantErr     *errors.Error
	}{
		{signer: owners[0], sig: func() []byte { return owners[0].Sign(t, tx.ID) }, wantChanged: true},
		{signer: owners[0], sig: func() []byte { return owners[0].Sign(t, tx.ID) }, wantChanged: false},
		{signer: stranger, sig: func() []byte { return stranger.Sign(t, tx.ID) }, wantErr: errors.ErrValidation},
		{signer: owners[1], sig: func() []byte { return owners[2].Sign(t, tx.ID) }, wantErr: errors.ErrValidation},
		{signer: owners[2], sig: func() []byte { return owners[2].Sign(t, tx.ID) }, wantChanged: true},
		{signer: owners[2], sig: func() []byte { return owners[2].Sign(t, tx.ID) }, wantChanged: false},
	}

	prev := 0
	for i, s := range steps {
		changed, err := RecordConfirmation(db, account, tx.ID, s.signer.Address, s.sig(), 1)
		if !s.wantErr.Is(err) {
			t.Fatalf("step %d: unexpected error: %+v", i, err)
		}
		if changed != s.wantChanged {
			t.Fatalf("step %d: want changed %v", i, s.wantChanged)
		}
		got, err := NewTransactionBucket().GetTransaction(db, tx.ID)
		assert.Nil(t, err)
		if n := got.ConfirmationsSubmitted(); n < prev {
			t.Fatalf("step %d: confirmations went down from %d to %d", i, prev, n)
		} else {
			prev = n
		}
	}
	assert.Equal(t, 2, prev)
}

func TestRejectedConfirmationDoesNotWrite(t *testing.T) {
	owners := safeqtest.NewOwners(t, 2)
	account := safeqtest.NewAccount(t, 2, owners...)
	stranger := safeqtest.NewOwner(t)

	db, log := store.LogableStore()
	tx := safeqtest.NewTx(t, account, 0, nil)
	assert.Nil(t, Propose(db, account, tx))
	written := len(log.ShowOps())

	_, err := RecordConfirmation(db, account, tx.ID, stranger.Address, stranger.Sign(t, tx.ID), 1)
	assert.IsErr(t, errors.ErrValidation, err)
	assert.Equal(t, written, len(log.ShowOps()))
}

func TestRecordConfirmationOfTerminalTransaction(t *testing.T) {
	owners := safeqtest.NewOwners(t, 2)
	account := safeqtest.NewAccount(t, 2, owners...)
	db := store.MemStore()

	tx := safeqtest.NewTx(t, account, 0, owners[:1], safeqtest.WithStatus(safeq.StatusWillBeReplaced))
	assert.Nil(t, NewTransactionBucket().Put(db, tx.ID[:], tx))

	_, err := RecordConfirmation(db, account, tx.ID, owners[1].Address, owners[1].Sign(t, tx.ID), 1)
	assert.IsErr(t, errors.ErrState, err)
}
