package confirm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/sigs"
)

// Propose stores a new transaction in AWAITING_CONFIRMATIONS, or directly in
// AWAITING_EXECUTION if the confirmations it carries already meet the
// threshold.
//
// The identity must be the SafeTx hash of the payload and the nonce must not
// be below the account nonce. Every carried confirmation must be a valid
// owner signature.
func Propose(db safeq.KVStore, a *safeq.Account, t *safeq.Transaction) error {
	bucket := NewTransactionBucket()

	if want := sigs.SafeTxHash(a.ChainID, a.Address, t.Tx); t.ID != want {
		return errors.Field("ID", errors.ErrValidation, "want %s", want.Hex())
	}
	if t.Nonce() < a.Nonce {
		return errors.Field("Nonce", errors.ErrValidation, "stale, account nonce is %d", a.Nonce)
	}
	for i, c := range t.Confirmations {
		if err := verifyConfirmation(a, t.ID, c.Owner, c.Signature); err != nil {
			return errors.Wrapf(err, "confirmation %d", i)
		}
	}
	switch err := bucket.Has(db, t.ID[:]); {
	case err == nil:
		return errors.Wrapf(errors.ErrDuplicate, "transaction %s", t.ID.Hex())
	case !errors.ErrNotFound.Is(err):
		return err
	}

	t = t.Copy()
	t.Safe = a.Address
	t.ConfirmationsRequired = a.Threshold
	if t.Kind == nil {
		t.Kind = safeq.DetectKind(a.Address, t.Tx)
	}
	t.Status = pendingStatus(t)
	return bucket.Put(db, t.ID[:], t)
}

// RecordConfirmation adds the signature of an owner to the transaction. It
// returns true if the number of confirmations changed.
//
// Recording a confirmation of an owner that already signed is a noop.
// Confirmations from non owners and signatures that do not recover to the
// signer are rejected with ErrValidation and nothing is written.
func RecordConfirmation(
	db safeq.KVStore,
	a *safeq.Account,
	id common.Hash,
	signer common.Address,
	signature []byte,
	now safeq.UnixTime,
) (bool, error) {
	bucket := NewTransactionBucket()
	t, err := bucket.GetTransaction(db, id)
	if err != nil {
		return false, err
	}
	if t.Status.IsTerminal() {
		return false, errors.Wrapf(errors.ErrState, "transaction is %s", t.Status)
	}
	if err := verifyConfirmation(a, id, signer, signature); err != nil {
		return false, err
	}
	if t.HasConfirmed(signer) {
		return false, nil
	}

	t.Confirmations = append(t.Confirmations, safeq.Confirmation{
		Owner:       signer,
		Signature:   common.CopyBytes(signature),
		SubmittedAt: now,
	})
	t.Status = pendingStatus(t)
	if err := bucket.Put(db, id[:], t); err != nil {
		return false, errors.Wrap(err, "save transaction")
	}
	return true, nil
}

// IsFullyConfirmed returns true if the transaction collected at least as many
// confirmations as required.
func IsFullyConfirmed(db safeq.ReadOnlyKVStore, id common.Hash) (bool, error) {
	t, err := NewTransactionBucket().GetTransaction(db, id)
	if err != nil {
		return false, err
	}
	return t.IsFullyConfirmed(), nil
}

func verifyConfirmation(a *safeq.Account, id common.Hash, signer common.Address, signature []byte) error {
	if !a.IsOwner(signer) {
		return errors.Wrapf(errors.ErrValidation, "%s is not an owner", signer.Hex())
	}
	return sigs.Verify(id, signer, signature)
}

// pendingStatus returns the status of a transaction that was not executed
// yet, based on its confirmations.
func pendingStatus(t *safeq.Transaction) safeq.Status {
	if t.IsFullyConfirmed() {
		return safeq.StatusAwaitingExecution
	}
	return safeq.StatusAwaitingConfirmations
}
