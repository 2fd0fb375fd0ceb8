package multisig

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/orm"
)

// BucketName is where we store the accounts
const BucketName = "accounts"

// AccountBucket stores Safe accounts by their address.
type AccountBucket struct {
	orm.ModelBucket
}

// NewAccountBucket returns a bucket for managing account state.
func NewAccountBucket() *AccountBucket {
	return &AccountBucket{
		ModelBucket: orm.NewModelBucket(BucketName, &safeq.Account{}),
	}
}

// GetAccount returns the account with given address.
func (b *AccountBucket) GetAccount(db safeq.ReadOnlyKVStore, addr common.Address) (*safeq.Account, error) {
	var a safeq.Account
	if err := b.One(db, addr[:], &a); err != nil {
		return nil, errors.Wrapf(err, "account %s", addr.Hex())
	}
	return &a, nil
}

// Sync stores the account state read from the chain. It returns true if
// anything changed compared to the stored state.
func (b *AccountBucket) Sync(db safeq.KVStore, a *safeq.Account) (bool, error) {
	prev, err := b.GetAccount(db, a.Address)
	switch {
	case errors.ErrNotFound.Is(err):
	case err != nil:
		return false, err
	case prev.Nonce > a.Nonce:
		// The chain nonce only grows. A lower value comes from a lagging
		// node and is ignored.
		return false, errors.Wrapf(errors.ErrState, "nonce went back from %d to %d", prev.Nonce, a.Nonce)
	case equal(prev, a):
		return false, nil
	}
	if err := b.Put(db, a.Address[:], a); err != nil {
		return false, errors.Wrap(err, "save account")
	}
	return true, nil
}

func equal(a, b *safeq.Account) bool {
	if a.Nonce != b.Nonce || a.Threshold != b.Threshold || a.ChainID != b.ChainID {
		return false
	}
	return Owners(a).Equal(Owners(b))
}
