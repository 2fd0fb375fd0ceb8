package confirm

import (
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/orm"
)

const (
	// BucketName is where we store the queued transactions
	BucketName = "txs"

	// NonceIndex references all transactions sharing a nonce.
	NonceIndex = "nonce"
)

// TransactionBucket stores queued transactions by their identity.
type TransactionBucket struct {
	orm.ModelBucket
}

// NewTransactionBucket returns a bucket for managing queued transactions.
func NewTransactionBucket() *TransactionBucket {
	return &TransactionBucket{
		ModelBucket: orm.NewModelBucket(BucketName, &safeq.Transaction{},
			orm.WithIndex(NonceIndex, nonceIndexer, false)),
	}
}

func nonceIndexer(m orm.Model) ([]byte, error) {
	t, ok := m.(*safeq.Transaction)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "%T", m)
	}
	return NonceKey(t.Nonce()), nil
}

// NonceKey returns the nonce index key of given nonce.
func NonceKey(nonce uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], nonce)
	return key[:]
}

// GetTransaction returns the transaction with given identity.
func (b *TransactionBucket) GetTransaction(db safeq.ReadOnlyKVStore, id common.Hash) (*safeq.Transaction, error) {
	var t safeq.Transaction
	if err := b.One(db, id[:], &t); err != nil {
		return nil, errors.Wrapf(err, "transaction %s", id.Hex())
	}
	return &t, nil
}

// ByNonce returns all transactions sharing given nonce.
func (b *TransactionBucket) ByNonce(db safeq.ReadOnlyKVStore, nonce uint64) ([]*safeq.Transaction, error) {
	var res []*safeq.Transaction
	if _, err := b.ByIndex(db, NonceIndex, NonceKey(nonce), &res); err != nil {
		return nil, errors.Wrapf(err, "nonce %d", nonce)
	}
	return res, nil
}

// Queue returns all stored transactions ordered by nonce and then by
// submission time.
func (b *TransactionBucket) Queue(db safeq.ReadOnlyKVStore) ([]*safeq.Transaction, error) {
	var res []*safeq.Transaction
	if _, err := b.All(db, &res); err != nil {
		return nil, errors.Wrap(err, "load queue")
	}
	SortQueue(res)
	return res, nil
}

// SortQueue orders transactions by nonce, then by submission time and
// finally by identity so that the order is always the same.
func SortQueue(txs []*safeq.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if a.Nonce() != b.Nonce() {
			return a.Nonce() < b.Nonce()
		}
		if a.SubmittedAt != b.SubmittedAt {
			return a.SubmittedAt < b.SubmittedAt
		}
		return a.ID.Big().Cmp(b.ID.Big()) < 0
	})
}
