package conflict

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/confirm"
)

// Resolve groups the queue by nonce, in ascending order.
//
// Inside a group the transaction with the latest submission time is the
// current one, ties are broken by identity. If a member succeeded, all non
// terminal siblings are returned as WILL_BE_REPLACED. Returned transactions
// are copies, the queue is not modified.
func Resolve(queue []*safeq.Transaction) []NonceGroup {
	sorted := make([]*safeq.Transaction, len(queue))
	for i, t := range queue {
		sorted[i] = t.Copy()
	}
	confirm.SortQueue(sorted)

	var groups []NonceGroup
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].Nonce() == sorted[start].Nonce() {
			end++
		}
		groups = append(groups, newGroup(sorted[start:end]))
		start = end
	}
	return groups
}

// newGroup builds a group of transactions that share a nonce and are sorted
// by submission time, oldest first.
func newGroup(members []*safeq.Transaction) NonceGroup {
	g := NonceGroup{Nonce: members[0].Nonce()}

	// Equal submission times are ordered by identity, ascending. The
	// first transaction of the latest submission time is the current one.
	last := len(members) - 1
	cur := last
	for cur > 0 && members[cur-1].SubmittedAt == members[last].SubmittedAt {
		cur--
	}
	g.Current = members[cur]
	for i := last; i >= 0; i-- {
		if i != cur {
			g.Alternatives = append(g.Alternatives, members[i])
		}
	}

	for _, t := range g.Members() {
		if t.Status == safeq.StatusSuccess {
			g.Winner = t.ID
			break
		}
	}
	if g.IsSettled() {
		for _, t := range g.Members() {
			if t.ID != g.Winner && replaceable(t) {
				t.Status = safeq.StatusWillBeReplaced
			}
		}
	}
	return g
}

// replaceable returns true if the transaction must be replaced once a sibling
// succeeded. A second success reported for the same nonce can only come from
// inconsistent data and is replaced as well.
func replaceable(t *safeq.Transaction) bool {
	return !t.Status.IsTerminal() || t.Status == safeq.StatusSuccess
}

// ApplySuccess marks the stored transaction as executed and forces all its
// siblings to WILL_BE_REPLACED without waiting for the next refresh. It
// returns the identities of the replaced siblings.
//
// ErrConflict is returned if another transaction with the same nonce already
// succeeded.
func ApplySuccess(db safeq.KVStore, id common.Hash, txHash common.Hash) ([]common.Hash, error) {
	bucket := confirm.NewTransactionBucket()
	winner, err := bucket.GetTransaction(db, id)
	if err != nil {
		return nil, err
	}
	siblings, err := bucket.ByNonce(db, winner.Nonce())
	if err != nil {
		return nil, err
	}
	for _, s := range siblings {
		if s.ID != id && s.Status == safeq.StatusSuccess {
			return nil, errors.Wrapf(errors.ErrConflict, "nonce %d executed by %s", s.Nonce(), s.ID.Hex())
		}
	}

	winner.Status = safeq.StatusSuccess
	if txHash != (common.Hash{}) {
		winner.ExecutedTxHash = txHash
	}
	if err := bucket.Put(db, id[:], winner); err != nil {
		return nil, errors.Wrap(err, "save winner")
	}

	var replaced []common.Hash
	for _, s := range siblings {
		if s.ID == id || s.Status.IsTerminal() {
			continue
		}
		s.Status = safeq.StatusWillBeReplaced
		if err := bucket.Put(db, s.ID[:], s); err != nil {
			return nil, errors.Wrapf(err, "replace %s", s.ID.Hex())
		}
		replaced = append(replaced, s.ID)
	}
	return replaced, nil
}
