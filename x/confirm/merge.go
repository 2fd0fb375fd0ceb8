package confirm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/sigs"
)

// Change describes a status transition of a single transaction.
type Change struct {
	ID   common.Hash  `json:"id"`
	From safeq.Status `json:"from,omitempty"`
	To   safeq.Status `json:"to"`
}

// MergeResult describes what a merge did to the ledger.
type MergeResult struct {
	// Changes lists new transactions (From is zero) and status
	// transitions.
	Changes []Change
	// Evicted are the transactions that left the queue.
	Evicted []common.Hash
	// Settled are in-flight transactions that the gateway already
	// reports in a terminal state. Their pending submission can be
	// released.
	Settled []common.Hash
	// Rejected are server entries whose identity does not match their
	// payload.
	Rejected []common.Hash
}

// Merge reconciles the ledger with the gateway queue. This is the only
// function that writes server state into the store.
//
// The server is the truth for the set of live transactions and for terminal
// statuses. Confirmations are the union of stored and server confirmations,
// so the count of a transaction never decreases. A non terminal status is
// always recomputed from the confirmations and the account threshold.
// Transactions that are not in the server queue anymore are evicted, unless
// inFlight reports a submission of them is still pending. Once the server
// reports a transaction as executed, its siblings are replaced.
func Merge(
	db safeq.KVStore,
	a *safeq.Account,
	server []safeq.Transaction,
	inFlight func(common.Hash) bool,
) (*MergeResult, error) {
	bucket := NewTransactionBucket()
	res := &MergeResult{}

	seen := make(map[common.Hash]struct{}, len(server))
	for i := range server {
		remote := &server[i]
		if sigs.SafeTxHash(a.ChainID, a.Address, remote.Tx) != remote.ID {
			res.Rejected = append(res.Rejected, remote.ID)
			continue
		}
		seen[remote.ID] = struct{}{}

		local, err := bucket.GetTransaction(db, remote.ID)
		switch {
		case errors.ErrNotFound.Is(err):
			local = nil
		case err != nil:
			return nil, err
		}

		merged := mergeOne(a, local, remote)
		if local == nil {
			res.Changes = append(res.Changes, Change{ID: merged.ID, To: merged.Status})
		} else if local.Status != merged.Status {
			res.Changes = append(res.Changes, Change{ID: merged.ID, From: local.Status, To: merged.Status})
		}
		if remote.Status.IsTerminal() && inFlight(remote.ID) {
			res.Settled = append(res.Settled, remote.ID)
		}
		if err := bucket.Put(db, merged.ID[:], merged); err != nil {
			return nil, errors.Wrapf(err, "save %s", merged.ID.Hex())
		}
	}

	stored, err := bucket.Queue(db)
	if err != nil {
		return nil, err
	}
	for _, t := range stored {
		if _, ok := seen[t.ID]; ok || inFlight(t.ID) {
			continue
		}
		if err := bucket.Delete(db, t.ID[:]); err != nil {
			return nil, errors.Wrapf(err, "evict %s", t.ID.Hex())
		}
		res.Evicted = append(res.Evicted, t.ID)
	}

	for i := range server {
		if server[i].Status != safeq.StatusSuccess {
			continue
		}
		if _, ok := seen[server[i].ID]; !ok {
			continue
		}
		if err := replaceSiblings(db, bucket, &server[i], res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// replaceSiblings forces all non terminal transactions sharing the nonce of
// the executed one to WILL_BE_REPLACED.
func replaceSiblings(db safeq.KVStore, bucket *TransactionBucket, executed *safeq.Transaction, res *MergeResult) error {
	siblings, err := bucket.ByNonce(db, executed.Nonce())
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.ID == executed.ID || s.Status.IsTerminal() {
			continue
		}
		res.replaced(s.ID, s.Status)
		s.Status = safeq.StatusWillBeReplaced
		if err := bucket.Put(db, s.ID[:], s); err != nil {
			return errors.Wrapf(err, "replace %s", s.ID.Hex())
		}
	}
	return nil
}

// replaced records the replacement of a transaction, folding it into the
// change recorded earlier in the same merge.
func (r *MergeResult) replaced(id common.Hash, from safeq.Status) {
	for i := range r.Changes {
		if r.Changes[i].ID == id {
			r.Changes[i].To = safeq.StatusWillBeReplaced
			return
		}
	}
	r.Changes = append(r.Changes, Change{ID: id, From: from, To: safeq.StatusWillBeReplaced})
}

func mergeOne(a *safeq.Account, local, remote *safeq.Transaction) *safeq.Transaction {
	merged := remote.Copy()
	merged.Safe = a.Address
	confs := merged.Confirmations
	merged.Confirmations = nil
	for _, c := range confs {
		if !merged.HasConfirmed(c.Owner) {
			merged.Confirmations = append(merged.Confirmations, c)
		}
	}
	if merged.Kind == nil {
		merged.Kind = safeq.DetectKind(a.Address, merged.Tx)
	}
	if local != nil {
		for _, c := range local.Confirmations {
			// Local confirmations not known to the gateway yet are
			// kept, so the count never decreases.
			if !merged.HasConfirmed(c.Owner) {
				merged.Confirmations = append(merged.Confirmations, c)
			}
		}
		if local.ExecutedTxHash != (common.Hash{}) && merged.ExecutedTxHash == (common.Hash{}) {
			merged.ExecutedTxHash = local.ExecutedTxHash
		}
	}

	switch {
	case remote.Status.IsTerminal():
		if merged.ConfirmationsRequired < 1 {
			merged.ConfirmationsRequired = a.Threshold
		}
	case local != nil && local.Status.IsTerminal():
		// The gateway lags behind a result observed on chain.
		merged.Status = local.Status
		merged.ConfirmationsRequired = local.ConfirmationsRequired
	default:
		merged.ConfirmationsRequired = a.Threshold
		merged.Status = pendingStatus(merged)
	}
	return merged
}
