package batch

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/x/conflict"
)

// Calculate returns the transactions that can be executed together, in
// nonce order. Groups must be ordered by nonce, as returned by
// conflict.Resolve.
//
// The result is empty unless at least two transactions qualify. A limit
// below two disables batching.
func Calculate(
	groups []conflict.NonceGroup,
	a *safeq.Account,
	inFlight func(common.Hash) bool,
	limit int,
) []*safeq.Transaction {
	var res []*safeq.Transaction
	expected := a.Nonce
	for i := range groups {
		g := &groups[i]
		if g.Nonce < expected {
			continue
		}
		if g.Nonce != expected || len(res) >= limit || hasInFlight(g, inFlight) {
			break
		}
		t := g.Executable()
		if t == nil {
			break
		}
		res = append(res, t)
		expected++
	}
	if len(res) < 2 {
		return nil
	}
	return res
}

// hasInFlight returns true if any member of the group is being submitted. A
// new submission could execute the same nonce twice.
func hasInFlight(g *conflict.NonceGroup, inFlight func(common.Hash) bool) bool {
	if inFlight == nil {
		return false
	}
	for _, t := range g.Members() {
		if inFlight(t.ID) {
			return true
		}
	}
	return false
}

// IDs returns the identities of given transactions.
func IDs(txs []*safeq.Transaction) []common.Hash {
	ids := make([]common.Hash, len(txs))
	for i, t := range txs {
		ids[i] = t.ID
	}
	return ids
}
