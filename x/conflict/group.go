package conflict

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
)

// NonceGroup is the set of transactions sharing one nonce.
type NonceGroup struct {
	Nonce uint64 `json:"nonce"`
	// Current is the most recently proposed member.
	Current *safeq.Transaction `json:"current"`
	// Alternatives are all other members, most recent first.
	Alternatives []*safeq.Transaction `json:"alternatives,omitempty"`
	// Winner is the identity of the member that succeeded. It is zero as
	// long as no member succeeded.
	Winner common.Hash `json:"winner,omitempty"`
}

// Members returns all transactions of this group, current first.
func (g *NonceGroup) Members() []*safeq.Transaction {
	return append([]*safeq.Transaction{g.Current}, g.Alternatives...)
}

// IsConflict returns true if more than one transaction uses this nonce.
func (g *NonceGroup) IsConflict() bool {
	return len(g.Alternatives) > 0
}

// IsSettled returns true if a member of this group succeeded.
func (g *NonceGroup) IsSettled() bool {
	return g.Winner != (common.Hash{})
}

// Executable returns the most recent member that collected all required
// confirmations and is still waiting for execution. It returns nil if there
// is none, which makes this group a gap in the queue.
func (g *NonceGroup) Executable() *safeq.Transaction {
	if g.IsSettled() {
		return nil
	}
	for _, t := range g.Members() {
		if t.Status == safeq.StatusAwaitingExecution && t.IsFullyConfirmed() {
			return t
		}
	}
	return nil
}

// Contains returns true if given transaction belongs to this group.
func (g *NonceGroup) Contains(id common.Hash) bool {
	for _, t := range g.Members() {
		if t.ID == id {
			return true
		}
	}
	return false
}
