package app

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/x/batch"
	"github.com/iov-one/safeq/x/conflict"
	"github.com/iov-one/safeq/x/confirm"
	"github.com/iov-one/safeq/x/dispatch"
	"github.com/iov-one/safeq/x/executable"
	"github.com/iov-one/safeq/x/pending"
)

// Snapshot is the classified queue at a point in time. A published snapshot
// is never modified.
type Snapshot struct {
	Account safeq.Account `json:"account"`
	// Groups are ordered by nonce. Settled groups are included until the
	// gateway drops them.
	Groups []conflict.NonceGroup `json:"groups"`
	// Flags are computed for the connected wallet, if any.
	Flags map[common.Hash]executable.Flags `json:"flags"`
	// Batch is the longest run of transactions that can be executed
	// together. It is empty unless at least two qualify.
	Batch []common.Hash `json:"batch,omitempty"`
	// Pending are the submissions not finished yet.
	Pending  []pending.Submission `json:"pending,omitempty"`
	Rejected []common.Hash        `json:"rejected,omitempty"`
	Version  uint64               `json:"version"`
	At       safeq.UnixTime       `json:"at"`
}

// Transaction returns the queued transaction with given identity or nil.
func (s *Snapshot) Transaction(id common.Hash) *safeq.Transaction {
	for i := range s.Groups {
		for _, t := range s.Groups[i].Members() {
			if t.ID == id {
				return t
			}
		}
	}
	return nil
}

// IsBatchable returns true if a batch execution is available.
func (s *Snapshot) IsBatchable() bool {
	return len(s.Batch) >= 2
}

// EventType distinguishes status changes from finished submissions.
type EventType string

const (
	EventStatus     EventType = "status"
	EventSubmission EventType = "submission"
)

// Event is published for every status change of a queued transaction and
// for every finished submission.
type Event struct {
	Type EventType    `json:"type"`
	ID   common.Hash  `json:"id,omitempty"`
	From safeq.Status `json:"from,omitempty"`
	To   safeq.Status `json:"to,omitempty"`
	// Submission is set for EventSubmission.
	Submission *dispatch.Result `json:"submission,omitempty"`
	// Error describes a failed submission.
	Error string `json:"error,omitempty"`
}

func statusEvents(changes []confirm.Change) []Event {
	events := make([]Event, 0, len(changes))
	for _, c := range changes {
		events = append(events, Event{Type: EventStatus, ID: c.ID, From: c.From, To: c.To})
	}
	return events
}

// classify builds a snapshot from the stored queue. The ledger must be
// locked by the caller.
func classify(
	db safeq.ReadOnlyKVStore,
	a *safeq.Account,
	signer common.Address,
	subs []pending.Submission,
	limit int,
) (*Snapshot, error) {
	queue, err := confirm.NewTransactionBucket().Queue(db)
	if err != nil {
		return nil, err
	}
	inFlight := make(map[common.Hash]struct{}, len(subs))
	for _, s := range subs {
		inFlight[s.ID] = struct{}{}
	}
	isInFlight := func(id common.Hash) bool {
		_, ok := inFlight[id]
		return ok
	}

	groups := conflict.Resolve(queue)
	flags := make(map[common.Hash]executable.Flags, len(queue))
	for i := range groups {
		members := groups[i].Members()
		// A submission in flight takes the nonce of the whole group.
		busy := false
		for _, t := range members {
			busy = busy || isInFlight(t.ID)
		}
		for _, t := range members {
			f := executable.Classify(t, a, signer)
			if busy {
				f.Executable = false
				f.ViaLastSigner = false
			}
			flags[t.ID] = f
		}
	}

	return &Snapshot{
		Account: *a.Copy(),
		Groups:  groups,
		Flags:   flags,
		Batch:   batch.IDs(batch.Calculate(groups, a, isInFlight, limit)),
		Pending: subs,
	}, nil
}
