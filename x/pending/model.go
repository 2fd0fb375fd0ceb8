package pending

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// Submission is a transaction that is being submitted.
type Submission struct {
	ID common.Hash `json:"id" msgpack:"id"`
	// BatchID groups submissions sent in a single call.
	BatchID   string         `json:"batchId" msgpack:"batch_id"`
	StartedAt safeq.UnixTime `json:"startedAt" msgpack:"started_at"`
	// TxHash is set once the broadcast was accepted.
	TxHash common.Hash `json:"txHash,omitempty" msgpack:"tx_hash"`
	// TaskID is set for submissions sent through the relay.
	TaskID string `json:"taskId,omitempty" msgpack:"task_id"`
}

// IsBroadcast returns true if the transaction was handed to the network.
func (s *Submission) IsBroadcast() bool {
	return s.TxHash != (common.Hash{}) || s.TaskID != ""
}

// ExpiresAt returns the time after which the submission is dropped.
func (s *Submission) ExpiresAt(ttl time.Duration) safeq.UnixTime {
	return s.StartedAt.Add(ttl)
}

// Validate returns an error if the submission cannot be registered.
func (s *Submission) Validate() error {
	var errs error
	if s.ID == (common.Hash{}) {
		errs = errors.AppendField(errs, "ID", errors.ErrEmpty)
	}
	if s.BatchID == "" {
		errs = errors.AppendField(errs, "BatchID", errors.ErrEmpty)
	}
	if s.StartedAt.IsZero() {
		errs = errors.AppendField(errs, "StartedAt", errors.ErrEmpty)
	}
	return errs
}

// Tracker keeps the submissions in flight. All implementations are safe for
// concurrent use.
type Tracker interface {
	// Register stores all given submissions or none of them. ErrInProgress
	// is returned if any identity is already registered.
	Register(ctx context.Context, subs []Submission) error

	// Update replaces a registered submission. ErrNotFound is returned if
	// it is not registered.
	Update(ctx context.Context, s Submission) error

	// Get returns the submission of given identity or ErrNotFound.
	Get(ctx context.Context, id common.Hash) (*Submission, error)

	// List returns all registered submissions.
	List(ctx context.Context) ([]Submission, error)

	// Release removes submissions. Unknown identities are ignored.
	Release(ctx context.Context, ids ...common.Hash) error
}

// InFlight returns a lookup of the identities registered in given tracker.
// Use it with the functions that must skip transactions being submitted.
func InFlight(ctx context.Context, tr Tracker) (func(common.Hash) bool, error) {
	subs, err := tr.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[common.Hash]struct{}, len(subs))
	for _, s := range subs {
		ids[s.ID] = struct{}{}
	}
	return func(id common.Hash) bool {
		_, ok := ids[id]
		return ok
	}, nil
}

func validateAll(subs []Submission) error {
	if len(subs) == 0 {
		return errors.Wrap(errors.ErrEmpty, "no submissions")
	}
	seen := make(map[common.Hash]struct{}, len(subs))
	for i := range subs {
		if err := subs[i].Validate(); err != nil {
			return errors.Wrapf(err, "submission %d", i)
		}
		if _, ok := seen[subs[i].ID]; ok {
			return errors.Wrapf(errors.ErrDuplicate, "submission %d", i)
		}
		seen[subs[i].ID] = struct{}{}
	}
	return nil
}
