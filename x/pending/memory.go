package pending

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// MemTracker keeps submissions in process memory.
//
// Expired submissions are dropped when the tracker is accessed. The current
// time is read with safeq.Now.
type MemTracker struct {
	mu   sync.Mutex
	ttl  time.Duration
	subs map[common.Hash]Submission
}

var _ Tracker = (*MemTracker)(nil)

// NewMemTracker returns an empty tracker.
func NewMemTracker(conf Configuration) *MemTracker {
	return &MemTracker{
		ttl:  conf.TTL(),
		subs: make(map[common.Hash]Submission),
	}
}

// prune drops expired submissions. The lock must be held.
func (m *MemTracker) prune(ctx context.Context) {
	now := safeq.AsUnixTime(safeq.Now(ctx))
	for id, s := range m.subs {
		if now >= s.ExpiresAt(m.ttl) {
			safeq.GetLogger(ctx).Info("submission expired", "id", id.Hex(), "batch", s.BatchID)
			delete(m.subs, id)
		}
	}
}

func (m *MemTracker) Register(ctx context.Context, subs []Submission) error {
	if err := validateAll(subs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(ctx)

	for _, s := range subs {
		if prev, ok := m.subs[s.ID]; ok {
			return errors.Wrapf(errors.ErrInProgress, "%s in batch %s", s.ID.Hex(), prev.BatchID)
		}
	}
	for _, s := range subs {
		m.subs[s.ID] = s
	}
	return nil
}

func (m *MemTracker) Update(ctx context.Context, s Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(ctx)

	if _, ok := m.subs[s.ID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "submission %s", s.ID.Hex())
	}
	m.subs[s.ID] = s
	return nil
}

func (m *MemTracker) Get(ctx context.Context, id common.Hash) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(ctx)

	s, ok := m.subs[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "submission %s", id.Hex())
	}
	return &s, nil
}

func (m *MemTracker) List(ctx context.Context) ([]Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(ctx)

	res := make([]Submission, 0, len(m.subs))
	for _, s := range m.subs {
		res = append(res, s)
	}
	sortSubmissions(res)
	return res, nil
}

func (m *MemTracker) Release(ctx context.Context, ids ...common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.subs, id)
	}
	return nil
}

func sortSubmissions(subs []Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].StartedAt != subs[j].StartedAt {
			return subs[i].StartedAt < subs[j].StartedAt
		}
		return subs[i].ID.Big().Cmp(subs[j].ID.Big()) < 0
	})
}
