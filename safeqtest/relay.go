package safeqtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// Relay is an in-memory relay service implementing safeq.Relay.
//
// Every accepted request consumes one unit of quota. Tasks stay pending
// until Complete or Fail is called, unless the relay is connected to a
// Chain that mines automatically.
type Relay struct {
	mu       sync.Mutex
	quota    int
	requests []safeq.RelayRequest
	tasks    map[string]*safeq.RelayTask

	// Chain, when set, receives a receipt for every completed task.
	Chain *Chain
	// AutoComplete completes every task as soon as it is accepted.
	AutoComplete bool
	// Err is returned by Relay when set.
	Err error
}

var _ safeq.Relay = (*Relay)(nil)

// NewRelay returns a relay with given remaining quota.
func NewRelay(quota int) *Relay {
	return &Relay{quota: quota, tasks: make(map[string]*safeq.RelayTask)}
}

// Requests returns all accepted requests, oldest first.
func (r *Relay) Requests() []safeq.RelayRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]safeq.RelayRequest(nil), r.requests...)
}

// Complete broadcasts the transaction of given task and returns its hash.
func (r *Relay) Complete(taskID string) common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete(taskID)
}

func (r *Relay) complete(taskID string) common.Hash {
	task, ok := r.tasks[taskID]
	if !ok {
		return common.Hash{}
	}
	task.TxHash = crypto.Keccak256Hash([]byte(taskID))
	if r.Chain != nil {
		r.Chain.Mine(task.TxHash, true)
	}
	return task.TxHash
}

// Fail marks given task as dropped by the relay.
func (r *Relay) Fail(taskID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[taskID]; ok {
		task.Failed = true
		task.Reason = reason
	}
}

func (r *Relay) Relay(ctx context.Context, req safeq.RelayRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	if r.quota <= 0 {
		return "", errors.Wrap(errors.ErrQuotaExceeded, "relay refused the request")
	}
	r.quota--
	req.Data = common.CopyBytes(req.Data)
	r.requests = append(r.requests, req)
	id := fmt.Sprintf("task-%d", len(r.requests))
	r.tasks[id] = &safeq.RelayTask{}
	if r.AutoComplete {
		r.complete(id)
	}
	return id, nil
}

func (r *Relay) RemainingQuota(ctx context.Context, chainID uint64, safe common.Address) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quota, nil
}

func (r *Relay) TaskStatus(ctx context.Context, taskID string) (*safeq.RelayTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "task %q", taskID)
	}
	cpy := *task
	return &cpy, nil
}
