package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// Method is the way an execution reaches the chain.
type Method uint8

const (
	// MethodRelay submits through the fee sponsoring relay.
	MethodRelay Method = iota + 1
	// MethodDirect sends the call from the connected wallet.
	MethodDirect
)

func (m Method) String() string {
	switch m {
	case MethodRelay:
		return "RELAY"
	case MethodDirect:
		return "DIRECT"
	}
	return fmt.Sprintf("Method(%d)", m)
}

// ParseMethod returns the method of given name, ignoring the case.
func ParseMethod(name string) (Method, error) {
	switch strings.ToUpper(name) {
	case "RELAY":
		return MethodRelay, nil
	case "DIRECT":
		return MethodDirect, nil
	}
	return 0, errors.Wrapf(errors.ErrInput, "unknown method %q", name)
}

func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Method) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	parsed, err := ParseMethod(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Request describes a single execution or a batch.
type Request struct {
	// Txs are executed in order. More than one transaction makes a
	// batch.
	Txs     []*safeq.Transaction
	Method  Method
	Account *safeq.Account
	// Signer is the connected wallet. It is required by the DIRECT
	// method and may be nil for RELAY.
	Signer safeq.Signer
	// Siblings are the other transactions using the nonces of Txs. The
	// request is rejected while any of them is being submitted.
	Siblings []common.Hash
}

// IsBatch returns true if more than one transaction is executed.
func (r *Request) IsBatch() bool {
	return len(r.Txs) > 1
}

// IDs returns the identities of all executed transactions.
func (r *Request) IDs() []common.Hash {
	ids := make([]common.Hash, len(r.Txs))
	for i, t := range r.Txs {
		ids[i] = t.ID
	}
	return ids
}

// State is the state of a submission.
type State uint8

const (
	StateSubmitting State = iota + 1
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "SUBMITTING"
	case StateSuccess:
		return "SUCCESS"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", s)
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Result is the outcome of a broadcast submission.
type Result struct {
	BatchID string        `json:"batchId"`
	IDs     []common.Hash `json:"ids"`
	Method  Method        `json:"method"`
	State   State         `json:"state"`
	TxHash  common.Hash   `json:"txHash,omitempty"`
	// Err is ErrReverted, ErrTimeout or ErrBroadcast for failed
	// submissions.
	Err error `json:"-"`
	// Reconcile is set when the outcome is unknown and the chain must be
	// checked again.
	Reconcile bool `json:"reconcile,omitempty"`
}

// Handle follows a submission that was accepted for broadcast.
type Handle struct {
	BatchID string
	IDs     []common.Hash
	// TxHash is zero if the wallet or the relay did not provide it yet.
	TxHash common.Hash

	done   chan struct{}
	result Result
}

func newHandle(batchID string, ids []common.Hash) *Handle {
	return &Handle{BatchID: batchID, IDs: ids, done: make(chan struct{})}
}

// Done is closed once the outcome is known.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the outcome is known or the context is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
