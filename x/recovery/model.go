package recovery

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// QueueItem is a single recovery queued in a delay modifier.
type QueueItem struct {
	Modifier   common.Address `json:"modifier"`
	QueueNonce uint64         `json:"queueNonce"`
	TxHash     common.Hash    `json:"txHash"`
	CreatedAt  safeq.UnixTime `json:"createdAt"`
	// DelayPeriod is the number of seconds before the item can be
	// executed.
	DelayPeriod uint64 `json:"delayPeriod"`
	// ExpiryPeriod is the number of seconds the item stays executable.
	// Zero means forever.
	ExpiryPeriod uint64 `json:"expiryPeriod"`
	IsMalicious  bool   `json:"isMalicious"`
	// Args is the opaque action executed by the recovery.
	Args hexutil.Bytes `json:"args,omitempty"`
}

// ValidFrom returns the first moment the item can be executed.
func (i *QueueItem) ValidFrom() safeq.UnixTime {
	return i.CreatedAt.AddSeconds(i.DelayPeriod)
}

// ExpiresAt returns the moment the item expires. The second value is false
// if it never expires.
func (i *QueueItem) ExpiresAt() (safeq.UnixTime, bool) {
	if i.ExpiryPeriod == 0 {
		return 0, false
	}
	return i.ValidFrom().AddSeconds(i.ExpiryPeriod), true
}

// Source reads the recovery queue of a delay modifier from the chain.
type Source interface {
	// RecoveryQueue returns all items that were not executed yet, in
	// queue order.
	RecoveryQueue(ctx context.Context, modifier common.Address) ([]QueueItem, error)
}

// State is the execution state of a recovery.
type State uint8

const (
	StatePending State = iota + 1
	StateExecutable
	StateExpired
	StateAbandoned
)

var stateNames = map[State]string{
	StatePending:    "PENDING",
	StateExecutable: "EXECUTABLE",
	StateExpired:    "EXPIRED",
	StateAbandoned:  "ABANDONED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

func (s State) MarshalJSON() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, errors.Wrapf(errors.ErrState, "unknown recovery state %d", s)
	}
	return json.Marshal(name)
}

// Warning is a validation problem of a recovery. It is presented to the
// owners and never blocks the execution.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Entry is the evaluation of a single item.
type Entry struct {
	Item     QueueItem `json:"item"`
	State    State     `json:"state"`
	Warnings []Warning `json:"warnings,omitempty"`
}
