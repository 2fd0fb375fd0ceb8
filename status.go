package safeq

import (
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
)

// Status is the lifecycle state of a queue entry.
//
//	AWAITING_CONFIRMATIONS -> AWAITING_EXECUTION -> SUCCESS | FAILED
//
// A sibling at the same nonce reaching SUCCESS forces all other entries of
// that nonce to WILL_BE_REPLACED.
type Status uint8

const (
	StatusAwaitingConfirmations Status = iota + 1
	StatusAwaitingExecution
	StatusWillBeReplaced
	StatusSuccess
	StatusFailed
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusAwaitingConfirmations: "AWAITING_CONFIRMATIONS",
	StatusAwaitingExecution:     "AWAITING_EXECUTION",
	StatusWillBeReplaced:        "WILL_BE_REPLACED",
	StatusSuccess:               "SUCCESS",
	StatusFailed:                "FAILED",
	StatusCancelled:             "CANCELLED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Validate returns an error if this is not a known status.
func (s Status) Validate() error {
	if _, ok := statusNames[s]; !ok {
		return errors.Wrapf(errors.ErrState, "unknown status %d", s)
	}
	return nil
}

// IsTerminal returns true for statuses that never change again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusWillBeReplaced, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus returns the status for the given name.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, errors.Wrapf(errors.ErrInput, "unknown status %q", name)
}

// MarshalJSON encodes the status by its name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the status from its name.
func (s *Status) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return errors.Wrap(errors.ErrInput, "status must be a string")
	}
	st, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
