package recovery

import (
	"bytes"
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// disableModuleSelector is the selector of disableModule(address,address).
var disableModuleSelector = []byte{0xe0, 0x09, 0xcf, 0xde}

// IsExecutable returns true if the delay of the item elapsed and the item
// did not expire yet.
func IsExecutable(item *QueueItem, now safeq.UnixTime) bool {
	if now < item.ValidFrom() {
		return false
	}
	if expiresAt, ok := item.ExpiresAt(); ok && now >= expiresAt {
		return false
	}
	return true
}

// GetState returns the state of the item at given time. An abandoned item
// stays abandoned whatever the time.
func GetState(item *QueueItem, now safeq.UnixTime, abandoned bool) State {
	switch {
	case abandoned:
		return StateAbandoned
	case now < item.ValidFrom():
		return StatePending
	case IsExecutable(item, now):
		return StateExecutable
	default:
		return StateExpired
	}
}

// IsAbandoned returns true if the history contains an executed transaction
// calling the modifier, or disabling it, at or after given time.
func IsAbandoned(history []safeq.Transaction, modifier common.Address, since safeq.UnixTime) bool {
	for i := range history {
		t := &history[i]
		if t.Status != safeq.StatusSuccess || t.SubmittedAt < since {
			continue
		}
		if t.Tx.To == modifier || disablesModule(t.Tx.Data, modifier) {
			return true
		}
	}
	return false
}

// disablesModule returns true if data is a disableModule call removing given
// module.
func disablesModule(data []byte, module common.Address) bool {
	if len(data) != 4+2*32 || !bytes.Equal(data[:4], disableModuleSelector) {
		return false
	}
	return common.BytesToAddress(data[4+32:]) == module
}

// Validate returns the warnings of given item.
func Validate(item *QueueItem) []Warning {
	var warnings []Warning
	if item.IsMalicious {
		warnings = append(warnings, Warning{
			Code:    "MALICIOUS",
			Message: "this recovery was flagged as malicious, verify it before executing",
		})
	}
	if len(item.Args) == 0 {
		warnings = append(warnings, Warning{
			Code:    "UNKNOWN_ACTION",
			Message: "the action of this recovery could not be decoded",
		})
	}
	return warnings
}

// Evaluate returns the state and the warnings of all items, ordered by
// modifier and queue nonce.
func Evaluate(items []QueueItem, history []safeq.Transaction, now safeq.UnixTime) []Entry {
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		abandoned := IsAbandoned(history, item.Modifier, item.CreatedAt)
		entries = append(entries, Entry{
			Item:     item,
			State:    GetState(&item, now, abandoned),
			Warnings: Validate(&item),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Item, entries[j].Item
		if c := bytes.Compare(a.Modifier[:], b.Modifier[:]); c != 0 {
			return c < 0
		}
		return a.QueueNonce < b.QueueNonce
	})
	return entries
}

// ScanHistory reads executed transactions of the Safe from the most recent
// one until it finds one submitted before given time or until maxPages pages
// were read.
func ScanHistory(
	ctx context.Context,
	gw safeq.Gateway,
	safe common.Address,
	since safeq.UnixTime,
	maxPages int,
) ([]safeq.Transaction, error) {
	var (
		res    []safeq.Transaction
		cursor string
	)
	for page := 0; page < maxPages; page++ {
		p, err := gw.History(ctx, safe, cursor)
		if err != nil {
			return nil, errors.Wrap(err, "history")
		}
		for _, t := range p.Results {
			if t.SubmittedAt < since {
				return res, nil
			}
			res = append(res, t)
		}
		if p.Next == "" {
			break
		}
		cursor = p.Next
	}
	return res, nil
}
