package multisig

import (
	"bytes"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
)

// Owners returns the owners of given account as a set.
func Owners(a *safeq.Account) mapset.Set[common.Address] {
	return mapset.NewThreadUnsafeSet[common.Address](a.Owners...)
}

// MissingSigners returns the owners that did not confirm the transaction yet,
// sorted by address.
func MissingSigners(a *safeq.Account, t *safeq.Transaction) []common.Address {
	signed := mapset.NewThreadUnsafeSet[common.Address]()
	for _, c := range t.Confirmations {
		signed.Add(c.Owner)
	}
	missing := Owners(a).Difference(signed).ToSlice()
	sortAddresses(missing)
	return missing
}

// OwnerConfirmations returns the confirmations of current owners, sorted by
// owner address. Confirmations of removed owners are dropped because the Safe
// rejects them.
func OwnerConfirmations(a *safeq.Account, t *safeq.Transaction) []safeq.Confirmation {
	owners := Owners(a)
	res := make([]safeq.Confirmation, 0, len(t.Confirmations))
	for _, c := range t.Confirmations {
		if owners.Contains(c.Owner) {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].Owner[:], res[j].Owner[:]) < 0
	})
	return res
}

func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}
