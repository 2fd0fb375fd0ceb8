package safeqtest

import (
	"bytes"
	"crypto/ecdsa"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/safeq/x/sigs"
)

// Owner is a key pair of a Safe owner.
type Owner struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewOwner returns an owner with a newly generated key.
func NewOwner(t testing.TB) Owner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("cannot generate key: %s", err)
	}
	return Owner{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewOwners returns n owners sorted by address.
func NewOwners(t testing.TB, n int) []Owner {
	t.Helper()
	owners := make([]Owner, n)
	for i := range owners {
		owners[i] = NewOwner(t)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i].Address[:], owners[j].Address[:]) < 0
	})
	return owners
}

// Sign returns the signature of this owner over given identity.
func (o Owner) Sign(t testing.TB, hash common.Hash) []byte {
	t.Helper()
	sig, err := sigs.Sign(o.Key, hash)
	if err != nil {
		t.Fatalf("cannot sign: %s", err)
	}
	return sig
}

// RandomAddr returns a new random address.
func RandomAddr(t testing.TB) common.Address {
	t.Helper()
	return NewOwner(t).Address
}
