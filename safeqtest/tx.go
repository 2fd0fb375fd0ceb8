package safeqtest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/x/sigs"
)

// SafeAddress is the address of the Safe built by NewAccount.
var SafeAddress = common.HexToAddress("0x5afe5afe5afe5afe5afe5afe5afe5afe5afe5afe")

// ChainID is the chain of the Safe built by NewAccount.
const ChainID = 1

// NewAccount returns a Safe account with given threshold, owned by given
// owners and with nonce zero.
func NewAccount(t testing.TB, threshold int, owners ...Owner) *safeq.Account {
	t.Helper()
	a := &safeq.Account{
		Address:   SafeAddress,
		ChainID:   ChainID,
		Threshold: threshold,
	}
	for _, o := range owners {
		a.Owners = append(a.Owners, o.Address)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("invalid account: %s", err)
	}
	return a
}

// TxOption modifies a transaction before it is signed.
type TxOption func(*safeq.Transaction)

// WithValue sets the value transferred. Use it to create different
// transactions with the same nonce.
func WithValue(v int64) TxOption {
	return func(t *safeq.Transaction) {
		t.Tx.Value = big.NewInt(v)
	}
}

// WithSubmittedAt sets the proposal time.
func WithSubmittedAt(at safeq.UnixTime) TxOption {
	return func(t *safeq.Transaction) {
		t.SubmittedAt = at
	}
}

// WithStatus forces the status instead of deriving it from the
// confirmations.
func WithStatus(s safeq.Status) TxOption {
	return func(t *safeq.Transaction) {
		t.Status = s
	}
}

// WithPayload sets the call target and data.
func WithPayload(to common.Address, data []byte) TxOption {
	return func(t *safeq.Transaction) {
		t.Tx.To = to
		t.Tx.Data = data
	}
}

// NewTx returns a transaction of given account at given nonce, confirmed by
// all given signers.
func NewTx(t testing.TB, a *safeq.Account, nonce uint64, signers []Owner, opts ...TxOption) *safeq.Transaction {
	t.Helper()
	tx := &safeq.Transaction{
		Safe: a.Address,
		Tx: safeq.SafeTx{
			To:    common.HexToAddress("0x00000000000000000000000000000000000000b0"),
			Value: big.NewInt(1),
			Nonce: nonce,
		},
		ConfirmationsRequired: a.Threshold,
		SubmittedAt:           safeq.UnixTime(1600000000 + nonce),
	}
	for _, fn := range opts {
		fn(tx)
	}
	tx.ID = sigs.SafeTxHash(a.ChainID, a.Address, tx.Tx)
	tx.Kind = safeq.DetectKind(a.Address, tx.Tx)
	if len(signers) > 0 {
		tx.Proposer = signers[0].Address
	}
	for _, o := range signers {
		tx.Confirmations = append(tx.Confirmations, safeq.Confirmation{
			Owner:       o.Address,
			Signature:   o.Sign(t, tx.ID),
			SubmittedAt: tx.SubmittedAt,
		})
	}
	if tx.Status == 0 {
		tx.Status = safeq.StatusAwaitingConfirmations
		if tx.IsFullyConfirmed() {
			tx.Status = safeq.StatusAwaitingExecution
		}
	}
	return tx
}
