package executable

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
)

// Flags is the classification of a transaction for a signer.
type Flags struct {
	// Signable is set when the signer may add a confirmation.
	Signable bool `json:"signable"`
	// Executable is set when the transaction can be executed now.
	Executable bool `json:"executable"`
	// ViaLastSigner is set when the signer may sign and execute in a
	// single call.
	ViaLastSigner bool `json:"viaLastSigner"`
	// Stale is set when the nonce was already used on chain.
	Stale bool `json:"stale"`
	// Blocked is set when the transaction is confirmed but waits for
	// previous nonces.
	Blocked bool `json:"blocked"`
	// Replaced is set when a sibling with the same nonce was executed.
	Replaced bool `json:"replaced"`
}

// Classify returns all flags of given transaction. Signer may be zero if no
// wallet is connected.
func Classify(t *safeq.Transaction, a *safeq.Account, signer common.Address) Flags {
	return Flags{
		Signable:      Signable(t, a, signer),
		Executable:    ExecutableNow(t, a),
		ViaLastSigner: ExecutableViaLastSigner(t, a, signer),
		Stale:         IsStale(t, a),
		Blocked:       isPending(t) && t.IsFullyConfirmed() && t.Nonce() > a.Nonce,
		Replaced:      t.Status == safeq.StatusWillBeReplaced,
	}
}

// Signable returns true if the signer is an owner that did not confirm the
// transaction yet and the transaction still waits for confirmations.
func Signable(t *safeq.Transaction, a *safeq.Account, signer common.Address) bool {
	return t.Status == safeq.StatusAwaitingConfirmations &&
		a.IsOwner(signer) &&
		!t.HasConfirmed(signer)
}

// ExecutableNow returns true if the transaction is fully confirmed and its
// nonce is the current account nonce.
func ExecutableNow(t *safeq.Transaction, a *safeq.Account) bool {
	return isPending(t) &&
		t.IsFullyConfirmed() &&
		t.Nonce() == a.Nonce
}

// ExecutableViaLastSigner returns true if the signer is the only missing
// confirmation and may provide it as part of the execution call itself.
// This requires the nonce to be current, as for any other execution.
func ExecutableViaLastSigner(t *safeq.Transaction, a *safeq.Account, signer common.Address) bool {
	if !isPending(t) || t.Nonce() != a.Nonce {
		return false
	}
	if !a.IsOwner(signer) || t.HasConfirmed(signer) || IsExecutionLoop(a, signer) {
		return false
	}
	return a.Threshold == 1 || t.ConfirmationsSubmitted() == t.ConfirmationsRequired-1
}

// IsExecutionLoop returns true if the signer is the Safe itself. A Safe
// cannot send its own execution.
func IsExecutionLoop(a *safeq.Account, signer common.Address) bool {
	return signer == a.Address
}

// IsStale returns true if the nonce of the transaction was already used.
func IsStale(t *safeq.Transaction, a *safeq.Account) bool {
	return t.Nonce() < a.Nonce
}

func isPending(t *safeq.Transaction) bool {
	return t.Status == safeq.StatusAwaitingConfirmations || t.Status == safeq.StatusAwaitingExecution
}
