/*
Package dispatch submits confirmed transactions to the chain, one at a time or
as a batch.

Every submission goes through the same steps:

	IDLE -> SUBMITTING -> SUCCESS | FAILED -> IDLE

The identities are registered in the pending tracker before anything is
sent, which rejects a second submission of the same transaction with
ErrInProgress. The RELAY method checks the remaining relay quota first and
fails with ErrQuotaExceeded without calling the relay when it is exhausted.
The DIRECT method asks the connected wallet to send the call with an
estimated gas limit increased by a safety margin.

Once broadcast, a watcher polls for the receipt. A reverted execution fails
with ErrReverted. When no receipt shows up before the timeout the submission
fails with ErrTimeout, but the transaction may still be mined: the result is
flagged so that the caller checks the chain again. Broadcasts are never
retried automatically.
*/
package dispatch
