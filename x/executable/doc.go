/*
Package executable decides what can be done with a single queued transaction
given the current account state and the connected signer.

The account nonce always comes from the chain. A transaction below it is
stale and is never executable, whatever its confirmations.
*/
package executable
