/*
Package batch finds the queued transactions that can be executed together in
a single on-chain call and encodes that call.

A batch is always a contiguous run of nonces starting at the account nonce.
It stops at the first nonce without a fully confirmed transaction, at a
transaction that is already being submitted, or at the configured limit. A
run of a single transaction is not a batch: it is executed on its own.
*/
package batch
