/*
Package confirm implements the confirmation ledger: the store of queued
transactions and the owner signatures collected for each of them.

A transaction is created in AWAITING_CONFIRMATIONS and moves to
AWAITING_EXECUTION the moment the number of distinct owner confirmations
reaches the threshold. Confirmations are never removed. Recording the same
owner twice does not change the count.

The gateway queue is merged into the ledger on every refresh with Merge. It
is the only place where server state enters the store.
*/
package confirm
