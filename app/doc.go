/*
Package app ties the extensions together around a single Safe.

A Coordinator owns the local ledger, the pending tracker and the
collaborators (gateway, chain, relay, wallet). Every refresh reads the
gateway queue and the on-chain account state, merges them into the ledger
in a single cache wrapped write and publishes an immutable Snapshot with the
classification of every queued transaction.

All state changes go through the coordinator, which serializes writes to the
ledger. Network requests are never made while the ledger is locked.
*/
package app
