/*
Package multisig keeps the state of the Safe account: its owners, threshold
and nonce, as last read from the chain.

The account nonce is never inferred from the queue. Only a chain read may
change it.
*/
package multisig
