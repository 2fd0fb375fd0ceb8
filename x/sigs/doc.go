/*
Package sigs derives the identity of Safe transactions and verifies owner
signatures over it.

The identity of a transaction is its EIP-712 SafeTx hash. It depends on the
chain, the Safe address and every field of the payload, so two transactions
with the same identity are semantically identical.

Accepted signatures are 65 bytes long (r, s, v). v selects how the signature
was produced:

	0, 1, 27, 28  signed the SafeTx hash directly
	31, 32        signed with eth_sign, over the prefixed SafeTx hash
*/
package sigs
