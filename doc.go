/*
Package safeq defines all common types and interfaces to coordinate
transactions of a multisig account (a Safe), together with implementations of
some of the simpler components.

A transaction is proposed, collects owner confirmations off-chain, becomes
executable once the threshold is met and its nonce is the account nonce, and
is finally executed on chain either alone or batched with the transactions
that follow it. Extensions under x/ implement each of those steps. They
operate on a KVStore and never talk to the network. Collaborators that do
(Gateway, Chain, Relay, Signer) are declared here and implemented in the
client package.

We pass context through context.Context between the coordinator and the
extensions. There exist two functions for every XYZ of type T that we want to
support in Context:

  WithXYZ(Context, T) Context
  GetXYZ(Context) T
*/
package safeq
