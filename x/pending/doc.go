/*
Package pending tracks the transactions that are being submitted.

A submission is registered before anything is broadcast and stays registered
until the outcome is known or until it expires. Registration of a batch is
atomic: either all identities are registered or none is, and it fails with
ErrInProgress if any of them is already registered. This is the only guard
against executing the same transaction twice.

Two implementations are provided. The memory tracker serves a single
process. The redis tracker shares submissions between processes that
coordinate the same Safe.
*/
package pending
