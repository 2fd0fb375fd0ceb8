/*
Package conflict groups queued transactions that compete for the same nonce.

Only one transaction can ever be executed at a given nonce. Once a member of
a group succeeds, all its siblings are replaced and can never be executed.
*/
package conflict
