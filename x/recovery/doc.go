/*
Package recovery evaluates the queue of a delay modifier, the module that
lets guardians recover a Safe after a waiting period.

A queued recovery is pending until its delay elapsed, then executable until
it expires. An expiry period of zero means it never expires. A recovery is
abandoned once the Safe removed the guardian or disabled the module after the
recovery was queued.

Warnings, such as a recovery flagged as malicious, are reported next to the
state and never prevent the execution. Executing is the decision of the
owners.
*/
package recovery
