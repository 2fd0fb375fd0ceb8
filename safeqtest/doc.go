// Package safeqtest provides keys, accounts, transaction builders and in
// memory implementations of all collaborators, to be used in tests.
package safeqtest
