// Package assert holds the small set of assertions shared by safeq tests.
// Failures print identities and addresses in hex and errors with their
// stack trace.
package assert

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// Tester is the part of testing.TB the assertions need.
type Tester interface {
	Helper()
	Fatal(...interface{})
	Fatalf(string, ...interface{})
}

// Nil fails the test if given value is not nil. A typed nil pointer, map or
// slice is nil too.
func Nil(t Tester, value interface{}) {
	t.Helper()
	if !isNil(value) {
		t.Fatalf("want a nil value, got %+v", value)
	}
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// Equal fails the test if two values are not deeply equal.
func Equal(t Tester, want, got interface{}) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("values not equal\nwant %T %v\n got %T %v", want, want, got, got)
	}
}

// Status fails the test unless the transaction has given status.
func Status(t Tester, want safeq.Status, got *safeq.Transaction) {
	t.Helper()
	if got == nil {
		t.Fatalf("want a %s transaction, got nil", want)
		return
	}
	if got.Status != want {
		t.Fatalf("transaction %s: want %s, got %s", got.ID.Hex(), want, got.Status)
	}
}

// Confirmations fails the test unless the transaction counts given number
// of distinct owner confirmations.
func Confirmations(t Tester, want int, got *safeq.Transaction) {
	t.Helper()
	if n := got.ConfirmationsSubmitted(); n != want {
		t.Fatalf("transaction %s: want %d confirmations, got %d", got.ID.Hex(), want, n)
	}
}

// Hashes fails the test unless both lists hold the same identities in the
// same order.
func Hashes(t Tester, want, got []common.Hash) {
	t.Helper()
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("identities not equal\nwant %s\n got %s", hexList(want), hexList(got))
	}
}

func hexList(hs []common.Hash) string {
	s := make([]string, len(hs))
	for i, h := range hs {
		s[i] = h.Hex()
	}
	return "[" + strings.Join(s, " ") + "]"
}

// Panics fails the test unless fn panics.
func Panics(t Tester, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("panic expected")
		}
	}()
	fn()
}

// FieldError fails the test unless err carries exactly one error for given
// field and that error is want. A nil want asserts that the field has no
// error at all.
func FieldError(t testing.TB, err error, fieldName string, want *errors.Error) {
	t.Helper()
	errs := errors.FieldErrors(err, fieldName)
	switch {
	case want == nil && len(errs) == 0:
		return
	case want == nil:
		logAll(t, errs)
		t.Fatalf("expected no %s error, got %d", fieldName, len(errs))
	case len(errs) == 0:
		t.Fatalf("no %s error found in %+v", fieldName, err)
	case len(errs) > 1:
		logAll(t, errs)
		t.Fatalf("want one %s error, got %d", fieldName, len(errs))
	case !want.Is(errs[0]):
		t.Fatalf("unexpected %s error found: %q", fieldName, errs[0])
	}
}

func logAll(t testing.TB, errs []error) {
	for i, e := range errs {
		t.Logf("\terror %d: %q", i+1, e)
	}
}

// IsErr fails the test unless got is want or is registered under the same
// code. A nil want asserts that got is nil.
func IsErr(t testing.TB, want, got error) {
	t.Helper()
	if want == got {
		return
	}
	if code, ok := want.(interface{ Is(error) bool }); ok && code.Is(got) {
		return
	}
	t.Fatalf("want %q, got %+v", want, got)
}
