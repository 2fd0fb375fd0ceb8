package errors

import (
	stdlib "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestCause(t *testing.T) {
	std := stdlib.New("this is a stdlib error")

	cases := map[string]struct {
		err  error
		root error
	}{
		"Errors are self-causing": {
			err:  ErrConflict,
			root: ErrConflict,
		},
		"Wrap reveals root cause": {
			err:  Wrap(ErrConflict, "nonce 4 taken"),
			root: ErrConflict,
		},
		"Cause works for stderr as root": {
			err:  Wrap(std, "Some helpful text"),
			root: std,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := errors.Cause(tc.err); got != tc.root {
				t.Fatal("unexpected result")
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	cases := map[string]struct {
		a      *Error
		b      error
		wantIs bool
	}{
		"instance of the same error": {
			a:      ErrQuotaExceeded,
			b:      ErrQuotaExceeded,
			wantIs: true,
		},
		"two different coded errors": {
			a:      ErrQuotaExceeded,
			b:      ErrInProgress,
			wantIs: false,
		},
		"successful comparison to a wrapped error": {
			a:      ErrInProgress,
			b:      Wrap(ErrInProgress, "tx 0xab"),
			wantIs: true,
		},
		"successful comparison to a pkg/errors wrapped error": {
			a:      ErrNotFound,
			b:      errors.Wrap(ErrNotFound, "gone"),
			wantIs: true,
		},
		"unsuccessful comparison to a wrapped error": {
			a:      ErrReverted,
			b:      Wrap(ErrTimeout, "not mined"),
			wantIs: false,
		},
		"not equal to stdlib error": {
			a:      ErrNotFound,
			b:      fmt.Errorf("stdlib error"),
			wantIs: false,
		},
		"comparison to a field error": {
			a:      ErrValidation,
			b:      Field("Signature", ErrValidation, "owner mismatch"),
			wantIs: true,
		},
		"one of the grouped errors matches": {
			a:      ErrEmpty,
			b:      Append(ErrInput, Wrap(ErrEmpty, "owners")),
			wantIs: true,
		},
		"none of the grouped errors matches": {
			a:      ErrConflict,
			b:      Append(ErrInput, ErrEmpty),
			wantIs: false,
		},
		"nil is nil": {
			a:      nil,
			b:      nil,
			wantIs: true,
		},
		"nil is not an error": {
			a:      nil,
			b:      ErrNotFound,
			wantIs: false,
		},
		"typed nil is nil": {
			a:      nil,
			b:      (*Error)(nil),
			wantIs: true,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := tc.a.Is(tc.b); got != tc.wantIs {
				t.Fatalf("unexpected result: %v", got)
			}
		})
	}
}

func TestStdlibCompatibility(t *testing.T) {
	err := Wrap(Field("Nonce", ErrValidation, "stale"), "propose")
	if !stdlib.Is(err, ErrValidation) {
		t.Fatal("stdlib errors.Is must see through the wrappers")
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "nothing"); err != nil {
		t.Fatalf("want nil, got %+v", err)
	}
	if err := Wrapf(nil, "nothing %d", 1); err != nil {
		t.Fatalf("want nil, got %+v", err)
	}
}

func TestWrapMessage(t *testing.T) {
	err := Wrapf(ErrBroadcast, "relay status %d", 502)
	if got, want := err.Error(), "relay status 502: broadcast"; got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
	if !strings.Contains(fmt.Sprintf("%+v", err), "errors_test.go") {
		t.Fatal("full format must contain the stack trace")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("panic expected")
		}
	}()
	Register(ErrConflict.Code(), "duplicate of conflict")
}

func TestRecover(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err)
		panic("boom")
	}
	err := fn()
	if !ErrPanic.Is(err) {
		t.Fatalf("want panic error, got %+v", err)
	}
}
