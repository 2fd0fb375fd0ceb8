package errors

import "testing"

func TestFieldErrors(t *testing.T) {
	cases := map[string]struct {
		err       error
		field     string
		wantCount int
	}{
		"nil error": {
			err:       nil,
			field:     "Owners",
			wantCount: 0,
		},
		"single field error": {
			err:       Field("Owners", ErrEmpty, "no owners"),
			field:     "Owners",
			wantCount: 1,
		},
		"field error of another field": {
			err:       Field("Threshold", ErrInput, "zero"),
			field:     "Owners",
			wantCount: 0,
		},
		"wrapped field error": {
			err:       Wrap(Field("Owners", ErrEmpty, "no owners"), "account"),
			field:     "Owners",
			wantCount: 1,
		},
		"grouped field errors": {
			err: Append(
				Field("Owners", ErrEmpty, "no owners"),
				Field("Threshold", ErrInput, "zero"),
				Field("Owners.1", ErrDuplicate, "repeated"),
				Field("Owners", ErrInput, "not checksummed"),
			),
			field:     "Owners",
			wantCount: 2,
		},
		"append field ignores nil": {
			err:       AppendField(nil, "Owners", nil),
			field:     "Owners",
			wantCount: 0,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := FieldErrors(tc.err, tc.field); len(got) != tc.wantCount {
				t.Fatalf("want %d errors, got %d: %v", tc.wantCount, len(got), got)
			}
		})
	}
}

func TestFieldMessage(t *testing.T) {
	err := Field("Threshold", ErrInput, "must be at most %d", 3)
	if got, want := err.Error(), `field "Threshold": must be at most 3: invalid input`; got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}
