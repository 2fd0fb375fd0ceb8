package errors

import (
	"fmt"
	"strings"
)

// Append clubs together all provided errors. Nil values are ignored.
//
// If no error or only nil values are provided, nil is returned.
//
// If only a single error is provided, it is returned as it is.
//
// If more than one error is provided, a multi error is returned. Its Is
// method returns true if any of the grouped errors matches.
func Append(errs ...error) error {
	var res multiErr
	for _, e := range errs {
		if isNilErr(e) {
			continue
		}
		if m, ok := e.(multiErr); ok {
			res = append(res, m...)
		} else {
			res = append(res, e)
		}
	}

	switch len(res) {
	case 0:
		return nil
	case 1:
		return res[0]
	default:
		return res
	}
}

type multiErr []error

func (m multiErr) Error() string {
	points := make([]string, len(m))
	for i, err := range m {
		points[i] = fmt.Sprintf("* %s", err)
	}
	return fmt.Sprintf(
		"%d errors occurred:\n\t%s\n",
		len(m), strings.Join(points, "\n\t"))
}

// Unpack returns all grouped errors.
func (m multiErr) Unpack() []error {
	return []error(m)
}

// Code returns the code of the first error, consistent with a fail fast
// approach.
func (m multiErr) Code() uint32 {
	return code(m[0])
}

type unpacker interface {
	Unpack() []error
}
