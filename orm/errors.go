package orm

import (
	"github.com/iov-one/safeq/errors"
)

// Orm reserves 20~29 error codes

// ErrInvalidIndex is returned when an index specified is invalid
var ErrInvalidIndex = errors.Register(20, "invalid index")
