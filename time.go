package safeq

import (
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
)

// UnixTime is a point in time in POSIX seconds, the precision of block
// timestamps and of the gateway submission dates.
type UnixTime int64

// MaxUnixTime is the latest representable time. Arithmetic on UnixTime
// saturates at this value, so a delay read from a contract can never wrap a
// deadline into the past.
const MaxUnixTime = UnixTime(math.MaxInt64)

// Time returns the moment as time.Time.
func (t UnixTime) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// IsZero returns true if this time represents a zero value.
func (t UnixTime) IsZero() bool {
	return t == 0
}

// Add returns this time moved by given duration, truncated to seconds.
func (t UnixTime) Add(d time.Duration) UnixTime {
	secs := UnixTime(d / time.Second)
	switch {
	case secs > 0 && t > MaxUnixTime-secs:
		return MaxUnixTime
	case secs < 0 && t < math.MinInt64-secs:
		return math.MinInt64
	}
	return t + secs
}

// AddSeconds returns this time moved by given number of seconds, or
// MaxUnixTime if the result does not fit.
func (t UnixTime) AddSeconds(s uint64) UnixTime {
	if s > uint64(MaxUnixTime) || t > MaxUnixTime-UnixTime(s) {
		return MaxUnixTime
	}
	return t + UnixTime(s)
}

// AsUnixTime converts given time, dropping the sub second part.
func AsUnixTime(t time.Time) UnixTime {
	return UnixTime(t.Unix())
}

// UnmarshalJSON accepts a number of seconds, as sent by the chain and kept
// in the store, or an RFC 3339 string, as written in configuration files and
// sent by the gateway.
func (t *UnixTime) UnmarshalJSON(raw []byte) error {
	var unix int64
	if err := json.Unmarshal(raw, &unix); err != nil {
		var stdtime time.Time
		if err := json.Unmarshal(raw, &stdtime); err != nil {
			return errors.Wrap(errors.ErrInput, "invalid time format")
		}
		unix = stdtime.Unix()
	}
	if unix < 0 {
		return errors.Wrap(errors.ErrInput, "time before epoch")
	}
	*t = UnixTime(unix)
	return nil
}

// Validate returns an error if this time is before the epoch.
func (t UnixTime) Validate() error {
	if t < 0 {
		return errors.Wrap(errors.ErrState, "negative value")
	}
	return nil
}

func (t UnixTime) String() string {
	return t.Time().UTC().String()
}
