package safeq

import (
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
)

// Options are the sections of the JSON configuration file. Each extension
// reads its own section.
type Options map[string]json.RawMessage

// ReadOptions reads the values stored under a given key, and parses the json
// into the given obj. Returns an error if it cannot parse. Noop and no error
// if key is missing.
func (o Options) ReadOptions(key string, obj interface{}) error {
	msg := o[key]
	if len(msg) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg, obj); err != nil {
		return errors.Wrapf(errors.ErrInput, "option %q: %s", key, err)
	}
	return nil
}
