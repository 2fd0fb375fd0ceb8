package pending

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/gconf"
)

const packageName = "pending"

// Configuration of the pending submission trackers.
type Configuration struct {
	// TTLSeconds is how long a submission stays registered if its
	// outcome is never reported.
	TTLSeconds int64 `json:"ttl_seconds"`
	// Prefix namespaces the redis keys.
	Prefix string `json:"prefix"`
}

// DefaultConfiguration returns the configuration used when none was saved.
func DefaultConfiguration() Configuration {
	return Configuration{TTLSeconds: 15 * 60, Prefix: "safeq"}
}

// TTL returns the lifetime of a submission.
func (c *Configuration) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c *Configuration) Validate() error {
	var errs error
	if c.TTLSeconds <= 0 {
		errs = errors.AppendField(errs, "TTLSeconds", errors.Wrap(errors.ErrInput, "must be positive"))
	}
	if c.Prefix == "" {
		errs = errors.AppendField(errs, "Prefix", errors.ErrEmpty)
	}
	return errs
}

func (c *Configuration) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func (c *Configuration) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, c)
}

// SaveConfig validates and stores the configuration.
func SaveConfig(db gconf.Store, c Configuration) error {
	return gconf.Save(db, packageName, &c)
}

// LoadConfig returns the stored configuration or the default one if nothing
// was stored.
func LoadConfig(db gconf.ReadStore) (Configuration, error) {
	var conf Configuration
	switch err := gconf.Load(db, packageName, &conf); {
	case errors.ErrNotFound.Is(err):
		return DefaultConfiguration(), nil
	case err != nil:
		return conf, errors.Wrap(err, "load configuration")
	}
	return conf, nil
}
