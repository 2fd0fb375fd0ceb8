package dispatch

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/gconf"
)

const packageName = "dispatch"

// Configuration of the dispatcher.
type Configuration struct {
	// GasMarginPercent is added to the estimated gas limit.
	GasMarginPercent uint64 `json:"gas_margin_percent"`
	// MiningTimeoutSeconds bounds the wait for a receipt.
	MiningTimeoutSeconds int64 `json:"mining_timeout_seconds"`
	// PollIntervalMillis is the delay between two receipt checks.
	PollIntervalMillis int64 `json:"poll_interval_millis"`
}

// DefaultConfiguration returns the configuration used when none was saved.
func DefaultConfiguration() Configuration {
	return Configuration{
		GasMarginPercent:     30,
		MiningTimeoutSeconds: 5 * 60,
		PollIntervalMillis:   3000,
	}
}

// MiningTimeout returns how long a broadcast transaction is watched.
func (c *Configuration) MiningTimeout() time.Duration {
	return time.Duration(c.MiningTimeoutSeconds) * time.Second
}

// PollInterval returns the delay between two receipt checks.
func (c *Configuration) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// GasLimit returns the estimated gas increased by the margin.
func (c *Configuration) GasLimit(estimated uint64) uint64 {
	return estimated + estimated*c.GasMarginPercent/100
}

func (c *Configuration) Validate() error {
	var errs error
	if c.GasMarginPercent > 200 {
		errs = errors.AppendField(errs, "GasMarginPercent", errors.Wrap(errors.ErrInput, "must not exceed 200"))
	}
	if c.MiningTimeoutSeconds <= 0 {
		errs = errors.AppendField(errs, "MiningTimeoutSeconds", errors.Wrap(errors.ErrInput, "must be positive"))
	}
	if c.PollIntervalMillis <= 0 {
		errs = errors.AppendField(errs, "PollIntervalMillis", errors.Wrap(errors.ErrInput, "must be positive"))
	} else if c.PollInterval() >= c.MiningTimeout() && c.MiningTimeoutSeconds > 0 {
		errs = errors.AppendField(errs, "PollIntervalMillis", errors.Wrap(errors.ErrInput, "must be shorter than the mining timeout"))
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
