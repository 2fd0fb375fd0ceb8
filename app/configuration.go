package app

import (
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/gconf"
)

const packageName = "app"

// Configuration of the coordinator.
type Configuration struct {
	// RefreshIntervalSeconds is the delay between two refreshes done by
	// Run.
	RefreshIntervalSeconds int64 `json:"refresh_interval_seconds"`
	// ReadRetries is how many times a failed read is retried.
	ReadRetries uint64 `json:"read_retries"`
	// RetryIntervalMillis is the first delay before a read is retried.
	// It grows exponentially with every attempt.
	RetryIntervalMillis int64 `json:"retry_interval_millis"`
	// HistoryPages limits how many pages of history are scanned when
	// looking for an abandoned recovery.
	HistoryPages int `json:"history_pages"`
	// RecoveryModules are the delay modifiers enabled on the Safe.
	RecoveryModules []common.Address `json:"recovery_modules"`
}

// DefaultConfiguration returns the configuration used when none was saved.
func DefaultConfiguration() Configuration {
	return Configuration{
		RefreshIntervalSeconds: 15,
		ReadRetries:            3,
		RetryIntervalMillis:    200,
		HistoryPages:           5,
	}
}

func (c *Configuration) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

func (c *Configuration) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMillis) * time.Millisecond
}

func (c *Configuration) Validate() error {
	var errs error
	if c.RefreshIntervalSeconds <= 0 {
		errs = errors.AppendField(errs, "RefreshIntervalSeconds", errors.Wrap(errors.ErrInput, "must be positive"))
	}
	if c.RetryIntervalMillis <= 0 {
		errs = errors.AppendField(errs, "RetryIntervalMillis", errors.Wrap(errors.ErrInput, "must be positive"))
	}
	if c.HistoryPages < 1 {
		errs = errors.AppendField(errs, "HistoryPages", errors.Wrap(errors.ErrInput, "must be at least 1"))
	}
	seen := mapset.NewThreadUnsafeSet[common.Address]()
	for i, m := range c.RecoveryModules {
		field := fmt.Sprintf("RecoveryModules.%d", i)
		if m == (common.Address{}) {
			errs = errors.AppendField(errs, field, errors.ErrEmpty)
		}
		if !seen.Add(m) {
			errs = errors.AppendField(errs, field, errors.ErrDuplicate)
		}
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
