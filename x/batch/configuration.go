package batch

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/gconf"
)

const (
	packageName = "batch"

	// DefaultLimit is the maximal number of transactions in a batch when
	// not configured otherwise.
	DefaultLimit = 10
)

// DefaultMultiSend is the MultiSendCallOnly contract deployed at the same
// address on all supported chains.
var DefaultMultiSend = common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D")

// Configuration of the batch extension.
type Configuration struct {
	// Limit is the maximal number of transactions in a batch.
	Limit int `json:"limit"`
	// MultiSend is the address of the contract that executes a batch.
	MultiSend common.Address `json:"multi_send"`
}

// DefaultConfiguration returns the configuration used when none was saved.
func DefaultConfiguration() Configuration {
	return Configuration{Limit: DefaultLimit, MultiSend: DefaultMultiSend}
}

func (c *Configuration) Validate() error {
	var errs error
	if c.Limit < 2 {
		errs = errors.AppendField(errs, "Limit", errors.Wrap(errors.ErrInput, "must be at least 2"))
	}
	if c.MultiSend == (common.Address{}) {
		errs = errors.AppendField(errs, "MultiSend", errors.ErrEmpty)
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
