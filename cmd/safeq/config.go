package main

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// settingsSection is the key of the configuration file section holding the
// process settings. Extension configurations live under "conf".
const settingsSection = "safeq"

// settings describe a single coordinator process. Every value can be
// overridden with a SAFEQ_ prefixed environment variable.
type settings struct {
	Safe       common.Address `json:"safe" env:"SAFE"`
	ChainID    uint64         `json:"chainId" env:"CHAIN_ID"`
	RPC        string         `json:"rpc" env:"RPC"`
	Gateway    string         `json:"gateway" env:"GATEWAY"`
	Relay      string         `json:"relay" env:"RELAY"`
	RelayKey   string         `json:"relayKey" env:"RELAY_KEY"`
	PrivateKey string         `json:"privateKey" env:"PRIVATE_KEY"`
	Redis      string         `json:"redis" env:"REDIS"`
	Listen     string         `json:"listen" env:"LISTEN"`
	LogLevel   string         `json:"logLevel" env:"LOG_LEVEL"`
}

func defaultSettings() settings {
	return settings{
		RPC:      "http://localhost:8545",
		Listen:   ":8000",
		LogLevel: "info",
	}
}

// Validate returns an error if the settings cannot run a coordinator.
func (s *settings) Validate() error {
	var errs error
	if s.Safe == (common.Address{}) {
		errs = errors.AppendField(errs, "Safe", errors.ErrEmpty)
	}
	if s.ChainID == 0 {
		errs = errors.AppendField(errs, "ChainID", errors.ErrEmpty)
	}
	if s.RPC == "" {
		errs = errors.AppendField(errs, "RPC", errors.ErrEmpty)
	}
	if s.Gateway == "" {
		errs = errors.AppendField(errs, "Gateway", errors.ErrEmpty)
	}
	switch s.LogLevel {
	case "debug", "info", "error", "none":
	default:
		errs = errors.AppendField(errs, "LogLevel", errors.Wrapf(errors.ErrInput, "unknown level %q", s.LogLevel))
	}
	return errs
}

// loadSettings reads the configuration file, if a path is given, and applies
// environment overrides. The whole file is returned as options so that
// extensions can read their own sections.
func loadSettings(path string) (settings, safeq.Options, error) {
	s := defaultSettings()
	opts := safeq.Options{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return s, nil, errors.Wrapf(errors.ErrInput, "read configuration: %s", err)
		}
		if err := json.Unmarshal(raw, &opts); err != nil {
			return s, nil, errors.Wrapf(errors.ErrInput, "configuration file: %s", err)
		}
		if err := opts.ReadOptions(settingsSection, &s); err != nil {
			return s, nil, err
		}
	}
	if err := env.ParseWithOptions(&s, env.Options{Prefix: "SAFEQ_"}); err != nil {
		return s, nil, errors.Wrapf(errors.ErrInput, "environment: %s", err)
	}
	if err := s.Validate(); err != nil {
		return s, nil, errors.Wrap(err, "settings")
	}
	return s, opts, nil
}
