package app

import (
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/gconf"
	"github.com/iov-one/safeq/x/batch"
	"github.com/iov-one/safeq/x/dispatch"
	"github.com/iov-one/safeq/x/pending"
)

// InitConfigs stores the configuration of every extension found in the
// "conf" section of given options. Values that are not set keep their
// defaults. Extensions without a section are left untouched.
func InitConfigs(db gconf.Store, opts safeq.Options) error {
	appConf := DefaultConfiguration()
	batchConf := batch.DefaultConfiguration()
	dispatchConf := dispatch.DefaultConfiguration()
	pendingConf := pending.DefaultConfiguration()

	confs := []struct {
		pkg  string
		conf gconf.Configuration
	}{
		{packageName, &appConf},
		{"batch", &batchConf},
		{"dispatch", &dispatchConf},
		{"pending", &pendingConf},
	}
	for _, c := range confs {
		switch err := gconf.InitConfig(db, opts, c.pkg, c.conf); {
		case errors.ErrNotFound.Is(err):
		case err != nil:
			return err
		}
	}
	return nil
}
