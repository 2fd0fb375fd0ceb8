package gconf

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/safeqtest/assert"
	"github.com/iov-one/safeq/store"
)

type myConfig struct {
	Limit   int           `json:"limit"`
	Timeout time.Duration `json:"timeout"`
	Name    string        `json:"name"`
}

func (c *myConfig) Validate() error {
	if c.Limit < 1 {
		return errors.Field("Limit", errors.ErrInput, "must be positive")
	}
	return nil
}

func (c *myConfig) Marshal() ([]byte, error) { return json.Marshal(c) }

func (c *myConfig) Unmarshal(raw []byte) error { return json.Unmarshal(raw, c) }

func TestSaveLoad(t *testing.T) {
	cases := map[string]struct {
		conf        *myConfig
		wantSaveErr *errors.Error
	}{
		"valid configuration": {
			conf: &myConfig{Limit: 10, Timeout: time.Minute, Name: "batch"},
		},
		"invalid configuration cannot be saved": {
			conf:        &myConfig{Limit: 0},
			wantSaveErr: errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			if err := Save(db, "mypkg", tc.conf); !tc.wantSaveErr.Is(err) {
				t.Fatalf("unexpected save error: %s", err)
			}
			if tc.wantSaveErr != nil {
				var got myConfig
				assert.IsErr(t, errors.ErrNotFound, Load(db, "mypkg", &got))
				return
			}

			var got myConfig
			assert.Nil(t, Load(db, "mypkg", &got))
			assert.Equal(t, *tc.conf, got)
		})
	}
}

func TestInitConfig(t *testing.T) {
	opts := safeq.Options{
		"conf": json.RawMessage(`{
			"mypkg": {"limit": 3, "name": "from file"},
			"broken": {"limit": 0}
		}`),
	}

	db := store.MemStore()
	assert.Nil(t, InitConfig(db, opts, "mypkg", &myConfig{}))

	var got myConfig
	assert.Nil(t, Load(db, "mypkg", &got))
	assert.Equal(t, myConfig{Limit: 3, Name: "from file"}, got)

	assert.IsErr(t, errors.ErrNotFound, InitConfig(db, opts, "unknown", &myConfig{}))
	assert.IsErr(t, errors.ErrInput, InitConfig(db, opts, "broken", &myConfig{}))
}
