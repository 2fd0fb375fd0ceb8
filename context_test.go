package safeq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tendermint/tendermint/libs/log"
)

func TestContext(t *testing.T) {
	bg := context.Background()

	newLogger := log.NewTMLogger(os.Stdout)
	ctx := WithLogger(bg, newLogger)
	assert.Equal(t, DefaultLogger, GetLogger(bg))
	assert.Equal(t, newLogger, GetLogger(ctx))

	ctx2 := WithLogInfo(ctx, "module", "dispatch")
	assert.NotEqual(t, GetLogger(ctx), GetLogger(ctx2))

	pinned := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, pinned, Now(WithNow(bg, pinned)))
	assert.WithinDuration(t, time.Now(), Now(bg), time.Minute)
}
