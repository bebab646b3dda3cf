package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())
	assert.False(t, logger.enabled)

	usr := user.User{ID: "1", Username: "jdoe", Email: "jdoe@test.cd"}
	logger.Error("scheduling evaluation jobs", errors.New("queue unavailable"), usr)
	logger.Info("evaluation synced")

	out := buf.String()
	assert.Contains(t, out, "[ERROR] scheduling evaluation jobs")
	assert.Contains(t, out, "queue unavailable")
	assert.Contains(t, out, "[INFO] evaluation synced")
	assert.NotContains(t, out, "jdoe@test.cd")
}
