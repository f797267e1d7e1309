package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
)

func TestRollbarLogger_Print(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST"})

	usr := user.User{ID: "42", Username: "jane", Role: user.RoleTeacher, PasswordHash: []byte("secret-hash")}
	logger.Error("saving user", errors.New("boom"), usr)

	out := buf.String()
	assert.Contains(t, out, "ERROR: saving user")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "user: 42 (teacher)")
	assert.NotContains(t, out, "secret-hash")
}
