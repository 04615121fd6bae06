package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	log := New(Config{Level: "debug"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log = New(Config{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	log := New(Config{Level: "info", File: path})

	log.WithField("request_id", "req-1").Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"request_id":"req-1"`)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
