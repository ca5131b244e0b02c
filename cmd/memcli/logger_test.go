package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func Test_newLogger_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memcli.log")

	logger, err := newLogger(logConfig{Level: "info", File: path, MaxSize: 1})
	assert.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("executing command", zap.String("verb", "get"))
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"executing command"`)
	assert.Contains(t, string(content), `"verb":"get"`)
	assert.Contains(t, string(content), `"level":"INFO"`)
	assert.NotContains(t, string(content), "hidden")
}

func Test_newLogger_console(t *testing.T) {
	logger, err := newLogger(logConfig{Level: "warn"})
	assert.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}

func Test_newLogger_invalidLevel(t *testing.T) {
	_, err := newLogger(logConfig{Level: "loud"})
	assert.Error(t, err)
}
