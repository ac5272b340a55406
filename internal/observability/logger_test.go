package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/deedharvest/internal/config"
)

// setupTestLogger initializes the global logger to write to a buffer.
func setupTestLogger(cfg config.LoggerConfig) *bytes.Buffer {
	buf := new(bytes.Buffer)
	initializeLogger(cfg, zapcore.AddSync(buf))
	return buf
}

// resetGlobalLogger ensures test isolation for the global singleton.
func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

func TestInitializeLogger(t *testing.T) {
	t.Run("console format emits readable lines", func(t *testing.T) {
		resetGlobalLogger()
		buf := setupTestLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "test-service",
		})

		GetLogger().Info("hello from console", zap.String("k", "v"))
		out := buf.String()
		assert.Contains(t, out, "hello from console")
		assert.Contains(t, out, "test-service")
		assert.Contains(t, out, "INFO")
	})

	t.Run("json format emits structured lines", func(t *testing.T) {
		resetGlobalLogger()
		buf := setupTestLogger(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "test-service",
		})

		GetLogger().Warn("structured", zap.Int("count", 3))

		line := strings.TrimSpace(buf.String())
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "structured", entry["msg"])
		assert.Equal(t, float64(3), entry["count"])
	})

	t.Run("level filter drops lower levels", func(t *testing.T) {
		resetGlobalLogger()
		buf := setupTestLogger(config.LoggerConfig{
			Level:       "warn",
			Format:      "console",
			ServiceName: "test-service",
		})

		GetLogger().Info("should be filtered")
		assert.NotContains(t, buf.String(), "should be filtered")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		resetGlobalLogger()
		buf := setupTestLogger(config.LoggerConfig{
			Level:       "not-a-level",
			Format:      "console",
			ServiceName: "test-service",
		})

		GetLogger().Info("still visible")
		assert.Contains(t, buf.String(), "still visible")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	resetGlobalLogger()
	assert.NotNil(t, GetLogger(), "must return a usable logger before initialization")
}
