package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("text format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

		logger.Info("corpus loaded", "passages", 42)

		out := buf.String()
		assert.Contains(t, out, "corpus loaded")
		assert.Contains(t, out, "passages=42")
	})

	t.Run("json format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewWithWriter(&buf, Config{JSON: true})

		logger.Info("turn complete", "session", "abc")

		out := buf.String()
		assert.Contains(t, out, `"msg":"turn complete"`)
		assert.Contains(t, out, `"session":"abc"`)
	})

	t.Run("level filtering", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

		logger.Debug("hidden")
		logger.Info("also hidden")
		logger.Warn("visible")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "visible")
	})
}

func TestNewNop(t *testing.T) {
	t.Parallel()

	logger := NewNop()
	assert.NotNil(t, logger)
	// Must not panic even at high volume.
	for range 10 {
		logger.Error("discarded", "key", "value")
	}
}
