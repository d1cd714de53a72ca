package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestZapLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(DebugLevel, &buf)).Named("powell").With(zap.String("job_id", "j1"))

	zl.Debug("Pass complete",
		zap.Int("pass", 3),
		zap.Float64("f", 0.25),
		zap.Bool("replaced", true),
		zap.Duration("elapsed", 1500*time.Millisecond),
		zap.Error(assert.AnError),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "Pass complete", entry["message"])
	assert.Equal(t, "powell", entry["logger"])
	assert.Equal(t, "j1", entry["job_id"])
	assert.Equal(t, float64(3), entry["pass"])
	assert.Equal(t, 0.25, entry["f"])
	assert.Equal(t, true, entry["replaced"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
	assert.Contains(t, entry["caller"], "logging/zapadapter_test.go")
}

func TestZapLoggerLevelGate(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(WarnLevel, &buf))

	zl.Debug("hidden")
	zl.Info("hidden")
	zl.Warn("shown")
	zl.Error("shown")

	assert.Len(t, decodeLines(t, &buf), 2)
	assert.False(t, NewZapAdapter(New(WarnLevel, &buf)).Enabled(zap.InfoLevel))
	assert.True(t, NewZapAdapter(New(WarnLevel, &buf)).Enabled(zap.DPanicLevel))
}
