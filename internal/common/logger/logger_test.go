package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(t *testing.T) (Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapAdapter(zap.New(core)), logs
}

func TestFields_VectorsAndSecrets(t *testing.T) {
	log, logs := observed(t)

	log.Info("embedded", map[string]interface{}{
		"seed":     []float32{0.1, 0.2, 0.3},
		"apiKey":   "sk-live",
		"password": "hunter2",
		"entity":   "winkers",
	})

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "vector(3)", ctx["seed"])
	assert.Equal(t, redacted, ctx["apiKey"])
	assert.Equal(t, redacted, ctx["password"])
	assert.Equal(t, "winkers", ctx["entity"])
}

func TestFields_KeyOrderIsStable(t *testing.T) {
	fields := mapToZapFields(map[string]interface{}{"stage": "embed", "entity": "events", "requestId": "r-1"})
	require.Len(t, fields, 3)
	assert.Equal(t, "entity", fields[0].Key)
	assert.Equal(t, "requestId", fields[1].Key)
	assert.Equal(t, "stage", fields[2].Key)
}

func TestWithFields_ScopesChildLoggers(t *testing.T) {
	log, logs := observed(t)

	scoped := log.WithFields(map[string]interface{}{"taskType": "search-events"})
	scoped.WithError(errors.New("index missing")).Warn("search failed", nil)
	log.Debug("unscoped", nil)

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, first.Level)
	assert.Equal(t, "search-events", first.ContextMap()["taskType"])
	assert.Equal(t, "index missing", first.ContextMap()["error"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "taskType")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
