package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*StructuredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewFromZap(zap.New(core)), logs
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"info":    InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"":        InfoLevel,
		"verbose": InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestStructuredLogger_ContextValues(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUploadID(ctx, "up-1")
	logger.Info(ctx, "[UPLOAD_START] Upload received", Fields{"rows": 3})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "[UPLOAD_START] Upload received", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "up-1", fields["upload_id"])
	assert.Equal(t, map[string]interface{}{"rows": 3}, fields["fields"])
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestStructuredLogger_ErrorCarriesError(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Error(context.Background(), "[DB_EXEC_ERROR] Command failed", Fields{}, errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "boom", entry.ContextMap()["error"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.InfoLevel)

	logger.Debug(context.Background(), "hidden", nil)
	logger.Warn(context.Background(), "shown", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestContextLogger_MergeFields(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	cl := logger.WithFields(Fields{"upload": "metadata", "rows": 1})
	cl.Info(context.Background(), "merged", Fields{"rows": 2})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t,
		map[string]interface{}{"upload": "metadata", "rows": 2},
		logs.All()[0].ContextMap()["fields"],
	)
}
