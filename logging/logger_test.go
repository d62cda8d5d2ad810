package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level LogLevel) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return FromZap(zap.New(core), level), logs
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
}

func TestZapLoggerFields(t *testing.T) {
	logger, logs := newObserved(LogLevelDebug)

	logger.WithCategory("beans").
		WithFields(F("bean", "a")).
		Info("creating bean", F("scope", "singleton"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "creating bean", entry.Message)
	assert.Equal(t, "beans", entry.LoggerName)
	ctx := entry.ContextMap()
	assert.Equal(t, "a", ctx["bean"])
	assert.Equal(t, "singleton", ctx["scope"])
}

func TestMinimumLevelFilters(t *testing.T) {
	logger, logs := newObserved(LogLevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("failed", Err(errors.New("boom")))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
	assert.Equal(t, "boom", logs.All()[1].ContextMap()["error"])
}

func TestWithFieldsDoesNotLeak(t *testing.T) {
	logger, logs := newObserved(LogLevelInfo)

	child := logger.WithFields(F("k", 1))
	logger.Info("parent")
	child.Info("child")

	require.Equal(t, 2, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "k")
	assert.Contains(t, logs.All()[1].ContextMap(), "k")
}

func TestNopLogger(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.WithCategory("x").WithFields(F("a", 1)).Info("ignored")
	})
}
