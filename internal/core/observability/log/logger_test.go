package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_FieldsReachZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.Named("bus").With(String("engine", "e1")).Warn("slot load failed",
		Handle("handle", 0x0000000200000005),
		Error(errors.New("missing")),
		Int("workers", 4),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "bus", entry.LoggerName)
	require.Equal(t, "slot load failed", entry.Message)

	ctx := entry.ContextMap()
	require.Equal(t, "e1", ctx["engine"])
	require.Equal(t, "0x0000000200000005", ctx["handle"])
	require.Equal(t, "missing", ctx["error"])
	require.EqualValues(t, 4, ctx["workers"])
}

func TestLogger_SetLevel(t *testing.T) {
	l := New(Options{Level: LevelInfo, Output: []string{"stderr"}})
	require.Equal(t, LevelInfo, l.GetLevel())

	l.SetLevel(LevelError)
	require.Equal(t, LevelError, l.GetLevel())

	child := l.Named("clock")
	l.SetLevel(LevelDebug)
	require.Equal(t, LevelDebug, child.GetLevel(), "children share the atomic level")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelFatal,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestHandle_PadsToSixteenDigits(t *testing.T) {
	tests := map[uint64]string{
		0:                  "0x0000000000000000",
		0x1f:               "0x000000000000001f",
		0xffffffffffffffff: "0xffffffffffffffff",
	}
	for in, want := range tests {
		require.Equal(t, want, Handle("h", in).Value)
	}
}
