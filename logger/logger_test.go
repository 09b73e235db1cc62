package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/prisonops/lifecycle/sym"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput, VerbosityInfo)
			require.NoError(t, err)
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Logger.Sync()
			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "ERROR")

	require.NoError(t, InitializeFromEnv(VerbosityDebug))
	assert.True(t, JSONOutput)
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.WarnLevel), "LOG_LEVEL should raise the floor above -vv")
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.ErrorLevel))

	Logger = zap.NewNop().Sugar()
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.Equal(t, "Info (-v)", LevelName(1))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := WithJobID(context.Background(), 42)
	ctx = WithPrisonCode(ctx, "MDI")
	ctx = WithComponent(ctx, "lifecycle")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{
		FieldJobID, int64(42),
		FieldPrisonCode, "MDI",
		FieldComponent, "lifecycle",
	}, fields)

	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestFromContextAndSymbols(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithPrisonCode(context.Background(), "RSI")
	AddPulseSymbol(FromContext(ctx, base)).Infow("claimed")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "claimed", entry.Message)
	assert.Equal(t, "RSI", entry.ContextMap()[FieldPrisonCode])
	assert.Equal(t, sym.Pulse, entry.ContextMap()[FieldSymbol])
}
