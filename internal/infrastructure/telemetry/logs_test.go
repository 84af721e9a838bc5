package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBridge_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{CollectorEndpoint: "localhost:14317"}, nil)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)
	assert.Same(t, base, p.Bridge(base, "xtravels", zapcore.InfoLevel), "nothing to bridge")

	var nilProviders *Providers
	assert.Same(t, base, nilProviders.Bridge(base, "xtravels", zapcore.InfoLevel))
	assert.Equal(t, 0, logs.Len())
}

func TestBridge_KeepsBaseOutput(t *testing.T) {
	p := &Providers{logs: sdklog.NewLoggerProvider(), logger: zap.NewNop()}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	core, logs := observer.New(zapcore.DebugLevel)
	bridged := p.Bridge(zap.New(core), "xtravels", zapcore.WarnLevel)

	bridged.Debug("replicated rows", zap.String("entity", "Flights"))
	bridged.Warn("remote unavailable", zap.String("entity", "Supplements"))

	require.Equal(t, 2, logs.Len(), "the base core still receives every entry")
	assert.Equal(t, "Flights", logs.All()[0].ContextMap()["entity"])
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))

	logger := zap.New(core.With([]zapcore.Field{zap.String("scope", "Travels.travel_number")}))
	logger.Info("dropped")
	logger.Error("kept")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "Travels.travel_number", entry.ContextMap()["scope"])
}
