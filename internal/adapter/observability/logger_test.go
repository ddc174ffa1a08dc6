package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-coach/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	assert.NotNil(t, SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"}))
	assert.NotNil(t, SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"}))
}

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, config.Config{AppEnv: "test", OTELServiceName: "interview-coach"})
	lg.Info("hello", slog.String("user_id", "u1"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "interview-coach", rec["service"])
	assert.Equal(t, "test", rec["env"])
	assert.Equal(t, "u1", rec["user_id"])
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want slog.Level
	}{
		{"dev default", config.Config{AppEnv: "dev"}, slog.LevelDebug},
		{"prod default", config.Config{AppEnv: "prod"}, slog.LevelInfo},
		{"override warn", config.Config{AppEnv: "dev", LogLevel: "WARN"}, slog.LevelWarn},
		{"override error", config.Config{AppEnv: "prod", LogLevel: "error"}, slog.LevelError},
		{"unknown falls back", config.Config{AppEnv: "prod", LogLevel: "loud"}, slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, levelFor(tt.cfg))
		})
	}
}

func TestNewLogger_DebugSuppressedInProd(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, config.Config{AppEnv: "prod"})
	assert.False(t, lg.Enabled(context.Background(), slog.LevelDebug))
	lg.Debug("hidden")
	assert.Empty(t, buf.String())
}
