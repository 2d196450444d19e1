package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hannes/gridfinity-cutout/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		enabled zapcore.Level
		hidden  zapcore.Level
	}{
		{"default level", config.LoggingConfig{}, zapcore.InfoLevel, zapcore.DebugLevel},
		{"debug development", config.LoggingConfig{Level: "debug", Development: true}, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn", config.LoggingConfig{Level: "warn"}, zapcore.WarnLevel, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.hidden))
		})
	}

	_, err := New(config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
	assert.NotNil(t, Must(config.LoggingConfig{Level: "chatty"}))
}
