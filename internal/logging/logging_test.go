package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pelusa-v/chatroom/internal/config"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		cfg     config.LogConfig
		verbose bool
		want    zapcore.Level
	}{
		{config.LogConfig{}, false, zapcore.InfoLevel},
		{config.LogConfig{Level: "warn"}, false, zapcore.WarnLevel},
		{config.LogConfig{Level: "error", Development: true}, false, zapcore.ErrorLevel},
		{config.LogConfig{Level: "warn"}, true, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		log, err := New(tt.cfg, tt.verbose)
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(tt.want))
		if tt.want > zapcore.DebugLevel {
			assert.False(t, log.Core().Enabled(tt.want-1))
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, false)
	assert.Error(t, err)
}
