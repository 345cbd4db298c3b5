package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerSingleton(t *testing.T) {
	first := GetLogger()
	require.NotNil(t, first)

	// repeated calls hand back the same instance
	assert.True(t, first == GetLogger())
}

func TestInitLoggerReplacesGlobal(t *testing.T) {
	config := NewDefaultConfig()
	config.Logging.Level = "warn"
	config.Logging.Output = []string{"stdout"}

	logger := InitLogger(config)
	require.NotNil(t, logger)
	assert.True(t, logger == GetLogger())
}
