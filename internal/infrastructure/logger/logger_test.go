package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstallsGlobalLogger(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	_ = GetLogger()

	_, err := New("warn", "json")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, GetLogger().GetLevel())

	_, err = New("debug", "console")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}
