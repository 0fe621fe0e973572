package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewAppliesLevelPerLogger(t *testing.T) {
	debug := New(Config{Level: "debug"})
	quiet := New(Config{Level: "error"})

	assert.Equal(t, zerolog.DebugLevel, debug.GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, quiet.GetLevel(),
		"creating a second logger must not change the first one's level")
	assert.Equal(t, zerolog.DebugLevel, debug.GetLevel())
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, New(Config{Level: "verbose"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Config{}).GetLevel())
}
