package util

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerologLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   LogLevel
		want zerolog.Level
	}{
		{TraceLevel, zerolog.TraceLevel},
		{DebugLevel, zerolog.DebugLevel},
		{InfoLevel, zerolog.InfoLevel},
		{WarnLevel, zerolog.WarnLevel},
		{ErrorLevel, zerolog.ErrorLevel},
		{42, zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ZerologLevel(tt.in), "level %d", tt.in)
	}
}

// Not parallel: the logger under test is global
func TestNewLogLogger_RoutesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	InitializeLoggerWithOutput(InfoLevel, &buf)
	t.Cleanup(func() { InitializeLogger(InfoLevel) })

	NewLogLogger("FuseServer", WarnLevel).Printf("rx %d: LOOKUP\n", 7)
	out := buf.String()
	assert.Contains(t, out, "rx 7: LOOKUP")
	assert.Contains(t, out, "FuseServer")

	buf.Reset()
	NewLogLogger("FuseServer", DebugLevel).Print("dropped below info")
	assert.Empty(t, buf.String())
}

func TestGetLogger_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	InitializeLoggerWithOutput(DebugLevel, &buf)
	t.Cleanup(func() { InitializeLogger(InfoLevel) })

	buf.Reset()
	logger := GetLogger("storage")
	logger.Info().Msg("formatted")
	assert.Contains(t, buf.String(), "storage")
	assert.Contains(t, buf.String(), "formatted")
}
