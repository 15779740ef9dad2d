package logger

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{" warning ", log.WarnLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetLevel(t *testing.T) {
	old := Logger.GetLevel()
	defer Logger.SetLevel(old)

	SetLevel("debug")
	assert.Equal(t, log.DebugLevel, Logger.GetLevel())
}

func TestWithCarriesFields(t *testing.T) {
	old := Logger
	defer func() { Logger = old }()

	var buf bytes.Buffer
	Logger = log.New(&buf)
	With("path", "/dev/input/event4").Info("Input device read failed")

	assert.Contains(t, buf.String(), "path=/dev/input/event4")
	assert.Contains(t, buf.String(), "Input device read failed")
}
