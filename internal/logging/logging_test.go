package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{" warn ", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"chatty", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_UsesEnvLevel(t *testing.T) {
	t.Setenv(LevelEnv, "debug")
	var buf bytes.Buffer
	log := New(&buf)
	log.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug message not written: %q", buf.String())
	}
}

func TestNew_DefaultLevelHidesDebug(t *testing.T) {
	t.Setenv(LevelEnv, "")
	var buf bytes.Buffer
	log := New(&buf)
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug message written at info level: %q", buf.String())
	}
}
