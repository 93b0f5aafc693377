// Package logging configures the process-wide logrus logger.
//
// Output goes to stderr with full timestamps. The level is taken from the
// CRAFT_DEMO_LOG_LEVEL environment variable ("debug", "info", "warn",
// "error"); unknown or empty values fall back to info.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LevelEnv is the environment variable holding the log level.
const LevelEnv = "CRAFT_DEMO_LOG_LEVEL"

// New returns a logger writing to w at the level named by LevelEnv.
func New(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(ParseLevel(os.Getenv(LevelEnv)))
	return log
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(name string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
