// Package logging builds the logrus logger shared by the CLI and the engine.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects the log level and output format.
type Config struct {
	Level  string // logrus level name, or "off"/"none"
	Format string // "text" or "json"
	Output io.Writer
}

// New returns a logger for the given configuration. Unknown levels fall back
// to info.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "off" || level == "none" {
		logger.SetOutput(io.Discard)
		return logger
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Logger {
	return New(Config{Level: "off"})
}
