// Package evelog provides the default structured logger and an
// everr.Reporter that logs reports through it to stderr. eval.New does not
// use it on its own: a nil reporter there falls back to a plain stderr line.
package evelog

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo-org/eve/everr"
)

// Config controls the logger's level and format, mirroring the corpus's
// LoggerConfig shape.
type Config struct {
	Level      string // "debug", "info", "warn", "error"
	Format     string // "json" or "text"
	TimeFormat string
}

// DefaultConfig returns sensible defaults: info level, text format.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", TimeFormat: time.RFC3339}
}

// New builds a logrus.Logger from cfg, writing to stderr.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	switch cfg.Level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: timeFormat, FullTimestamp: true})
	}

	return logger
}

// Reporter adapts a logrus.Logger to everr.Reporter, logging every report
// at error level with "kind" as a structured field.
type Reporter struct {
	logger *logrus.Logger
}

// NewReporter wraps logger as an everr.Reporter. A nil logger uses New
// with DefaultConfig().
func NewReporter(logger *logrus.Logger) *Reporter {
	if logger == nil {
		logger = New(DefaultConfig())
	}
	return &Reporter{logger: logger}
}

// Report implements everr.Reporter.
func (r *Reporter) Report(kind, message string) {
	r.logger.WithField("kind", kind).Error(message)
}

var _ everr.Reporter = (*Reporter)(nil)
