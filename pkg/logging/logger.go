// Package logging configures hclog loggers for the update controller.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

// NewLogger creates a named hclog logger. Output defaults to stderr.
// Setting RAUC_JSON_LOG=1 switches to JSON records for log collectors;
// human output gets a per-line prefix so controller logs are grep-able
// among the supervisor's own output.
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	jsonFormat := os.Getenv("RAUC_JSON_LOG") == "1"
	if !jsonFormat {
		output = NewPrefixWriter("rauc: ", output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// GetLogLevel returns the log level configured via RAUC_LOG_LEVEL,
// defaulting to warn.
func GetLogLevel() string {
	if level := os.Getenv("RAUC_LOG_LEVEL"); level != "" {
		return level
	}
	return "warn"
}
