package logging

import (
	"strings"

	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/config"
)

// Setup configures the standard logrus logger. Production defaults to JSON
// output, everything else to text.
func Setup(cfg config.LoggingConfig, env string) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	format := cfg.Format
	if format == "" {
		format = "text"
		if env == "production" {
			format = "json"
		}
	}

	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("Unknown log level, using info")
	}
}
