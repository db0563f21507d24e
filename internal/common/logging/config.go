package logging

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

const (
	FormatText      = "text"
	FormatColourful = "colourful"
	FormatJson      = "json"
)

var validLogFormats = map[string]bool{
	FormatText:      true,
	FormatColourful: true,
	FormatJson:      true,
}

// Config defines pppp logging configuration.
type Config struct {
	// Defines configuration for console logging on stdout
	Console struct {
		// Log level, e.g. INFO, ERROR etc
		Level string `mapstructure:"level"`
		// Logging format, one of text, colourful or json
		Format string `mapstructure:"format"`
	} `mapstructure:"console"`
	// Defines configuration for file logging
	File struct {
		// Whether file logging is enabled.
		Enabled bool `mapstructure:"enabled"`
		// Log level, e.g. INFO, ERROR etc
		Level string `mapstructure:"level"`
		// Logging format, either text or json
		Format string `mapstructure:"format"`
		// The Location of the logfile on disk
		LogFile string `mapstructure:"logfile"`
		// Log Rotation Options
		Rotation struct {
			// Whether Log Rotation is enabled
			Enabled bool `mapstructure:"enabled"`
			// Maximum size in megabytes of the log file before it gets rotated
			MaxSizeMb int `mapstructure:"maxSizeMb"`
			// Maximum number of old log files to retain
			MaxBackups int `mapstructure:"maxBackups"`
			// Maximum number of days to retain old log files
			MaxAgeDays int `mapstructure:"maxAgeDays"`
			// Whether to compress rotated log files
			Compress bool `mapstructure:"compress"`
		} `mapstructure:"rotation"`
	} `mapstructure:"file"`
}

func validate(c Config) error {
	if _, err := parseLogLevel(c.Console.Level); err != nil {
		return err
	}
	if err := validateLogFormat(c.Console.Format); err != nil {
		return err
	}

	if c.File.Enabled {
		if _, err := parseLogLevel(c.File.Level); err != nil {
			return err
		}
		if err := validateLogFormat(c.File.Format); err != nil {
			return err
		}
		if c.File.LogFile == "" {
			return errors.New("file.logfile must be set when file logging is enabled")
		}

		rotation := c.File.Rotation
		if rotation.Enabled {
			if rotation.MaxSizeMb <= 0 {
				return errors.New("rotation.maxSizeMb must be greater than zero")
			}
			if rotation.MaxBackups <= 0 {
				return errors.New("rotation.maxBackups must be greater than zero")
			}
			if rotation.MaxAgeDays <= 0 {
				return errors.New("rotation.maxAgeDays must be greater than zero")
			}
		}
	}
	return nil
}

func validateLogFormat(f string) error {
	if !validLogFormats[f] {
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", f, maps.Keys(validLogFormats))
	}
	return nil
}

func parseLogLevel(level string) (log.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	case "panic":
		return log.PanicLevel, nil
	case "fatal":
		return log.FatalLevel, nil
	default:
		return log.InfoLevel, errors.Errorf("unknown level: %s", level)
	}
}
