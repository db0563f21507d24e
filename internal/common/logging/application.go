package logging

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// ConfigureCommandLineLogging sets up logging suitable for the command line before any configuration has been
// loaded. Only the message is printed.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&CommandLineFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// ConfigureLogging replaces the standard logrus configuration with the one described by c.
// Console output goes to stdout; if enabled, file output goes to c.File.LogFile, rotated by lumberjack.
func ConfigureLogging(c Config) error {
	return configure(log.StandardLogger(), c, os.Stdout)
}

func configure(logger *log.Logger, c Config, console io.Writer) error {
	if err := validate(c); err != nil {
		return err
	}

	consoleLevel, _ := parseLogLevel(c.Console.Level)
	hooks := make(log.LevelHooks)
	hooks.Add(newLevelHook(console, newFormatter(c.Console.Format), consoleLevel))
	maxLevel := consoleLevel

	if c.File.Enabled {
		fileLevel, _ := parseLogLevel(c.File.Level)
		out, err := createFileWriter(c)
		if err != nil {
			return err
		}
		hooks.Add(newLevelHook(out, newFormatter(c.File.Format), fileLevel))
		if fileLevel > maxLevel {
			maxLevel = fileLevel
		}
	}

	// All output goes through the hooks, each of which filters on its own level.
	logger.SetOutput(io.Discard)
	logger.SetLevel(maxLevel)
	logger.ReplaceHooks(hooks)
	return nil
}

func createFileWriter(c Config) (io.Writer, error) {
	if c.File.Rotation.Enabled {
		return &lumberjack.Logger{
			Filename:   c.File.LogFile,
			MaxSize:    c.File.Rotation.MaxSizeMb,
			MaxBackups: c.File.Rotation.MaxBackups,
			MaxAge:     c.File.Rotation.MaxAgeDays,
			Compress:   c.File.Rotation.Compress,
		}, nil
	}
	f, err := os.OpenFile(c.File.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return f, nil
}

func newFormatter(format string) log.Formatter {
	switch format {
	case FormatJson:
		return &log.JSONFormatter{TimestampFormat: RFC3339Milli}
	case FormatColourful:
		return &log.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: RFC3339Milli}
	default:
		return &log.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: RFC3339Milli}
	}
}

// levelHook writes every entry at or above its level to writer.
type levelHook struct {
	mu        sync.Mutex
	writer    io.Writer
	formatter log.Formatter
	levels    []log.Level
}

func newLevelHook(writer io.Writer, formatter log.Formatter, level log.Level) *levelHook {
	var levels []log.Level
	for _, l := range log.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return &levelHook{writer: writer, formatter: formatter, levels: levels}
}

func (h *levelHook) Levels() []log.Level {
	return h.levels
}

func (h *levelHook) Fire(entry *log.Entry) error {
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(b)
	return err
}
