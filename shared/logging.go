package shared

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggingOptions controls the global logrus logger
type LoggingOptions struct {
	Level      string
	Format     string // "json" or "text"
	FilePath   string // empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ConfigureLogging applies level, formatter and outputs to the standard logrus logger.
// The returned closer flushes the rotating file, if any.
func ConfigureLogging(opts LoggingOptions) io.Closer {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil {
		level = logrus.InfoLevel
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", opts.Level)
	}
	logrus.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.FilePath == "" {
		logrus.SetOutput(os.Stdout)
		return io.NopCloser(nil)
	}

	fileWriter := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    valueOr(opts.MaxSizeMB, 50),
		MaxBackups: valueOr(opts.MaxBackups, 5),
		MaxAge:     valueOr(opts.MaxAgeDays, 14),
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	logrus.WithField("file", opts.FilePath).Info("Logging to rotating file")
	return fileWriter
}

func valueOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
