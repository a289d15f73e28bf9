// Package logging configures logrus from capsift settings.
package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"capsift/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the standard logger. The returned closer flushes the log file, if any.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	return Apply(logrus.StandardLogger(), cfg, os.Stderr)
}

// Apply configures l to write to console and, when cfg.File.Path is set, to a rotated file.
func Apply(l *logrus.Logger, cfg config.LogConfig, console io.Writer) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "logrus.ParseLevel")
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File.Path == "" {
		l.SetOutput(console)
		return nopCloser{}, nil
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSizeMB,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAgeDays,
		Compress:   cfg.File.Compress,
	}
	l.SetOutput(io.MultiWriter(console, file))
	return file, nil
}
