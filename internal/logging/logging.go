// Package logging configures the application logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// Setup returns a text logger at level writing to file, or to stderr when
// file is empty. cleanup closes the file.
func Setup(level, file string) (logger *logrus.Logger, cleanup func(), err error) {
	logger, err = newLogger(level)
	if err != nil {
		return nil, nil, err
	}
	if file == "" {
		logger.SetOutput(os.Stderr)
		return logger, func() {}, nil
	}
	f, err := openLogFile(file)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(f)
	return logger, func() {
		_ = f.Close()
	}, nil
}

// SetupTUI returns a logger for interactive mode, where the terminal belongs
// to the UI. Without a file, logging is disabled. With a file, entries go
// there and Bubble Tea debug logs are enabled too.
func SetupTUI(level, file string) (logger *logrus.Logger, cleanup func(), err error) {
	logger, err = newLogger(level)
	if err != nil {
		return nil, nil, err
	}
	if file == "" {
		logger.SetOutput(io.Discard)
		return logger, func() {}, nil
	}
	f, err := openLogFile(file)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(f)

	tf, err := tea.LogToFile(file, "tea")
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to enable bubbletea logging: %w", err)
	}
	return logger, func() {
		_ = tf.Close()
		_ = f.Close()
		log.SetOutput(os.Stderr)
	}, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
