package database

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/staffgate/internal/config"
	"github.com/dgraph-io/badger/v4"
)

// OpenBadger opens the embedded key-value store used by the badger throttle driver.
// An empty Dir opens an in-memory instance.
func OpenBadger(cfg *config.BadgerConfig, logger *slog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	// Throttle records are tiny
	opts.ValueLogFileSize = 16 << 20
	opts.Logger = nil
	if logger != nil {
		opts.Logger = badgerLogger{logger: logger.With(slog.String("component", "badger"))}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Dir, err)
	}

	if logger != nil {
		logger.Info("badger store opened", slog.String("dir", cfg.Dir), slog.Bool("in_memory", cfg.Dir == ""))
	}
	return db, nil
}

// badgerLogger routes badger's printf-style logging into slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(trimLine(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(trimLine(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(trimLine(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(trimLine(format, args...))
}

func trimLine(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
