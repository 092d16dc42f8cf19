package storage

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger redirects badger's own logs to the application logger.
// Badger info messages are verbose, they are logged at debug level.
type badgerLogger struct {
	log *slog.Logger
}

func newBadgerLogger(log *slog.Logger) *badgerLogger {
	return &badgerLogger{log: log.With("component", "badger")}
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(clean(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(clean(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(clean(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(clean(format, args...))
}

// clean removes the trailing newlines badger adds.
func clean(format string, args ...any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
