package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// KVAdapter exposes a Logger through the printf-style interface the
// embedded key-value engine expects. Engine chatter is demoted one level
// so routine compaction output stays out of info logs.
type KVAdapter struct {
	l *Logger
}

// ForKV returns an adapter that forwards engine messages to l under the
// "kv" component.
func (l *Logger) ForKV() *KVAdapter {
	return &KVAdapter{l: &Logger{Logger: l.With(slog.String("component", "kv"))}}
}

// Errorf logs at error level.
func (a *KVAdapter) Errorf(format string, args ...any) {
	a.l.Error(trim(format, args))
}

// Warningf logs at warn level.
func (a *KVAdapter) Warningf(format string, args ...any) {
	a.l.Warn(trim(format, args))
}

// Infof logs at debug level.
func (a *KVAdapter) Infof(format string, args ...any) {
	a.l.Debug(trim(format, args))
}

// Debugf logs at debug level.
func (a *KVAdapter) Debugf(format string, args ...any) {
	a.l.Debug(trim(format, args))
}

func trim(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
