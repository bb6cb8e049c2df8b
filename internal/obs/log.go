package obs

import (
	"os"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger atomic.Pointer[zap.Logger]
)

func init() {
	logger.Store(zap.New(newCore(zapcore.Lock(os.Stdout))))
}

func newCore(ws zapcore.WriteSyncer) zapcore.Core {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, level)
}

// EnableDebug globally enables debug logs.
func EnableDebug(v bool) {
	if v {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// ReplaceLogger swaps the process logger and returns a func restoring the previous one.
func ReplaceLogger(l *zap.Logger) func() {
	prev := logger.Swap(l)
	return func() { logger.Store(prev) }
}

// NewWriterLogger builds a JSON logger on ws sharing the global level.
func NewWriterLogger(ws zapcore.WriteSyncer) *zap.Logger {
	return zap.New(newCore(ws))
}

// Sync flushes buffered log entries.
func Sync() { _ = logger.Load().Sync() }

type Fields map[string]any

func zapFields(f Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}

func Info(msg string, f Fields)  { logger.Load().Info(msg, zapFields(f)...) }
func Warn(msg string, f Fields)  { logger.Load().Warn(msg, zapFields(f)...) }
func Error(msg string, f Fields) { logger.Load().Error(msg, zapFields(f)...) }
func Debug(msg string, f Fields) {
	l := logger.Load()
	if l.Core().Enabled(zapcore.DebugLevel) {
		l.Debug(msg, zapFields(f)...)
	}
}
