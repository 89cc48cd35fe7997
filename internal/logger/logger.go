// Package logger is the process-wide leveled logger.
//
// The API is printf-style (Debug/Info/Warn/Error) so call sites stay terse.
// Output is produced by a zap core which can be switched between a
// human-readable console encoding and JSON, and pointed at stdout, stderr or
// a file.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format = "text"
	sink   zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	closer func() error

	current atomic.Pointer[zap.SugaredLogger]
)

func init() {
	rebuild()
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	l, err := ParseLevel(name)
	if err != nil {
		return
	}
	level.SetLevel(l.zapLevel())
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	switch level.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebug reports whether debug output is enabled. Hot paths use it to skip
// building log arguments.
func IsDebug() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// SetFormat selects "text" (console) or "json" encoding.
func SetFormat(f string) error {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return fmt.Errorf("unknown log format %q", f)
	}

	mu.Lock()
	format = f
	mu.Unlock()

	rebuild()
	return nil
}

// SetOutput directs log output to "stdout", "stderr" or a file path
// (opened in append mode).
func SetOutput(output string) error {
	var (
		ws      zapcore.WriteSyncer
		closeFn func() error
	)

	switch output {
	case "", "stdout":
		ws = zapcore.Lock(os.Stdout)
	case "stderr":
		ws = zapcore.Lock(os.Stderr)
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		ws = zapcore.Lock(f)
		closeFn = f.Close
	}

	mu.Lock()
	prev := closer
	sink = ws
	closer = closeFn
	mu.Unlock()

	rebuild()

	if prev != nil {
		_ = prev()
	}
	return nil
}

// Sync flushes buffered output.
func Sync() {
	_ = current.Load().Sync()
}

func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, sink, level)
	current.Store(zap.New(core).Sugar())
}

func Debug(format string, v ...any) {
	current.Load().Debugf(format, v...)
}

func Info(format string, v ...any) {
	current.Load().Infof(format, v...)
}

func Warn(format string, v ...any) {
	current.Load().Warnf(format, v...)
}

func Error(format string, v ...any) {
	current.Load().Errorf(format, v...)
}
