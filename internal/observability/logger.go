// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimeLayout is the timestamp prefix of every log line.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// globalLogger stores the global logger instance safely across goroutines.
	globalLogger atomic.Pointer[zap.Logger]
	// fileCloser releases the run log file on Close.
	fileCloser atomic.Pointer[io.Closer]
	once       sync.Once
)

// Initialize sets up the global logger as a tee of the console writer and,
// when fileWriter is non-nil, the run log file. Both receive the same lines.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer, fileWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(getEncoder(cfg.Format), consoleWriter, level)}
		if fileWriter != nil {
			// The file is always plain text so it reads well as an email attachment.
			cores = append(cores, zapcore.NewCore(getEncoder("console"), fileWriter, level))
		}

		options := []zap.Option{}
		if cfg.AddSource {
			options = append(options, zap.AddCaller())
		}

		logger := zap.New(zapcore.NewTee(cores...), options...)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

// InitializeRunLogger logs to stdout and to the run-scoped file at logFile.
func InitializeRunLogger(cfg config.LoggerConfig, logFile string) {
	sink := NewFileSink(cfg, logFile)
	var closer io.Closer = sink
	fileCloser.Store(&closer)
	Initialize(cfg, zapcore.Lock(os.Stdout), zapcore.AddSync(sink))
}

// NewFileSink returns a lumberjack writer for a single run's log file.
// MaxSize is set well above what a run writes, so the file is never rotated.
func NewFileSink(cfg config.LoggerConfig, logFile string) *lumberjack.Logger {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 512
	}
	return &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxSize,
		MaxBackups: 0,
		LocalTime:  false,
		Compress:   false,
	}
}

// ResetForTest resets the sync.Once and clears the global logger.
// This function should ONLY be used in tests to ensure isolation.
func ResetForTest() {
	globalLogger.Store(nil)
	fileCloser.Store(nil)
	once = sync.Once{}
}

// encodeTime renders the line prefix, e.g. [2024-03-02T06:00:00.000Z].
func encodeTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + t.UTC().Format(TimeLayout) + "]")
}

// getEncoder returns the line encoder for the given format. Levels are not
// rendered: a line is a timestamp, the message, then any structured fields.
func getEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       encodeTime,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}

	if format == "json" {
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeLayout)
		encoderConfig.LevelKey = "level"
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// GetLogger returns the initialized global logger instance.
func GetLogger() *zap.Logger {
	logger := globalLogger.Load()
	if logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		l.Warn("Global logger requested before initialization; using fallback.")
		return l.Named("fallback")
	}
	return logger
}

// Sync flushes any buffered log entries. Applications should call this before exiting.
func Sync() {
	logger := globalLogger.Load()
	if logger != nil {
		if err := logger.Sync(); err != nil {
			// Writing to a closed or non-syncable stdout is not worth reporting.
			errMsg := err.Error()
			if !strings.Contains(errMsg, "sync /dev/stdout") &&
				!strings.Contains(errMsg, "invalid argument") &&
				!strings.Contains(errMsg, "operation not supported") {
				fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
			}
		}
	}
}

// Close flushes the logger and releases the run log file.
func Close() {
	Sync()
	if c := fileCloser.Swap(nil); c != nil {
		_ = (*c).Close()
	}
}
