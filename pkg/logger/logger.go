// Package logger builds the logr.Logger used across dapbridge. Console output
// goes to stderr through zap with a human readable encoder; verbosity is
// adjustable at runtime through an atomic level bound to a --verbosity flag.
package logger

import (
	"os"
	"runtime"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	logr.Logger
	name        string
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a named logger writing console-formatted output to stderr.
func New(name string) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if runtime.GOOS == "windows" {
		encoderConfig.LineEnding = "\r\n"
	}
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	atomicLevel := zap.NewAtomicLevel()
	core := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), atomicLevel)
	zapLogger := zap.New(core)

	return &Logger{
		Logger:      zapr.NewLogger(zapLogger).WithName(name),
		name:        name,
		atomicLevel: atomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

// SetLevel changes the minimum level emitted to the console.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

// Flush writes out any buffered log entries.
func (l *Logger) Flush() {
	l.flush()
}

// Discard returns a logger that drops everything. Used by tests and as the
// default when a component is constructed without an explicit logger.
func Discard() logr.Logger {
	return logr.Discard()
}
