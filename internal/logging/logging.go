// Package logging builds the zap logger shared by every scout component.
// Output goes to a rotated JSON file because stdout carries command output
// (CLI) or the MCP protocol stream (server mode).
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// File is the log file path; rotated by lumberjack.
	File string
	// Level is one of debug, info, warn, error. Unknown values fall back to info.
	Level string
	// Stderr additionally writes human-readable logs to stderr.
	Stderr bool
}

// New creates a logger writing JSON lines to opts.File.
func New(opts Options) *zap.Logger {
	level := parseLevel(opts.Level)

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10, // Megabytes
		MaxBackups: 5,
		MaxAge:     30, // Days
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level),
	}
	if opts.Stderr {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// Nop returns a logger that discards everything. Used by tests and --help paths.
func Nop() *zap.Logger {
	return zap.NewNop()
}

func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
