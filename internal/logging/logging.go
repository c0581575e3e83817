// Package logging builds the process logger: console output for operators,
// plus an optional JSON file sink with rotation for long-running commands
// like the ingest server.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects output format, verbosity, and the optional rotating file
// sink. The zero value is a console logger at info.
type Config struct {
	// Level is a zap level name: debug, info, warn, error. Unrecognized
	// values fall back to info.
	Level string

	// Format is "console" or "json". Console is the default.
	Format string

	// File, when set, adds a JSON sink with rotation alongside the console.
	File       string
	MaxSizeMB  int  // per-file cap before rotation, default 50
	MaxBackups int  // rotated files kept, default 5
	MaxAgeDays int  // days before rotated files are deleted, default 30
	Compress   bool // gzip rotated files

	// AddCaller annotates entries with file:line.
	AddCaller bool
}

// New builds the root logger. It never fails: a bad level downgrades to
// info and a zero config yields a console info logger on stderr.
func New(cfg Config) *zap.Logger {
	return NewWith(cfg, zapcore.Lock(os.Stderr))
}

// NewWith is New with an explicit console sink, for tests.
func NewWith(cfg Config, console zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(cfg.Format), console, level),
	}
	if cfg.File != "" {
		// lumberjack handles rotation and serializes concurrent writes.
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 30),
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(jsonEncoder(), fileWriter, level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), opts...).Named("vigil")
}

// Sync flushes buffered entries, swallowing the benign errors stdout and
// stderr report on some platforms.
func Sync(logger *zap.Logger) {
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil {
		msg := err.Error()
		if !strings.Contains(msg, "sync /dev/stdout") &&
			!strings.Contains(msg, "sync /dev/stderr") &&
			!strings.Contains(msg, "invalid argument") &&
			!strings.Contains(msg, "operation not supported") {
			fmt.Fprintln(os.Stderr, "failed to sync logger:", err)
		}
	}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	return cfg
}

func consoleEncoder(format string) zapcore.Encoder {
	if format == "json" {
		return jsonEncoder()
	}
	cfg := encoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// jsonEncoder is the file and machine format. Log shippers parse it, so the
// layout stays stable.
func jsonEncoder() zapcore.Encoder {
	cfg := encoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
