// Package logging builds the daemon's structured logger. The daemon runs with
// its standard streams on the null device, so everything it reports goes to a
// size-rotated JSON file.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/whuanle/easytouch/internal/config"
	"github.com/whuanle/easytouch/internal/paths"
)

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
	defaultMaxAgeDays = 14
)

// New returns a logger writing JSON lines to the configured log file. The
// returned closer flushes and releases the file.
func New(cfg config.LogConfig) (*zap.Logger, io.Closer, error) {
	file := cfg.File
	if file == "" {
		file = paths.LogFile()
	}
	if err := paths.EnsureDir(filepath.Dir(file)); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    orDefault(cfg.MaxSizeMB, defaultMaxSizeMB),
		MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
		MaxAge:     orDefault(cfg.MaxAgeDays, defaultMaxAgeDays),
		Compress:   cfg.Compress,
	}

	logger := NewWithWriter(cfg.Level, zapcore.AddSync(rotator))
	return logger, closerFunc(func() error {
		_ = logger.Sync()
		return rotator.Close()
	}), nil
}

// NewWithWriter builds the daemon logger over an arbitrary sink.
func NewWithWriter(level string, sink zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, parseLevel(level))
	return zap.New(core, zap.AddStacktrace(zap.ErrorLevel)).
		Named("easytouch").
		With(zap.Int("pid", os.Getpid()))
}

func parseLevel(raw string) zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil || raw == "" {
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
