// Package logger builds the zap logger used by the sync jobs.
//
// Console or json output goes to stderr. When a file is configured, json
// entries are also written to it through lumberjack rotation.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a new zap logger based on the configuration.
func New(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var config zap.Config
	if cfg.Level == "debug" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console", "":
		consoleConfig := config.EncoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(consoleConfig)
	case "json":
		encoder = zapcore.NewJSONEncoder(config.EncoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if cfg.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(config.EncoderConfig),
			zapcore.AddSync(newRotator(cfg)),
			level,
		))
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Level == "debug" {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func newRotator(cfg *Config) *lumberjack.Logger {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
}

// WithTab returns a logger with the tab field set. Reconciler runs add
// their run_id on top of it.
func WithTab(l *zap.Logger, tab string) *zap.Logger {
	if tab == "" {
		return l
	}
	return l.With(zap.String("tab", tab))
}
