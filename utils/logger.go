package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cppla/aiblog/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global structured logger. It discards everything until InitLogger runs.
	Logger = zap.NewNop()
	// Sugar is a sugared logger for convenience
	Sugar = Logger.Sugar()
)

// rotation describes a lumberjack file sink.
type rotation struct {
	path       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	compress   bool
}

func appRotation(cfg *config.AppConfig, path string) rotation {
	return rotation{
		path:       path,
		maxSizeMB:  cfg.LogMaxSizeMB,
		maxBackups: cfg.LogMaxBackups,
		maxAgeDays: cfg.LogMaxAgeDays,
		compress:   cfg.LogCompress,
	}
}

// InitLogger builds the global logger: JSON to stdout, plus a rolling file
// when cfg.LogPath is set. Level "silent" keeps the no-op logger.
func InitLogger(cfg *config.AppConfig) error {
	level, silent := parseLevel(cfg.LogLevel)
	if silent {
		Logger = zap.NewNop()
		Sugar = Logger.Sugar()
		return nil
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(os.Stdout), level),
	}
	if cfg.LogPath != "" {
		w, err := rollingWriter(appRotation(cfg, cfg.LogPath))
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), w, level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if !cfg.IsProd() {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if level.Level() == zapcore.DebugLevel {
		opts = append(opts, zap.Development())
	}
	Logger = zap.New(zapcore.NewTee(cores...), opts...)
	Sugar = Logger.Sugar()
	return nil
}

// NewRollingFileLogger builds a file-only logger, used for the HTTP access log.
func NewRollingFileLogger(path, level string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) (*zap.Logger, error) {
	if path == "" {
		return nil, errors.New("log path is empty")
	}
	lvl, silent := parseLevel(level)
	if silent {
		return zap.NewNop(), nil
	}
	w, err := rollingWriter(rotation{path: path, maxSizeMB: maxSizeMB, maxBackups: maxBackups, maxAgeDays: maxAgeDays, compress: compress})
	if err != nil {
		return nil, err
	}
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), w, lvl)), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func rollingWriter(r rotation) (zapcore.WriteSyncer, error) {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   r.path,
		MaxSize:    orDefault(r.maxSizeMB, 100), // megabytes
		MaxBackups: orDefault(r.maxBackups, 3),
		MaxAge:     orDefault(r.maxAgeDays, 7), // days
		Compress:   r.compress,
	}), nil
}

// parseLevel maps the configured level name; unknown names mean info.
func parseLevel(s string) (zap.AtomicLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "silent" {
		return zap.NewAtomicLevel(), true
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil || s == "" {
		lvl = zapcore.InfoLevel
	}
	return zap.NewAtomicLevelAt(lvl), false
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// logDuration is the field name used for elapsed times.
func logDuration(d time.Duration) zap.Field {
	return zap.Duration("elapsed", d)
}
