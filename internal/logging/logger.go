package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/linaje/internal/config"
)

// FileName is the log file created under .linaje/logs.
const FileName = "linaje.log"

// Options tunes the logger built by New.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// JSON switches the file encoder from console to JSON lines.
	JSON bool
	// Console mirrors warnings and errors to stderr.
	Console bool
}

// New builds a logger that appends to .linaje/logs/linaje.log so users can
// inspect failures after the command exits.
func New(projectDir string, opts Options) (*zap.Logger, error) {
	logDir := filepath.Join(projectDir, config.LinajeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	return build(filepath.Join(logDir, FileName), opts)
}

// FromConfig builds the project logger from the logging section.
func FromConfig(cfg *config.Config, console bool) (*zap.Logger, error) {
	if cfg == nil {
		return zap.NewNop(), nil
	}
	return New(cfg.ProjectDir, Options{
		Level:   cfg.Project.Logging.Level,
		JSON:    cfg.Project.Logging.JSON,
		Console: console,
	})
}

func build(path string, opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	if opts.JSON {
		zc.Encoding = "json"
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}
	zc.Sampling = nil
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	if !opts.Console {
		return logger, nil
	}
	stderr := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zap.WarnLevel,
	)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, stderr)
	})), nil
}

// ParseLevel maps a config level name onto a zap level.
func ParseLevel(value string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", value)
	}
}
