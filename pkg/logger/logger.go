// Package logger builds the zap logger shared by the idxtree binaries.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all the configuration for the logger.
type Config struct {
	// Level sets the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
	// OutputFile is a path, or "stdout"/"stderr".
	OutputFile string `yaml:"output_file"`
	// Service is attached to every entry as the "service" field.
	Service string `yaml:"service"`
	// Sampling caps repeated entries to the first 100 per second per
	// message, then every 100th. Split and insert debug logs repeat a lot
	// under load.
	Sampling bool `yaml:"sampling"`
}

// New creates a zap.Logger from the configuration. An unknown level falls
// back to info.
func New(config Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	out, err := openOutput(config.OutputFile)
	if err != nil {
		return nil, err
	}

	var core zapcore.Core = zapcore.NewCore(newEncoder(config.Format), out, zap.NewAtomicLevelAt(level))
	if config.Sampling {
		core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
	}

	service := config.Service
	if service == "" {
		service = "idxtree"
	}
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))).
		With(zap.String("service", service)), nil
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	switch strings.ToLower(format) {
	case "console":
		return zapcore.NewConsoleEncoder(cfg)
	default:
		return zapcore.NewJSONEncoder(cfg)
	}
}

func openOutput(path string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return zapcore.Lock(file), nil
}
