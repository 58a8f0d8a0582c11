// Package obslog builds the zap logger the engine uses for its internal
// diagnostics (attempt counts, retries, defects), the way
// gojodb/pkg/logger wires a *zap.Logger from a small Config struct. The
// engine stays silent by default: Default returns a no-op logger, and a
// caller opts in by building a logger with New and installing it with the
// root package's SetLogger.
package obslog

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger's level, encoding, and destination.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Format is "json" or "console". Defaults to "console".
	Format string
	// OutputFile is "stdout", "stderr", or a file path. Defaults to "stderr".
	OutputFile string
}

// New builds a *zap.Logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	sink, err := writeSyncer(cfg.OutputFile)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder(cfg.Format), sink, level)
	return zap.New(core).With(zap.String("component", "stm")), nil
}

func encoder(format string) zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	if strings.ToLower(format) == "json" {
		return zapcore.NewJSONEncoder(enc)
	}
	return zapcore.NewConsoleEncoder(enc)
}

func writeSyncer(output string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("obslog: open %s: %w", output, err)
		}
		return zapcore.AddSync(f), nil
	}
}

// Default returns the no-op logger the engine falls back to when nobody
// has called the root package's SetLogger. Keeping the engine silent by default
// matters more here than in a typical service: STM transactions may
// re-execute arbitrarily many times, so a Debug-level logger left on
// accidentally in production would itself become a source of contention.
func Default() *zap.Logger {
	return zap.NewNop()
}
