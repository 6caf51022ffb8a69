// Package logger builds the zap logger shared by every attackdb component.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every entry as the "service" field.
const ServiceName = "attackdb"

// Config selects level, encoding and destination of log entries.
type Config struct {
	// Level is a zap level name; anything unparsable means info.
	Level string `yaml:"level"`
	// Format is "console" for human-readable lines, anything else is JSON.
	Format string `yaml:"format"`
	// OutputFile is a path, or "stdout" / "stderr". Empty means stderr,
	// since stdout carries command output.
	OutputFile string `yaml:"output_file"`
}

// New builds a logger from config. fields, such as a run id, are attached
// to every entry after the service name.
func New(config Config, fields ...zap.Field) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(config.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	sink, err := openSink(config.OutputFile)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(newEncoder(config.Format), sink, level)
	base := append([]zap.Field{zap.String("service", ServiceName)}, fields...)
	return zap.New(core, zap.AddCaller(), zap.Fields(base...)), nil
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if strings.EqualFold(format, "console") {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func openSink(output string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
	}
	return zapcore.AddSync(f), nil
}
