// Package logger builds the zap logger shared by every component.
package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and an optional log directory.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
	// Quiet drops the stderr sink, for full-screen terminal UIs.
	Quiet bool `yaml:"-"`
}

// New builds a logger. Format "console" gives the coloured development
// encoder, anything else JSON. When Dir is set, output also goes to Dir/courserag.log.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.Encoding = "console"
	} else {
		zc = zap.NewProductionConfig()
		zc.Encoding = "json"
	}
	zc.Level = level
	zc.OutputPaths = nil
	if !cfg.Quiet {
		zc.OutputPaths = append(zc.OutputPaths, "stderr")
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, err
		}
		zc.OutputPaths = append(zc.OutputPaths, filepath.Join(cfg.Dir, "courserag.log"))
	}
	if len(zc.OutputPaths) == 0 {
		return zap.NewNop(), nil
	}
	return zc.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
