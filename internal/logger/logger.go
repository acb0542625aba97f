package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Zlog is the process-wide logger. It is a no-op logger until Init runs,
// so packages can log from tests without setup.
var Zlog = zap.NewNop()

// Init replaces Zlog. Production uses the JSON encoder, everything else the
// console encoder.
func Init(level, environment string) error {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Zlog = l
	return nil
}

// Sync flushes buffered entries. Safe to defer from main.
func Sync() {
	_ = Zlog.Sync()
}
