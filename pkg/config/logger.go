package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Level   string
	Env     string
	Service string
}

// LoggerConfig derives logger settings for service from the loaded config.
func (c *Config) LoggerConfig(service string) LoggerConfig {
	return LoggerConfig{
		Level:   c.LogLevel,
		Env:     c.Env,
		Service: service,
	}
}

// NewLogger builds JSON output in prod and console output elsewhere. Every entry carries the
// service and env fields.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == "prod" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		// dev config dumps stacks on Warn; domain rejections are logged at Warn
		zapCfg.Development = false
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	fields := map[string]interface{}{"env": cfg.Env}
	if cfg.Service != "" {
		fields["service"] = cfg.Service
	}
	zapCfg.InitialFields = fields

	return zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}
