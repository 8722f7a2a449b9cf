package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Production gets the JSON encoder,
// anything else gets the colored development config.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProductionConfig().Build()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}
