package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. CHAMBERODDS_ENV=dev selects the console
// encoder at debug level; anything else gets production JSON.
func New(verbose bool) *zap.SugaredLogger {
	var (
		logger *zap.Logger
		err    error
	)
	opts := []zap.Option{
		zap.AddStacktrace(zap.ErrorLevel),
	}

	if strings.ToLower(os.Getenv("CHAMBERODDS_ENV")) == "dev" {
		logger, err = zap.NewDevelopment(opts...)
	} else {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		logger, err = cfg.Build(opts...)
	}

	if err != nil {
		panic(fmt.Errorf("failed to initialize logger: %w", err))
	}

	return logger.Sugar()
}

// Install replaces zap's globals so packages can log through zap.S().
// The returned func flushes and restores the previous globals.
func Install(logger *zap.SugaredLogger) func() {
	restore := zap.ReplaceGlobals(logger.Desugar())
	return func() {
		_ = logger.Sync()
		restore()
	}
}
