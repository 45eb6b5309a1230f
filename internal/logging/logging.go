// Package logging builds the process logger: zap underneath, exposed as a
// logr.Logger so the same sink serves the CLI, the provisioning observer and
// controller-runtime.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
)

// Options selects the log format and verbosity.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
}

// New creates a logr.Logger backed by zap.
func New(opts Options) (logr.Logger, func(), error) {
	zl, err := newZap(opts)
	if err != nil {
		return logr.Discard(), func() {}, err
	}

	log := zapr.NewLogger(zl)
	ctrllog.SetLogger(log)

	return log, func() { _ = zl.Sync() }, nil
}

func newZap(opts Options) (*zap.Logger, error) {
	levelName := opts.Level
	if levelName == "" {
		levelName = "info"
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	var zapConfig zap.Config
	switch opts.Format {
	case "json":
		zapConfig = zap.NewProductionConfig()
	case "", "console":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}
