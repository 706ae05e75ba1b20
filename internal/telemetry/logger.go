// Package telemetry wires the zap-backed structured logger and the
// prometheus counters that instrument routing and adapter activity.
// Grounded on lookatitude-beluga-ai's zap.Logger wrapping idiom,
// adapted to satisfy this module's own core.Logger interface instead
// of that repo's own logging port.
package telemetry

import (
	"go.uber.org/zap"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// ZapLogger adapts a *zap.SugaredLogger to core.Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a production zap logger (JSON, ISO8601
// timestamps) wrapped to satisfy core.Logger. Pass development=true
// for a human-readable console encoder during local runs.
func NewZapLogger(development bool) (*ZapLogger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: logger.Sugar()}, nil
}

func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// Sync flushes any buffered log entries; call before process exit.
func (z *ZapLogger) Sync() error { return z.sugar.Sync() }

var _ core.Logger = (*ZapLogger)(nil)
