package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples Debug through Warn entries. Errors bypass the
// sampler so failures are never dropped.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	failures := levelCore{Core: core, allow: func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }}
	rest := levelCore{Core: core, allow: func(l zapcore.Level) bool { return l < zapcore.ErrorLevel }}

	return zapcore.NewTee(
		failures,
		zapcore.NewSamplerWithOptions(rest, cfg.Tick.Duration(), cfg.Initial, cfg.Thereafter),
	)
}

// levelCore passes only the levels allow accepts to the wrapped core.
type levelCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c levelCore) Enabled(l zapcore.Level) bool {
	return c.allow(l) && c.Core.Enabled(l)
}

func (c levelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c levelCore) With(fields []zapcore.Field) zapcore.Core {
	return levelCore{Core: c.Core.With(fields), allow: c.allow}
}
