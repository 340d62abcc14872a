package trace

import (
	"go.uber.org/zap"
)

type zapTracer struct {
	log *zap.Logger
}

// NewZap returns a Tracer that writes structured log entries. Routine events
// are logged at debug level; failures at warn.
func NewZap(log *zap.Logger) Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	return zapTracer{log: log.Named("bundler")}
}

func (z zapTracer) Resolve(e ResolveEvent) {
	fields := []zap.Field{
		zap.String("specifier", e.Specifier),
		zap.String("importer", e.Importer),
		zap.String("kind", e.Kind),
		zap.String("path", e.Path),
		zap.String("namespace", e.Namespace),
	}
	if e.Err != nil {
		z.log.Warn("resolve failed", append(fields, zap.Error(e.Err))...)
		return
	}
	z.log.Debug("resolve", fields...)
}

func (z zapTracer) Load(e LoadEvent) {
	fields := []zap.Field{
		zap.String("path", e.Path),
		zap.String("namespace", e.Namespace),
		zap.String("loader", e.Loader),
		zap.Int("bytes", e.Bytes),
		zap.Duration("duration", e.Duration),
	}
	if e.Err != nil {
		z.log.Warn("load failed", append(fields, zap.Error(e.Err))...)
		return
	}
	z.log.Debug("load", fields...)
}

func (z zapTracer) Fetch(e FetchEvent) {
	fields := []zap.Field{
		zap.String("url", e.URL),
		zap.Int("attempt", e.Attempt),
		zap.Int("max_attempts", e.MaxAttempts),
		zap.Int("status", e.Status),
		zap.Bool("cached", e.Cached),
		zap.Duration("duration", e.Duration),
	}
	if e.Err != nil {
		z.log.Warn("fetch attempt failed", append(fields, zap.Error(e.Err))...)
		return
	}
	z.log.Debug("fetch", fields...)
}

func (z zapTracer) End(e EndEvent) {
	fields := []zap.Field{
		zap.Int("outputs", e.Outputs),
		zap.Int("errors", e.Errors),
		zap.Int("warnings", e.Warnings),
		zap.Duration("duration", e.Duration),
	}
	if e.Err != nil {
		z.log.Warn("build failed", append(fields, zap.Error(e.Err))...)
		return
	}
	z.log.Info("build finished", fields...)
}
