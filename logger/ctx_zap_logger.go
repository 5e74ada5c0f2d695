package logger

import (
	"context"

	"go.uber.org/zap"
)

// CtxZapLogger context-aware zap logger wrapper
// The module is bound at creation time; callers only pass ctx
type CtxZapLogger struct {
	base   *zap.Logger
	module string
	config *ManagerConfig
}

// DebugCtx logs at Debug level
func (l *CtxZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.enrichFields(ctx, fields)...)
}

// Debug logs at Debug level without a context
func (l *CtxZapLogger) Debug(msg string, fields ...zap.Field) {
	l.DebugCtx(context.Background(), msg, fields...)
}

// InfoCtx logs at Info level
func (l *CtxZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Info(msg, l.enrichFields(ctx, fields)...)
}

// Info logs at Info level without a context
func (l *CtxZapLogger) Info(msg string, fields ...zap.Field) {
	l.InfoCtx(context.Background(), msg, fields...)
}

// WarnCtx logs at Warn level
func (l *CtxZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.enrichFields(ctx, fields)...)
}

// Warn logs at Warn level without a context
func (l *CtxZapLogger) Warn(msg string, fields ...zap.Field) {
	l.WarnCtx(context.Background(), msg, fields...)
}

// ErrorCtx logs at Error level
func (l *CtxZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Error(msg, l.enrichFields(ctx, fields)...)
}

// Error logs at Error level without a context
func (l *CtxZapLogger) Error(msg string, fields ...zap.Field) {
	l.ErrorCtx(context.Background(), msg, fields...)
}

// With returns a child logger with preset fields
func (l *CtxZapLogger) With(fields ...zap.Field) *CtxZapLogger {
	return &CtxZapLogger{
		base:   l.base.With(fields...),
		module: l.module,
		config: l.config,
	}
}

// GetZapLogger returns the underlying *zap.Logger (for third-party integration)
func (l *CtxZapLogger) GetZapLogger() *zap.Logger {
	return l.base
}

// enrichFields injects app_name ahead of caller fields
// The module field is already bound by Manager.GetLogger
func (l *CtxZapLogger) enrichFields(_ context.Context, fields []zap.Field) []zap.Field {
	if l.config == nil || l.config.AppName == "" {
		return fields
	}
	enriched := make([]zap.Field, 0, len(fields)+1)
	enriched = append(enriched, zap.String("app_name", l.config.AppName))
	return append(enriched, fields...)
}
