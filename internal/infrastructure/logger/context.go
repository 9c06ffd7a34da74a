package logger

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	sessionIDKey contextKey = "session_id"
	adminKey     contextKey = "admin_usuario"
	requestIDKey contextKey = "request_id"
)

// WithContext returns a new context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithSessionID tags ctx and its logger with the transport session id.
// A new session id is minted on every successful connection.
func WithSessionID(ctx context.Context, logger *zap.Logger, sessionID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	enriched := logger.With(zap.String("session_id", sessionID))
	return WithContext(ctx, enriched), enriched
}

// WithAdmin tags ctx and its logger with the administrator identity
func WithAdmin(ctx context.Context, logger *zap.Logger, usuario string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, adminKey, usuario)
	enriched := logger.With(zap.String("admin_usuario", usuario))
	return WithContext(ctx, enriched), enriched
}

// WithRequestID tags ctx with a local API request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetSessionID returns the session id stored in ctx
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// GetAdmin returns the administrator stored in ctx
func GetAdmin(ctx context.Context) string {
	v, _ := ctx.Value(adminKey).(string)
	return v
}

// GetRequestID returns the request id stored in ctx
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// L returns base tagged with the session and request ids carried by ctx.
//
//	logger.L(ctx, d.logger).Info("decision sent", zap.Int64("id", id))
func L(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	var fields []zap.Field
	if sessionID := GetSessionID(ctx); sessionID != "" {
		fields = append(fields, zap.String("session_id", sessionID))
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
