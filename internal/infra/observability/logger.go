package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates the structured zap logger of service.
// debug → colorized console; otherwise compact JSON with a "service" field.
func NewLogger(level, service string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// No sampling: every line of a conversation turn is kept.
	cfg.Sampling = nil

	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}
	if service != "" {
		cfg.InitialFields = map[string]any{"service": service}
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return logger
}

// ============================================================
// Request-scoped fields
// ============================================================

// requestFields is filled by the chat handlers once the body is decoded,
// and read back by ZapLoggerMiddleware after the handler returns.
type requestFields struct {
	mu        sync.Mutex
	userID    string
	messageID string
}

type requestFieldsKey struct{}

// SetRequestUser records the conversation user and message id of the
// current request. Empty values keep what was set before. Outside
// ZapLoggerMiddleware it is a no-op.
func SetRequestUser(ctx context.Context, userID, messageID string) {
	rf, ok := ctx.Value(requestFieldsKey{}).(*requestFields)
	if !ok {
		return
	}
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if userID != "" {
		rf.userID = userID
	}
	if messageID != "" {
		rf.messageID = messageID
	}
}

// RequestLogger returns base enriched with the request id and whatever
// SetRequestUser recorded so far.
func RequestLogger(ctx context.Context, base *zap.Logger) *zap.Logger {
	fields := requestLogFields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func requestLogFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := middleware.GetReqID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	rf, ok := ctx.Value(requestFieldsKey{}).(*requestFields)
	if !ok {
		return fields
	}
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.userID != "" {
		fields = append(fields, zap.String("user_id", rf.userID))
	}
	if rf.messageID != "" {
		fields = append(fields, zap.String("message_id", rf.messageID))
	}
	return fields
}

// ============================================================
// Middleware
// ============================================================

// quietPaths are probe and scrape endpoints, logged at Debug on success.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// ZapLoggerMiddleware logs one line per HTTP request.
// Warn for 4xx, Error for 5xx, Info otherwise (Debug for probes).
// Lines carry user_id and message_id when the handler recorded them.
func ZapLoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := context.WithValue(r.Context(), requestFieldsKey{}, &requestFields{})
			r = r.WithContext(ctx)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.String("remote_addr", r.RemoteAddr),
				}
				fields = append(fields, requestLogFields(ctx)...)

				switch {
				case status >= 500:
					logger.Error("http request", fields...)
				case status >= 400:
					logger.Warn("http request", fields...)
				case quietPaths[r.URL.Path]:
					logger.Debug("http request", fields...)
				default:
					logger.Info("http request", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// TracingMiddleware extracts trace context from incoming requests.
func TracingMiddleware(next http.Handler) http.Handler {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		propagator = propagation.TraceContext{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
