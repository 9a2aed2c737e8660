package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/vendas-bot-go/internal/chat/infra"
	"go.uber.org/zap"
)

type contextKey string

const channelKey contextKey = "channel"

// TokenValidator validates the bearer token sent by the transport.
type TokenValidator interface {
	Validate(tokenString string) (*infra.WebhookClaims, error)
}

// WebhookAuthMiddleware validates Bearer tokens on inbound webhooks and
// injects the sending channel into context.
func WebhookAuthMiddleware(validator TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("webhook auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("webhook auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Formato de token inválido")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				logger.Warn("webhook auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), channelKey, claims.Channel)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ChannelFromContext extracts the authenticated channel from context.
func ChannelFromContext(ctx context.Context) string {
	v, _ := ctx.Value(channelKey).(string)
	return v
}
