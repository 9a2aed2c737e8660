package infra

import (
	"fmt"
	"time"

	maindomain "github.com/boddenberg/vendas-bot-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================
// Tokens HS256 trocados com o adaptador de transporte
// ============================================================
//
// O transporte (gateway de WhatsApp) e o bot compartilham um segredo.
// Na entrada o transporte assina o POST /v1/webhook/inbound; na saída o
// WebhookSender assina cada mensagem. Os dois lados usam o mesmo formato.

const webhookIssuer = "vendas-bot"

// WebhookClaims são as claims dos tokens de webhook.
type WebhookClaims struct {
	Channel string `json:"channel"`
	jwt.RegisteredClaims
}

// WebhookTokens assina e valida tokens com um segredo compartilhado.
type WebhookTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewWebhookTokens cria o assinador. ttl <= 0 usa 5 minutos.
func NewWebhookTokens(secret string, ttl time.Duration) *WebhookTokens {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &WebhookTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign emite um token para o canal informado.
func (w *WebhookTokens) Sign(channel string) (string, error) {
	now := w.now()
	claims := WebhookClaims{
		Channel: channel,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(w.ttl)),
			Issuer:    webhookIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(w.secret)
}

// Validate confere assinatura, algoritmo e expiração.
func (w *WebhookTokens) Validate(tokenString string) (*WebhookClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WebhookClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return w.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(w.now))
	if err != nil {
		return nil, &maindomain.ErrUnauthorized{Message: "Token de webhook inválido ou expirado"}
	}

	claims, ok := token.Claims.(*WebhookClaims)
	if !ok || !token.Valid {
		return nil, &maindomain.ErrUnauthorized{Message: "Token de webhook inválido"}
	}
	return claims, nil
}
