package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// WebhookSender: entrega das respostas ao transporte
// ============================================================
//
//	POST {url}
//	Authorization: Bearer <HS256>   (quando há segredo)
//	{"userId": "5511...", "text": "...", "sentAt": "..."}
//
// 5xx e falhas de rede são repetidas com backoff; 4xx não. Não há
// garantia de entrega exatamente uma vez: um retry após timeout pode
// duplicar a mensagem do lado do transporte.

type outboundPayload struct {
	UserID string    `json:"userId"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// WebhookSender implementa port.Sender.
type WebhookSender struct {
	httpClient *http.Client
	url        string
	tokens     *WebhookTokens
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewWebhookSender cria o sender. tokens nil envia sem Authorization.
func NewWebhookSender(httpClient *http.Client, url string, tokens *WebhookTokens, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *WebhookSender {
	return &WebhookSender{
		httpClient: httpClient,
		url:        url,
		tokens:     tokens,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// Send entrega a mensagem.
func (s *WebhookSender) Send(ctx context.Context, msg domain.OutboundMessage) error {
	ctx, span := tracer.Start(ctx, "WebhookSender.Send")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", msg.UserID))

	body, err := json.Marshal(outboundPayload{UserID: msg.UserID, Text: msg.Text, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	_, err = s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, func() error {
			return s.post(ctx, body)
		})
	})
	if err != nil {
		return resilience.ExternalError("webhook", err)
	}

	s.logger.Debug("outbound message delivered", zap.String("user_id", msg.UserID))
	return nil
}

func (s *WebhookSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("create http request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.tokens != nil {
		token, err := s.tokens.Sign("outbound")
		if err != nil {
			return resilience.Permanent(fmt.Errorf("sign webhook token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http call to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(raw))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return resilience.Permanent(statusErr)
	}
	return statusErr
}
