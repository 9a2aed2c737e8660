package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
	maindomain "github.com/boddenberg/vendas-bot-go/internal/domain"
	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// tracer é o tracer OpenTelemetry para o módulo chat/infra.
var tracer = otel.Tracer("chat/infra")

var (
	_ port.ChatAgentCaller = (*ChatAgentClient)(nil)
	_ port.TextGenerator   = (*ChatAgentClient)(nil)
	_ port.TextGenerator   = (*GenAIGenerator)(nil)
	_ port.Embedder        = (*OllamaEmbedder)(nil)
	_ port.Embedder        = (*GenAIEmbedder)(nil)
	_ port.VectorCache     = (*FileVectorCache)(nil)
	_ port.VectorCache     = (*SQLiteVectorCache)(nil)
	_ port.StateRepository = (*RedisStateRepository)(nil)
	_ port.DealRepository  = (*DynamoDealRepository)(nil)
	_ port.Sender          = (*WebhookSender)(nil)
)

// ============================================================
// ChatAgentClient: cliente HTTP do agent de linguagem
// ============================================================
//
// Chama POST /v1/chat com o contrato simples do agent:
//
//	Request:  {"query": "...", "customer_id": "5511...", "context": "GREET"}
//	Response: {"answer": "...", "tokens_used": 1250, ...}
//
// O motor usa este client só para reescrever as respostas estilísticas
// (FALLBACK, ANSWER_QUESTION, CONTINUE_FLOW). Respostas transacionais
// nunca passam por aqui.

type ChatAgentClient struct {
	httpClient *http.Client
	baseURL    string // ex: http://localhost:8090
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewChatAgentClient cria o client. O baseURL não leva /v1/chat no final.
func NewChatAgentClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ChatAgentClient {
	return &ChatAgentClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

// SendChat envia uma mensagem ao agent e devolve a resposta.
//
// Fluxo:
//  1. Serializa o ChatAgentRequest como JSON
//  2. Faz POST para {baseURL}/v1/chat
//  3. Decodifica o ChatAgentResponse
//
// Tudo roda dentro do circuit breaker + retry com backoff.
func (c *ChatAgentClient) SendChat(ctx context.Context, req *domain.ChatAgentRequest) (*domain.ChatAgentResponse, error) {
	ctx, span := tracer.Start(ctx, "ChatAgentClient.SendChat")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", req.CustomerID))

	result, err := c.cb.Execute(func() (any, error) {
		var agentResp domain.ChatAgentResponse
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(req)
			if err != nil {
				return fmt.Errorf("marshal chat request: %w", err)
			}

			url := fmt.Sprintf("%s/v1/chat", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("create http request: %w", err)
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return fmt.Errorf("http call to agent: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("agent /v1/chat returned status %d", resp.StatusCode)
			}

			agentResp = domain.ChatAgentResponse{}
			return json.NewDecoder(resp.Body).Decode(&agentResp)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &agentResp, nil
	})
	if err != nil {
		return nil, resilience.ExternalError("chat-agent", err)
	}

	return result.(*domain.ChatAgentResponse), nil
}

// Generate implementa port.TextGenerator em cima do /v1/chat.
// O template da ação e o resumo da conversa viajam dentro do prompt.
func (c *ChatAgentClient) Generate(ctx context.Context, req *domain.GenerationRequest) (string, error) {
	resp, err := c.SendChat(ctx, &domain.ChatAgentRequest{
		Query:      BuildPrompt(req),
		CustomerID: req.UserID,
		Context:    string(req.Action),
		History:    req.History,
	})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(resp.Answer)
	if answer == "" {
		return "", &maindomain.ErrExternalService{Service: "chat-agent", Err: fmt.Errorf("empty answer")}
	}
	return answer, nil
}
