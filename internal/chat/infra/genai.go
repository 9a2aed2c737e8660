package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	maindomain "github.com/boddenberg/vendas-bot-go/internal/domain"
	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

// ============================================================
// Google GenAI: embeddings e geração de texto
// ============================================================

const (
	defaultGenAIEmbedModel = "gemini-embedding-001"
	defaultGenAITextModel  = "gemini-2.0-flash"
)

// NewGenAIClient cria o client compartilhado entre embedder e gerador.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, &maindomain.ErrValidation{Field: "GENAI_API_KEY", Message: "required"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// GenAIEmbedder gera embeddings com a API Gemini (port.Embedder).
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	cb     *gobreaker.CircuitBreaker
}

// NewGenAIEmbedder cria o embedder. model vazio usa gemini-embedding-001.
func NewGenAIEmbedder(client *genai.Client, model string, cb *gobreaker.CircuitBreaker) *GenAIEmbedder {
	if model == "" {
		model = defaultGenAIEmbedModel
	}
	return &GenAIEmbedder{client: client, model: model, cb: cb}
}

// Name identifica o modelo no hash do cache de vetores.
func (e *GenAIEmbedder) Name() string { return "genai:" + e.model }

// Embed gera o vetor de um texto.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch gera os vetores de vários textos numa chamada só.
func (e *GenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "GenAIEmbedder.EmbedBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(texts)))

	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	result, err := e.cb.Execute(func() (any, error) {
		res, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		})
		if err != nil {
			return nil, err
		}
		if len(res.Embeddings) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
		}
		out := make([][]float32, len(res.Embeddings))
		for i, emb := range res.Embeddings {
			out[i] = emb.Values
		}
		return out, nil
	})
	if err != nil {
		return nil, resilience.ExternalError("genai/embed", err)
	}
	return result.([][]float32), nil
}

// GenAIGenerator reescreve respostas estilísticas com a API Gemini
// (port.TextGenerator).
type GenAIGenerator struct {
	client *genai.Client
	model  string
	cb     *gobreaker.CircuitBreaker
}

// NewGenAIGenerator cria o gerador. model vazio usa gemini-2.0-flash.
func NewGenAIGenerator(client *genai.Client, model string, cb *gobreaker.CircuitBreaker) *GenAIGenerator {
	if model == "" {
		model = defaultGenAITextModel
	}
	return &GenAIGenerator{client: client, model: model, cb: cb}
}

// Generate devolve o texto gerado para a ação.
func (g *GenAIGenerator) Generate(ctx context.Context, req *domain.GenerationRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "GenAIGenerator.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("action", string(req.Action)),
		attribute.Int("attempt", req.Attempt),
	)

	result, err := g.cb.Execute(func() (any, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(req)), nil)
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return nil, errors.New("empty completion")
		}
		return text, nil
	})
	if err != nil {
		return "", resilience.ExternalError("genai/generate", err)
	}
	return result.(string), nil
}
