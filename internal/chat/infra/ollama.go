package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ============================================================
// OllamaEmbedder: servidor local de embeddings
// ============================================================
//
//	POST {endpoint}/api/embeddings  {"model": "...", "prompt": "..."}
//	200 {"embedding": [0.1, ...]}

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
	ollamaBatchWorkers = 4
)

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaEmbedder implementa port.Embedder contra a API do Ollama.
type OllamaEmbedder struct {
	httpClient *http.Client
	endpoint   string
	model      string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewOllamaEmbedder cria o embedder. Valores vazios usam os defaults locais.
func NewOllamaEmbedder(httpClient *http.Client, endpoint, model string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *OllamaEmbedder {
	if endpoint == "" {
		endpoint = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaEmbedder{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		cb:         cb,
		cfg:        cfg,
	}
}

// Name identifica o modelo no hash do cache de vetores.
func (e *OllamaEmbedder) Name() string {
	return fmt.Sprintf("ollama:%s", e.model)
}

// Embed gera o vetor de um texto.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "OllamaEmbedder.Embed")
	defer span.End()
	span.SetAttributes(attribute.String("model", e.model))

	result, err := e.cb.Execute(func() (any, error) {
		var vec []float32
		innerErr := resilience.RetryWithBackoff(ctx, e.cfg, func() error {
			v, err := e.call(ctx, text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return vec, nil
	})
	if err != nil {
		return nil, resilience.ExternalError("ollama", err)
	}
	return result.([]float32), nil
}

// EmbedBatch chama Embed em paralelo (o Ollama não tem API de lote).
// A ordem da saída segue a da entrada.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ollamaBatchWorkers)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OllamaEmbedder) call(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return result.Embedding, nil
}
