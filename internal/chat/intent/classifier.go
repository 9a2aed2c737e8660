// Package intent implementa o classificador híbrido de intenções.
//
// Duas camadas, sempre nesta ordem:
//  1. Padrões: cada padrão normalizado do catálogo contido no texto pontua
//     0.8 + 0.1×palavras + 0.02×prioridade (máximo 1.0). Empate: vence o
//     primeiro encontrado na ordem do catálogo.
//  2. Embeddings (opcional): o texto é comparado por similaridade de cosseno
//     com os vetores pré-calculados de todos os padrões.
//
// Se nenhuma camada decide, o classificador tenta resolver pelo contexto da
// conversa (afirmativo/negativo, dados do lead) e por fim devolve "unknown".
// Classify nunca falha e nunca bloqueia além do timeout de embedding.
package intent

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/vendas-bot-go/internal/chat/catalog"
	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/nlp"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
	"github.com/boddenberg/vendas-bot-go/internal/infra/cache"
)

var tracer = otel.Tracer("chat/intent")

// Abaixo de contextThreshold o resultado de padrões não é confiável e a
// resolução por contexto é tentada.
const (
	contextThreshold   = 0.6
	contextConfidence  = 0.7
	leadInfoConfidence = 0.65

	queryCacheName = "query_embedding"
)

// Config parametriza o classificador.
type Config struct {
	// SimilarityThreshold é o mínimo para aceitar o resultado de embeddings.
	SimilarityThreshold float64
	// EmbedTimeout limita cada chamada ao embedder durante uma mensagem.
	EmbedTimeout time.Duration
	// WarmupTimeout limita a geração dos vetores dos padrões.
	WarmupTimeout time.Duration
	// QueryCacheTTL é o tempo de vida dos embeddings de mensagens.
	QueryCacheTTL time.Duration
	QueryCacheMax int
	BatchSize     int
	Workers       int
}

// DefaultConfig devolve os valores padrão.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.45,
		EmbedTimeout:        800 * time.Millisecond,
		WarmupTimeout:       2 * time.Minute,
		QueryCacheTTL:       10 * time.Minute,
		QueryCacheMax:       5000,
		BatchSize:           32,
		Workers:             4,
	}
}

// CacheObserver recebe hits/misses do cache de embeddings de consulta.
// *observability.Metrics satisfaz esta interface.
type CacheObserver interface {
	IncrCacheHit(cache string)
	IncrCacheMiss(cache string)
}

// Input é tudo que o classificador precisa saber de uma mensagem.
type Input struct {
	Normalized  string
	Signals     domain.SignalSet
	EntityCount int
	// HasContext é true quando o usuário já conversou nesta sessão.
	HasContext bool
	LastTopic  domain.Topic
	// LeadCapture é true quando o bot pediu os dados do cliente.
	LeadCapture bool
}

type pattern struct {
	text  string
	words int
}

type compiledIntent struct {
	name     string
	priority int
	patterns []pattern
}

// Classifier é seguro para uso concorrente. O índice de vetores é trocado
// atomicamente quando a geração termina.
type Classifier struct {
	intents []compiledIntent
	cfg     Config
	logger  *zap.Logger

	embedder port.Embedder
	vectors  port.VectorCache
	observer CacheObserver
	queries  *cache.InMemory[[]float32]

	index    atomic.Pointer[vectorIndex]
	disabled atomic.Bool
	warnOnce sync.Once
}

// Option configura dependências opcionais.
type Option func(*Classifier)

// WithEmbedder liga a camada de embeddings.
func WithEmbedder(e port.Embedder, vc port.VectorCache) Option {
	return func(c *Classifier) {
		c.embedder = e
		c.vectors = vc
	}
}

// WithCacheObserver registra métricas do cache de consultas.
func WithCacheObserver(o CacheObserver) Option {
	return func(c *Classifier) { c.observer = o }
}

// New compila os padrões do catálogo. Sem WithEmbedder o classificador
// opera só com padrões.
func New(cat *catalog.Catalog, cfg Config, logger *zap.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		intents: compile(cat.Intents),
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.embedder != nil {
		c.queries = cache.New[[]float32](cfg.QueryCacheTTL, cfg.QueryCacheMax)
	}
	return c
}

func compile(intents []catalog.Intent) []compiledIntent {
	out := make([]compiledIntent, 0, len(intents))
	for _, in := range intents {
		ci := compiledIntent{name: in.Name, priority: in.Priority}
		for _, p := range in.Patterns {
			norm := nlp.Normalize(p)
			if norm == "" {
				continue
			}
			ci.patterns = append(ci.patterns, pattern{text: norm, words: len(nlp.Words(norm))})
		}
		out = append(out, ci)
	}
	return out
}

// Close libera o cache de consultas.
func (c *Classifier) Close() {
	if c.queries != nil {
		c.queries.Close()
	}
}

// Classify devolve o único intent vencedor da mensagem.
func (c *Classifier) Classify(ctx context.Context, in Input) domain.IntentResult {
	ctx, span := tracer.Start(ctx, "Classifier.Classify")
	defer span.End()

	result := c.classify(ctx, in)
	span.SetAttributes(
		attribute.String("intent.name", result.Intent),
		attribute.String("intent.method", string(result.Method)),
		attribute.Float64("intent.confidence", result.Confidence),
	)
	return result
}

func (c *Classifier) classify(ctx context.Context, in Input) domain.IntentResult {
	byPattern := c.MatchPatterns(in.Normalized)

	if byEmbedding, ok := c.matchEmbedding(ctx, in.Normalized); ok && byEmbedding.Confidence >= c.cfg.SimilarityThreshold {
		return byEmbedding
	}
	if byPattern.Method == domain.MethodPattern && byPattern.Confidence >= contextThreshold {
		return byPattern
	}

	if in.HasContext {
		switch {
		case in.Signals.ShortConfirm && in.LastTopic != domain.TopicNone:
			return domain.IntentResult{Intent: domain.IntentInterested, Confidence: contextConfidence, Method: domain.MethodContext}
		case in.Signals.ShortConfirm:
			return domain.IntentResult{Intent: domain.IntentAffirmative, Confidence: contextConfidence, Method: domain.MethodContext}
		case in.Signals.ShortNegative:
			return domain.IntentResult{Intent: domain.IntentNegative, Confidence: contextConfidence, Method: domain.MethodContext}
		}
	}

	if in.LeadCapture && (in.Signals.LineCount >= 2 || in.EntityCount > 0) {
		return domain.IntentResult{Intent: domain.IntentLeadInfo, Confidence: leadInfoConfidence, Method: domain.MethodContext}
	}

	byPattern.Method = domain.MethodFallback
	return byPattern
}

// MatchPatterns executa só a camada de padrões. Sem nenhum padrão contido
// no texto devolve "unknown" com confiança 0 e método fallback.
func (c *Classifier) MatchPatterns(normalized string) domain.IntentResult {
	best := domain.IntentResult{Intent: domain.IntentUnknown, Method: domain.MethodFallback}
	if normalized == "" {
		return best
	}
	for _, in := range c.intents {
		for _, p := range in.patterns {
			// Substring: "precos" casa com "preco", "websites" com "site".
			if !strings.Contains(normalized, p.text) {
				continue
			}
			score := math.Min(1.0, 0.8+0.1*float64(p.words)+0.02*float64(in.priority))
			// Estritamente maior: em empate fica o primeiro encontrado.
			if score > best.Confidence {
				best = domain.IntentResult{Intent: in.name, Confidence: score, Method: domain.MethodPattern}
			}
		}
	}
	return best
}

// EmbeddingActive informa se a camada de embeddings está pronta para uso.
func (c *Classifier) EmbeddingActive() bool {
	return c.embedder != nil && !c.disabled.Load() && c.index.Load() != nil
}

// Disable desliga a camada de embeddings até o fim do processo.
func (c *Classifier) Disable(reason error) {
	c.disabled.Store(true)
	c.warnOnce.Do(func() {
		c.logger.Warn("embedding tier disabled, classifying by patterns only", zap.Error(reason))
	})
}

func (c *Classifier) matchEmbedding(ctx context.Context, normalized string) (domain.IntentResult, bool) {
	if c.embedder == nil || c.disabled.Load() || normalized == "" {
		return domain.IntentResult{}, false
	}
	idx := c.index.Load()
	if idx == nil {
		return domain.IntentResult{}, false
	}

	vec, ok := c.queries.Get(normalized)
	if ok {
		c.observeHit()
	} else {
		c.observeMiss()
		embedCtx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
		defer cancel()

		var err error
		vec, err = c.embedder.Embed(embedCtx, normalized)
		if err != nil {
			c.logger.Debug("query embedding failed, skipping tier", zap.Error(err))
			return domain.IntentResult{}, false
		}
		c.queries.Set(normalized, vec)
	}
	return idx.best(vec)
}

func (c *Classifier) observeHit() {
	if c.observer != nil {
		c.observer.IncrCacheHit(queryCacheName)
	}
}

func (c *Classifier) observeMiss() {
	if c.observer != nil {
		c.observer.IncrCacheMiss(queryCacheName)
	}
}
