// Package service: chat_service.go implementa o ChatService.
//
// ============================================================
// ARQUITETURA: pipeline de um turno
// ============================================================
//
// O ChatService é o orquestrador central do motor de vendas. Cada
// mensagem recebida vira exatamente uma ação e uma resposta.
//
// Fluxo completo de HandleMessage:
//  1. Trava o estado do usuário (state.Store.Do): um turno por usuário
//  2. Normaliza o texto e extrai sinais e entidades
//  3. Mescla as entidades no lead acumulado
//  4. Em paralelo: classifica o intent e busca a Deal ativa
//  5. A policy decide a ação (primeira regra que casar)
//  6. O executor aplica o efeito e renderiza o template da ação
//  7. Ações estilísticas podem ter o texto trocado pelo gerador externo
//  8. Registra histórico, métricas e devolve o TurnResult
//
// Nenhum erro interno chega ao chamador como falha do turno: qualquer
// problema resolve para o template de FALLBACK com UsedFallback=true.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/vendas-bot-go/internal/chat/catalog"
	"github.com/boddenberg/vendas-bot-go/internal/chat/deal"
	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/intent"
	"github.com/boddenberg/vendas-bot-go/internal/chat/nlp"
	"github.com/boddenberg/vendas-bot-go/internal/chat/policy"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
	"github.com/boddenberg/vendas-bot-go/internal/chat/state"
	maindomain "github.com/boddenberg/vendas-bot-go/internal/domain"
	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"
)

// chatTracer é o tracer OpenTelemetry para o módulo de chat.
var chatTracer = otel.Tracer("chat/service")

// lastResort é usado só se até o template de FALLBACK falhar.
const lastResort = "Desculpe, não consegui entender. Pode repetir de outro jeito?"

// Metrics é o que o ChatService registra por turno.
type Metrics interface {
	RecordRequestDuration(operation string, d time.Duration)
	IncrIntent(method string)
	IncrAction(action string)
	IncrLLMFallback(outcome string)
	IncrExternalError(service string)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequestDuration(string, time.Duration) {}
func (nopMetrics) IncrIntent(string)                          {}
func (nopMetrics) IncrAction(string)                          {}
func (nopMetrics) IncrLLMFallback(string)                     {}
func (nopMetrics) IncrExternalError(string)                   {}

// ChatService é o motor de diálogo.
type ChatService struct {
	catalog    *catalog.Catalog
	classifier *intent.Classifier
	store      *state.Store
	deals      *deal.Registry

	// generator é opcional; com nil as ações estilísticas usam o template.
	generator  port.TextGenerator
	bulkhead   *resilience.Bulkhead
	genTimeout time.Duration

	metrics Metrics
	intn    func(int) int
	now     func() time.Time
	logger  *zap.Logger
}

// Option configura o ChatService.
type Option func(*ChatService)

// WithGenerator liga o gerador de texto externo. O bulkhead limita as
// chamadas simultâneas; timeout limita cada tentativa.
func WithGenerator(gen port.TextGenerator, bulkhead *resilience.Bulkhead, timeout time.Duration) Option {
	return func(s *ChatService) {
		s.generator = gen
		s.bulkhead = bulkhead
		s.genTimeout = timeout
	}
}

// WithMetrics registra o coletor de métricas.
func WithMetrics(m Metrics) Option {
	return func(s *ChatService) { s.metrics = m }
}

// WithRandom fixa o sorteio dos templates aleatórios (testes).
func WithRandom(intn func(int) int) Option {
	return func(s *ChatService) { s.intn = intn }
}

// WithClock troca o relógio usado nos artefatos.
func WithClock(now func() time.Time) Option {
	return func(s *ChatService) { s.now = now }
}

// NewChatService cria o ChatService com as dependências injetadas.
func NewChatService(
	cat *catalog.Catalog,
	classifier *intent.Classifier,
	store *state.Store,
	deals *deal.Registry,
	logger *zap.Logger,
	opts ...Option,
) *ChatService {
	s := &ChatService{
		catalog:    cat,
		classifier: classifier,
		store:      store,
		deals:      deals,
		genTimeout: 5 * time.Second,
		metrics:    nopMetrics{},
		intn:       rand.IntN,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleMessage processa uma mensagem e devolve a ação e a resposta.
// Só devolve erro para entrada inválida (sem userId).
func (s *ChatService) HandleMessage(ctx context.Context, utt domain.Utterance) (*domain.TurnResult, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.HandleMessage")
	defer span.End()
	start := time.Now()

	userID := strings.TrimSpace(utt.UserID)
	if userID == "" {
		return nil, &maindomain.ErrValidation{Field: "userId", Message: "required"}
	}

	var result domain.TurnResult
	_, err := s.store.Do(ctx, userID, func(st *domain.ConversationState) error {
		result = s.turn(ctx, userID, utt, st)
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("chat.intent", result.Intent.Intent),
		attribute.String("chat.action", string(result.Action)),
		attribute.Bool("chat.used_fallback", result.UsedFallback),
	)
	s.metrics.RecordRequestDuration("handle_message", time.Since(start))
	s.metrics.IncrIntent(string(result.Intent.Method))
	s.metrics.IncrAction(string(result.Action))

	s.logger.Info("turn handled",
		zap.String("user_id", userID),
		zap.String("intent", result.Intent.Intent),
		zap.String("method", string(result.Intent.Method)),
		zap.Float64("confidence", result.Intent.Confidence),
		zap.String("action", string(result.Action)),
		zap.String("rule", result.Rule),
		zap.Bool("used_fallback", result.UsedFallback),
		zap.Duration("took", time.Since(start)),
	)
	return &result, nil
}

// turn roda o pipeline com o estado do usuário já travado.
func (s *ChatService) turn(ctx context.Context, userID string, utt domain.Utterance, st *domain.ConversationState) domain.TurnResult {
	normalized := nlp.Normalize(utt.Text)
	signals := nlp.ExtractSignals(normalized, utt.Text)
	entities := nlp.ExtractEntities(utt.Text, normalized)

	if utt.DisplayName != "" {
		st.DisplayName = utt.DisplayName
	}
	st.Lead = st.Lead.Merge(entities)

	classifierIn := intent.Input{
		Normalized:  normalized,
		Signals:     signals,
		EntityCount: entities.Count(),
		HasContext:  st.HasContext(),
		LastTopic:   st.LastTopic(),
		LeadCapture: st.DataRequested || st.PendingExpectation == domain.ExpectClientData,
	}

	var (
		intentRes domain.IntentResult
		active    *domain.Deal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		intentRes = s.classifier.Classify(gctx, classifierIn)
		return nil
	})
	g.Go(func() error {
		active = s.deals.Active(gctx, userID)
		return nil
	})
	_ = g.Wait()

	in := policy.Input{
		Signals:     signals,
		Intent:      intentRes,
		Entities:    entities,
		State:       st.Clone(),
		Deal:        domain.DealNone,
		MaxDiscount: s.catalog.MaxDiscount(),
	}
	if active != nil {
		in.Deal = active.Status
	}
	if ci, ok := s.catalog.Intent(intentRes.Intent); ok {
		in.IntentTopic = ci.Topic
		in.IntentAnswer = ci.Informational && !ci.Response.Empty()
	}
	decision := policy.Decide(in)

	result := domain.TurnResult{
		UserID: userID,
		Intent: intentRes,
		Action: decision.Action,
		Rule:   decision.Rule,
	}

	t := &turn{in: in, action: decision.Action, st: st, deal: active}
	text, err := s.execute(ctx, t)
	if err != nil {
		s.logger.Warn("action failed, answering with fallback",
			zap.String("user_id", userID),
			zap.String("action", string(decision.Action)),
			zap.Error(err),
		)
		text = s.fallbackText(st)
		result.UsedFallback = true
	}
	result.DealUpdate = t.dealUpdate

	if err == nil && decision.Action.Stylistic() && s.generator != nil {
		generated, genErr := s.generate(ctx, st, decision.Action, text, utt.Text)
		switch {
		case genErr == nil:
			text = generated
			result.Generated = true
			s.metrics.IncrLLMFallback("generated")
		default:
			result.UsedFallback = true
			s.metrics.IncrLLMFallback("template")
			s.logger.Warn("text generation failed, keeping template",
				zap.String("user_id", userID),
				zap.String("action", string(decision.Action)),
				zap.Error(genErr),
			)
		}
	}

	result.ResponseText = text
	st.MessageCount++
	s.store.PushHistory(st, intentRes.Intent, utt.Text)
	return result
}

func (s *ChatService) fallbackText(st *domain.ConversationState) string {
	view := catalog.View{
		Name:        displayName(st),
		CompanyName: s.catalog.Company.Name,
		Services:    s.catalog.ServiceNames(),
	}
	text, err := s.catalog.Response(domain.ActionFallback).Render(s.intn, view)
	if err != nil || strings.TrimSpace(text) == "" {
		return lastResort
	}
	return strings.TrimSpace(text)
}

// generate pede o texto ao gerador externo. Tenta no máximo duas vezes;
// a segunda com o prompt alterado (Attempt=2).
func (s *ChatService) generate(ctx context.Context, st *domain.ConversationState, action domain.ActionCode, template, text string) (string, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.generate")
	defer span.End()

	if s.bulkhead != nil {
		acquireCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
		err := s.bulkhead.Acquire(acquireCtx)
		cancel()
		if err != nil {
			return "", fmt.Errorf("generator busy: %w", err)
		}
		defer s.bulkhead.Release()
	}

	req := &domain.GenerationRequest{
		UserID:   st.UserID,
		Action:   action,
		Template: template,
		Summary:  summarize(st),
		History:  append([]domain.HistoryEntry(nil), st.History...),
		Text:     text,
	}

	var errs []error
	for attempt := 1; attempt <= 2; attempt++ {
		req.Attempt = attempt
		callCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
		out, err := s.generator.Generate(callCtx, req)
		cancel()
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), nil
		}
		if err == nil {
			err = errors.New("empty generation")
		}
		s.metrics.IncrExternalError("text_generator")
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
	}
	return "", errors.Join(errs...)
}

// summarize descreve o estado para o gerador externo.
func summarize(st *domain.ConversationState) string {
	parts := []string{"estagio=" + string(st.Stage)}
	if st.Topic != domain.TopicNone {
		parts = append(parts, "servico="+string(st.Topic))
	}
	if st.Plan != "" {
		parts = append(parts, "plano="+st.Plan)
	}
	if st.Lead.Name != "" {
		parts = append(parts, "cliente="+st.Lead.Name)
	}
	if st.DiscountOffered > 0 {
		parts = append(parts, "desconto="+catalog.FormatPercent(st.DiscountOffered))
	}
	parts = append(parts, "urgencia="+string(st.Lead.EffectiveUrgency()))
	return strings.Join(parts, " ")
}

// SweepExpiredSessions remove as sessões inativas e devolve quantas saíram.
func (s *ChatService) SweepExpiredSessions(ctx context.Context) int {
	_, span := chatTracer.Start(ctx, "ChatService.SweepExpiredSessions")
	defer span.End()
	return s.store.Sweep(ctx)
}

// Session devolve o estado atual do usuário sem criar sessão nova.
func (s *ChatService) Session(userID string) (domain.ConversationState, error) {
	st, ok := s.store.Peek(userID)
	if !ok {
		return domain.ConversationState{}, &maindomain.ErrNotFound{Resource: "session", ID: userID}
	}
	return st, nil
}

// ActiveDeal devolve a Deal ativa do usuário.
func (s *ChatService) ActiveDeal(ctx context.Context, userID string) (*domain.Deal, error) {
	d := s.deals.Active(ctx, userID)
	if d == nil {
		return nil, &maindomain.ErrNotFound{Resource: "deal", ID: userID}
	}
	return d, nil
}

// DealByID busca qualquer Deal pelo id.
func (s *ChatService) DealByID(ctx context.Context, dealID string) (*domain.Deal, error) {
	return s.deals.ByID(ctx, dealID)
}
