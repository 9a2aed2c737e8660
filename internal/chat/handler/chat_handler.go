// Package handler implementa as rotas HTTP do motor de vendas.
//
// ============================================================
// ROTAS
// ============================================================
//
// POST /v1/messages                →  turno síncrono
//   - Body: {"userId": "5511...", "text": "quanto custa um site?"}
//   - Resposta: TurnResult (ação, regra, texto, deal atualizada)
//
// POST /v1/webhook/inbound         →  entrada assíncrona do transporte
//   - Mesmo body, autenticado por token HS256
//   - Enfileira no Dispatcher e responde 202; a resposta sai pelo Sender
//
// GET  /v1/sessions/{userId}       →  estado da conversa (sem criar sessão)
// POST /v1/sessions/sweep          →  varredura manual das sessões inativas
// GET  /v1/deals/{userId}          →  negociação ativa do usuário
// GET  /v1/deals/id/{dealId}       →  negociação pelo id
//
// Os handlers são finos: validam o básico e delegam pro ChatService.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/service"
	maindomain "github.com/boddenberg/vendas-bot-go/internal/domain"
	"github.com/boddenberg/vendas-bot-go/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer é o tracer OpenTelemetry para o módulo chat/handler.
var tracer = otel.Tracer("chat/handler")

// Engine é o que os handlers usam do ChatService.
type Engine interface {
	HandleMessage(ctx context.Context, utt domain.Utterance) (*domain.TurnResult, error)
	SweepExpiredSessions(ctx context.Context) int
	Session(userID string) (domain.ConversationState, error)
	ActiveDeal(ctx context.Context, userID string) (*domain.Deal, error)
	DealByID(ctx context.Context, dealID string) (*domain.Deal, error)
}

// Enqueuer recebe mensagens para processamento assíncrono (Dispatcher).
type Enqueuer interface {
	Enqueue(ctx context.Context, msg domain.InboundMessage) error
}

// enqueueTimeout limita a espera por espaço na fila do usuário.
const enqueueTimeout = 2 * time.Second

// ============================================================
// MessageHandler: POST /v1/messages
// ============================================================

// MessageHandler processa um turno de forma síncrona.
//
// Request:
//
//	{"userId": "5511999990000", "text": "oi", "displayName": "Maria"}
//
// Response (200 OK): TurnResult.
func MessageHandler(engine Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/messages")
		defer span.End()

		var req domain.InboundMessage
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: expected {\"userId\": \"...\", \"text\": \"...\"}")
			return
		}
		span.SetAttributes(attribute.String("user.id", req.UserID))
		observability.SetRequestUser(ctx, req.UserID, req.ID)

		res, err := engine.HandleMessage(ctx, domain.Utterance{
			UserID:      req.UserID,
			Text:        req.Text,
			DisplayName: req.DisplayName,
			ReceivedAt:  time.Now().UTC(),
		})
		if err != nil {
			handleServiceError(r.Context(), w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ============================================================
// InboundWebhookHandler: POST /v1/webhook/inbound
// ============================================================

// InboundWebhookHandler enfileira a mensagem e responde 202 com o id.
// Um id vazio recebe um UUID novo.
func InboundWebhookHandler(queue Enqueuer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhook/inbound")
		defer span.End()

		if queue == nil {
			writeError(w, http.StatusServiceUnavailable, "async delivery not configured")
			return
		}

		var msg domain.InboundMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		msg.UserID = strings.TrimSpace(msg.UserID)
		if msg.UserID == "" {
			handleServiceError(r.Context(), w, &maindomain.ErrValidation{Field: "userId", Message: "required"}, logger)
			return
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		span.SetAttributes(
			attribute.String("user.id", msg.UserID),
			attribute.String("message.id", msg.ID),
		)
		observability.SetRequestUser(ctx, msg.UserID, msg.ID)

		ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
		defer cancel()
		if err := queue.Enqueue(ctx, msg); err != nil {
			handleServiceError(r.Context(), w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, maindomain.AcceptedResponse{Status: "queued", ID: msg.ID})
	}
}

// ============================================================
// Sessões e negociações
// ============================================================

// SessionHandler: GET /v1/sessions/{userId}.
func SessionHandler(engine Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")
		observability.SetRequestUser(r.Context(), userID, "")
		st, err := engine.Session(userID)
		if err != nil {
			handleServiceError(r.Context(), w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// SweepHandler: POST /v1/sessions/sweep.
func SweepHandler(engine Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed := engine.SweepExpiredSessions(r.Context())
		logger.Info("manual sweep", zap.Int("removed", removed))
		writeJSON(w, http.StatusOK, maindomain.SweepResponse{Removed: removed})
	}
}

// ActiveDealHandler: GET /v1/deals/{userId}.
func ActiveDealHandler(engine Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")
		observability.SetRequestUser(r.Context(), userID, "")
		d, err := engine.ActiveDeal(r.Context(), userID)
		if err != nil {
			handleServiceError(r.Context(), w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// DealByIDHandler: GET /v1/deals/id/{dealId}.
func DealByIDHandler(engine Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := engine.DealByID(r.Context(), chi.URLParam(r, "dealId"))
		if err != nil {
			handleServiceError(r.Context(), w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// ============================================================
// Helpers: funções utilitárias do chat handler
// ============================================================

// writeJSON serializa data como JSON e escreve na response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError escreve uma resposta de erro padronizada.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleServiceError mapeia erros de domínio para HTTP status codes.
// O log sai com request_id e user_id da requisição.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, logger *zap.Logger) {
	logger = observability.RequestLogger(ctx, logger)
	var (
		validation   *maindomain.ErrValidation
		notFound     *maindomain.ErrNotFound
		transition   *maindomain.ErrInvalidTransition
		unauthorized *maindomain.ErrUnauthorized
		circuitOpen  *maindomain.ErrCircuitOpen
		timeout      *maindomain.ErrTimeout
		external     *maindomain.ErrExternalService
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &transition):
		logger.Warn("invalid deal transition", zap.Error(err))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrDispatcherStopped):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.As(err, &circuitOpen), errors.Is(err, gobreaker.ErrOpenState):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "timeout")
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(external.Err))
		writeError(w, http.StatusBadGateway, "external service unavailable: "+external.Service)
	default:
		logger.Error("unexpected error in chat handler", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
