// Package domain define os tipos do motor de diálogo de vendas.
//
// O fluxo de uma mensagem:
//  1. O transporte entrega uma Utterance (userId, texto, nome de exibição)
//  2. O texto é normalizado e dele saem um SignalSet e um EntitySet
//  3. O classificador escolhe um único IntentResult
//  4. A policy transforma sinais + estado + deal em um ActionCode
//  5. O executor aplica o efeito (estado, deal) e devolve o texto de resposta
package domain

import "time"

// ============================================================
// Utterance: mensagem de entrada (imutável)
// ============================================================

// Utterance é a mensagem recebida do transporte. Consumida uma única vez.
type Utterance struct {
	UserID      string    `json:"userId"`
	Text        string    `json:"text"`
	DisplayName string    `json:"displayName,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// ============================================================
// Intent
// ============================================================

// IntentMethod indica qual camada do classificador produziu o resultado.
// A confiança só é comparável dentro do mesmo método.
type IntentMethod string

const (
	MethodPattern   IntentMethod = "pattern"
	MethodEmbedding IntentMethod = "embedding"
	MethodContext   IntentMethod = "context"
	MethodFallback  IntentMethod = "fallback"
)

// Intents com significado fixo para o motor.
const (
	IntentUnknown     = "unknown"
	IntentAffirmative = "affirmative"
	IntentNegative    = "negative"
	IntentInterested  = "interested"
	IntentLeadInfo    = "lead_info"
)

// IntentResult é o único intent vencedor de uma mensagem.
type IntentResult struct {
	Intent     string       `json:"intent"`
	Confidence float64      `json:"confidence"`
	Method     IntentMethod `json:"method"`
}

// ============================================================
// Turn: resultado de HandleMessage
// ============================================================

// TurnResult é o que o motor devolve para o transporte.
// UsedFallback indica que uma dependência externa falhou e a resposta
// veio do template padrão.
type TurnResult struct {
	UserID       string       `json:"userId"`
	Intent       IntentResult `json:"intent"`
	Action       ActionCode   `json:"action"`
	Rule         string       `json:"rule"`
	ResponseText string       `json:"responseText"`
	DealUpdate   *Deal        `json:"dealUpdate,omitempty"`
	UsedFallback bool         `json:"usedFallback"`
	Generated    bool         `json:"generated"`
}

// OutboundMessage é o que o Sender entrega ao transporte.
type OutboundMessage struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

// InboundMessage é a tupla entregue pelo feed de entrada.
type InboundMessage struct {
	ID          string `json:"id,omitempty"`
	UserID      string `json:"userId"`
	Text        string `json:"text"`
	DisplayName string `json:"displayName,omitempty"`
}
