package domain

import "time"

// Stage é a fase macro da conversa. Só avança dentro de uma sessão.
type Stage string

const (
	StageInicio      Stage = "inicio"
	StageExploration Stage = "exploration"
	StageDetailing   Stage = "detailing"
	StageClosing     Stage = "closing"
)

var stageOrder = map[Stage]int{
	StageInicio:      0,
	StageExploration: 1,
	StageDetailing:   2,
	StageClosing:     3,
}

// Expectation descreve que tipo de resposta o bot está aguardando.
type Expectation string

const (
	ExpectNothing             Expectation = ""
	ExpectPlanChoice          Expectation = "plan_choice"
	ExpectClientData          Expectation = "client_data"
	ExpectPaymentMethod       Expectation = "payment_method"
	ExpectInstallments        Expectation = "installments"
	ExpectPaymentConfirmation Expectation = "payment_confirmation"
)

// HistoryEntry é um item do ring buffer de histórico.
type HistoryEntry struct {
	Intent string    `json:"intent"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// ConversationState é o registro mutável de um usuário.
// Pertence exclusivamente ao state.Store.
type ConversationState struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`

	Stage Stage  `json:"stage"`
	Topic Topic  `json:"topic,omitempty"`
	Plan  string `json:"plan,omitempty"`

	Greeted       bool `json:"greeted"`
	PricesShown   bool `json:"pricesShown"`
	DataRequested bool `json:"dataRequested"`
	OptionsShown  bool `json:"optionsShown"`

	PendingExpectation Expectation `json:"pendingExpectation,omitempty"`

	// DiscountOffered é o maior desconto (%) já concedido nesta conversa.
	DiscountOffered float64 `json:"discountOffered"`

	Lead EntitySet `json:"lead"`

	History      []HistoryEntry `json:"history"`
	MessageCount int            `json:"messageCount"`
	LastActivity time.Time      `json:"lastActivity"`
}

// NewConversationState devolve o estado inicial de um usuário.
func NewConversationState(userID string, now time.Time) ConversationState {
	return ConversationState{
		UserID:       userID,
		Stage:        StageInicio,
		History:      []HistoryEntry{},
		LastActivity: now,
	}
}

// Expired informa se o estado passou do tempo de inatividade.
func (s ConversationState) Expired(now time.Time, idle time.Duration) bool {
	return !s.LastActivity.IsZero() && now.Sub(s.LastActivity) > idle
}

// AdvanceStage move o estágio para frente; nunca retrocede.
func (s *ConversationState) AdvanceStage(to Stage) {
	if stageOrder[to] > stageOrder[s.Stage] {
		s.Stage = to
	}
}

// PushHistory adiciona uma entrada mantendo no máximo size itens.
// O texto é truncado em maxText runes.
func (s *ConversationState) PushHistory(intent, text string, at time.Time, size, maxText int) {
	if size <= 0 {
		return
	}
	if r := []rune(text); maxText > 0 && len(r) > maxText {
		text = string(r[:maxText])
	}
	s.History = append(s.History, HistoryEntry{Intent: intent, Text: text, At: at})
	if over := len(s.History) - size; over > 0 {
		s.History = append([]HistoryEntry(nil), s.History[over:]...)
	}
}

// HasContext é true quando já houve troca de mensagens com o usuário.
func (s ConversationState) HasContext() bool {
	return len(s.History) > 0 || s.Topic != TopicNone
}

// LastTopic devolve o tópico atual ou o interesse registrado no lead.
func (s ConversationState) LastTopic() Topic {
	if s.Topic != TopicNone {
		return s.Topic
	}
	return s.Lead.Interest
}

// Clone devolve uma cópia independente (o histórico não é compartilhado).
func (s ConversationState) Clone() ConversationState {
	c := s
	c.History = append([]HistoryEntry(nil), s.History...)
	return c
}
