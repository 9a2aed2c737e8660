package domain

import "time"

// ============================================================
// Geração de texto (fallback estilístico)
// ============================================================

// GenerationRequest é o que o motor entrega ao gerador externo quando a
// ação decidida é estilística. Attempt começa em 1; na segunda tentativa o
// prompt é levemente alterado.
type GenerationRequest struct {
	UserID   string         `json:"user_id"`
	Action   ActionCode     `json:"action"`
	Template string         `json:"template"`
	Summary  string         `json:"summary"`
	History  []HistoryEntry `json:"history,omitempty"`
	Text     string         `json:"text"`
	Attempt  int            `json:"attempt"`
}

// ChatAgentRequest é o payload do POST /v1/chat do agent de linguagem.
//
//	{"query": "...", "customer_id": "5511...", "context": "SEND_PROPOSAL"}
type ChatAgentRequest struct {
	Query      string         `json:"query"`
	CustomerID string         `json:"customer_id,omitempty"`
	Context    string         `json:"context,omitempty"`
	History    []HistoryEntry `json:"history,omitempty"`
}

// ChatAgentResponse é a resposta do agent.
type ChatAgentResponse struct {
	CustomerID string  `json:"customer_id"`
	Answer     string  `json:"answer"`
	TokensUsed int     `json:"tokens_used"`
	EstCostUSD float64 `json:"estimated_cost_usd"`
	Timestamp  string  `json:"timestamp"`
}

// ============================================================
// Vetores de padrões (camada de embeddings)
// ============================================================

// PatternVector é o embedding de um padrão de um intent.
type PatternVector struct {
	Intent   string    `json:"intent"`
	Priority int       `json:"priority"`
	Pattern  string    `json:"pattern"`
	Vector   []float32 `json:"vector"`
}

// VectorSet é o conjunto de vetores persistido no cache. Key é o hash do
// corpus de padrões; um VectorSet com Key diferente do esperado é descartado.
type VectorSet struct {
	Key       string          `json:"key"`
	Model     string          `json:"model"`
	Vectors   []PatternVector `json:"vectors"`
	CreatedAt time.Time       `json:"created_at"`
}
