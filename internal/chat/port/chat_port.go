// Package port define os colaboradores externos do motor de vendas.
//
// Seguindo a arquitetura hexagonal, os serviços dependem destas interfaces
// e NÃO dos clients concretos em chat/infra. Todas são opcionais: com
// nil o motor opera em memória, sem embeddings e sem gerador de texto.
package port

import (
	"context"

	chatdomain "github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

// ChatAgentCaller envia mensagens ao agent de linguagem via POST /v1/chat.
type ChatAgentCaller interface {
	SendChat(ctx context.Context, req *chatdomain.ChatAgentRequest) (*chatdomain.ChatAgentResponse, error)
}

// TextGenerator produz texto livre para ações estilísticas.
type TextGenerator interface {
	Generate(ctx context.Context, req *chatdomain.GenerationRequest) (string, error)
}

// Embedder transforma texto em vetores de tamanho fixo.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifica o modelo; entra no hash do cache de vetores.
	Name() string
}

// VectorCache persiste os vetores dos padrões.
//
// Load devolve (nil, nil) quando não há nada salvo para key. Um conteúdo
// corrompido devolve erro; o chamador regenera os vetores.
// Save substitui atomicamente o conteúdo anterior.
type VectorCache interface {
	Load(ctx context.Context, key string) (*chatdomain.VectorSet, error)
	Save(ctx context.Context, set *chatdomain.VectorSet) error
}

// StateRepository persiste o ConversationState entre reinícios.
// Load devolve (nil, nil) quando o usuário não tem estado salvo.
type StateRepository interface {
	Load(ctx context.Context, userID string) (*chatdomain.ConversationState, error)
	Save(ctx context.Context, state *chatdomain.ConversationState) error
	Delete(ctx context.Context, userID string) error
}

// DealRepository persiste as negociações. Deals nunca são apagadas.
// As buscas devolvem (nil, nil) quando nada é encontrado.
type DealRepository interface {
	Save(ctx context.Context, deal *chatdomain.Deal) error
	FindByID(ctx context.Context, dealID string) (*chatdomain.Deal, error)
	FindLatestByUser(ctx context.Context, userID string) (*chatdomain.Deal, error)
}

// Sender entrega uma mensagem de saída ao transporte.
// Não há garantia de entrega exatamente uma vez.
type Sender interface {
	Send(ctx context.Context, msg chatdomain.OutboundMessage) error
}
