package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	maindomain "github.com/boddenberg/vendas-bot-go/internal/domain"
	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
)

const stateKeyPrefix = "vendas-bot:state:"

// RedisStateRepository persiste o ConversationState no Redis
// (port.StateRepository). Cada estado vira uma chave JSON com TTL; o TTL
// só limpa o que o sweeper não chegou a apagar.
type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient abre o client do Redis.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStateRepository cria o repositório. ttl <= 0 usa 24h.
func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStateRepository{client: client, ttl: ttl}
}

// Ping verifica a conexão (usado pelo /readyz).
func (r *RedisStateRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Load devolve (nil, nil) quando não há estado salvo.
func (r *RedisStateRepository) Load(ctx context.Context, userID string) (*domain.ConversationState, error) {
	ctx, span := tracer.Start(ctx, "RedisStateRepository.Load")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	data, err := r.client.Get(ctx, stateKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, resilience.ExternalError("redis", err)
	}

	var st domain.ConversationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state for %s: %w", userID, err)
	}
	return &st, nil
}

// Save grava o estado inteiro, renovando o TTL.
func (r *RedisStateRepository) Save(ctx context.Context, st *domain.ConversationState) error {
	ctx, span := tracer.Start(ctx, "RedisStateRepository.Save")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", st.UserID))

	if st.UserID == "" {
		return &maindomain.ErrValidation{Field: "userId", Message: "required"}
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.client.Set(ctx, stateKeyPrefix+st.UserID, data, r.ttl).Err(); err != nil {
		return resilience.ExternalError("redis", err)
	}
	return nil
}

// Delete apaga o estado. Apagar o que não existe não é erro.
func (r *RedisStateRepository) Delete(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "RedisStateRepository.Delete")
	defer span.End()

	if err := r.client.Del(ctx, stateKeyPrefix+userID).Err(); err != nil {
		return resilience.ExternalError("redis", err)
	}
	return nil
}
