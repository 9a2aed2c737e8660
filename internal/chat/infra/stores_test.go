package infra_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/infra"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
)

func sampleSet(key string) *domain.VectorSet {
	return &domain.VectorSet{
		Key:   key,
		Model: "ollama:nomic-embed-text",
		Vectors: []domain.PatternVector{
			{Intent: "greeting", Priority: 1, Pattern: "oi", Vector: []float32{0.1, 0.2}},
			{Intent: "pricing", Priority: 5, Pattern: "quanto custa", Vector: []float32{0.3, 0.4}},
		},
		CreatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

// ============================================================
// Vector caches
// ============================================================

func TestVectorCaches(t *testing.T) {
	sqliteCache, err := infra.NewSQLiteVectorCache(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteCache.Close() })

	caches := map[string]port.VectorCache{
		"file":   infra.NewFileVectorCache(filepath.Join(t.TempDir(), "nested", "vectors.json")),
		"sqlite": sqliteCache,
	}

	for name, cache := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := cache.Load(ctx, "k1")
			require.NoError(t, err)
			assert.Nil(t, got, "empty cache loads nothing")

			want := sampleSet("k1")
			require.NoError(t, cache.Save(ctx, want))

			got, err = cache.Load(ctx, "k1")
			require.NoError(t, err)
			require.NotNil(t, got)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			require.NoError(t, cache.Save(ctx, sampleSet("k2")))
			got, err = cache.Load(ctx, "k2")
			require.NoError(t, err)
			assert.Equal(t, "k2", got.Key)
		})
	}
}

func TestFileVectorCache_CorruptFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	require.NoError(t, os.WriteFile(path, []byte("{não é json"), 0o644))

	_, err := infra.NewFileVectorCache(path).Load(context.Background(), "k1")
	assert.Error(t, err)
}

func TestFileVectorCache_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	cache := infra.NewFileVectorCache(filepath.Join(dir, "vectors.json"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cache.Save(context.Background(), sampleSet("k"+strconv.Itoa(i))))
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vectors.json", entries[0].Name())

	got, err := cache.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, got.Vectors, 2)
}

// ============================================================
// DynamoDealRepository (fake client)
// ============================================================

type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := in.Item["id"].(*types.AttributeValueMemberS).Value
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := in.Key["id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid := in.ExpressionAttributeValues[":uid"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for _, it := range f.items {
		if it["user_id"].(*types.AttributeValueMemberS).Value == uid {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a := out[i]["updated_at"].(*types.AttributeValueMemberS).Value
		b := out[j]["updated_at"].(*types.AttributeValueMemberS).Value
		return a > b
	})
	if in.Limit != nil && len(out) > int(*in.Limit) {
		out = out[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func TestDynamoDealRepository_RoundTrip(t *testing.T) {
	repo := infra.NewDynamoDealRepository(&fakeDynamo{items: map[string]map[string]types.AttributeValue{}}, "")
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	first := &domain.Deal{
		ID: "deal-1", UserID: "u1", Status: domain.DealPaymentMethodChosen,
		Product: domain.TopicLanding, Plan: "basico", ListPrice: 900, DiscountPercent: 10, FinalPrice: 810,
		PaymentMethod: domain.PaymentCard, Installments: 3, ClientName: "João",
		StageLog: []domain.StageLogEntry{
			{Stage: domain.DealProposalSent, At: t0, Note: "proposta gerada"},
			{Stage: domain.DealPaymentMethodChosen, At: t0.Add(time.Minute)},
		},
		CreatedAt: t0, UpdatedAt: t0.Add(time.Minute),
	}
	second := first.Clone()
	second.ID = "deal-2"
	second.UpdatedAt = t0.Add(time.Hour)

	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.FindByID(ctx, "deal-1")
	require.NoError(t, err)
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	latest, err := repo.FindLatestByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "deal-2", latest.ID)

	missing, err := repo.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := repo.FindLatestByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

// ============================================================
// RedisStateRepository (precisa de um Redis de verdade)
// ============================================================

func TestRedisStateRepository(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	repo := infra.NewRedisStateRepository(infra.NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0), time.Minute)
	ctx := context.Background()
	require.NoError(t, repo.Ping(ctx))

	userID := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Cleanup(func() { _ = repo.Delete(context.Background(), userID) })

	st := domain.NewConversationState(userID, time.Now().UTC())
	st.Topic = domain.TopicSite
	st.Lead.Name = "Ana"
	require.NoError(t, repo.Save(ctx, &st))

	got, err := repo.Load(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.TopicSite, got.Topic)
	assert.Equal(t, "Ana", got.Lead.Name)

	require.NoError(t, repo.Delete(ctx, userID))
	got, err = repo.Load(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
