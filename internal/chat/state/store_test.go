package state_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/state"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeRepo struct {
	mu      sync.Mutex
	states  map[string]domain.ConversationState
	loadErr error
	saveErr error
	saves   int
	deletes []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{states: map[string]domain.ConversationState{}}
}

func (r *fakeRepo) Load(_ context.Context, userID string) (*domain.ConversationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	st, ok := r.states[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *fakeRepo) Save(_ context.Context, st *domain.ConversationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.states[st.UserID] = st.Clone()
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, userID)
	delete(r.states, userID)
	return nil
}

func newStore(clock *fakeClock, opts ...state.Option) *state.Store {
	cfg := state.DefaultConfig()
	cfg.HistorySize = 3
	cfg.HistoryTextMax = 10
	return state.NewStore(cfg, zap.NewNop(), append([]state.Option{state.WithClock(clock.Now)}, opts...)...)
}

func TestStore_GetCreatesDefault(t *testing.T) {
	clock := newClock()
	s := newStore(clock)

	st := s.Get(context.Background(), "5511999990000")
	assert.Equal(t, "5511999990000", st.UserID)
	assert.Equal(t, domain.StageInicio, st.Stage)
	assert.Empty(t, st.History)
	assert.Equal(t, clock.Now(), st.LastActivity)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ExpiresAfterIdleTimeout(t *testing.T) {
	clock := newClock()
	s := newStore(clock)
	ctx := context.Background()

	s.Update(ctx, "u1", func(st *domain.ConversationState) {
		st.Greeted = true
		st.Topic = domain.TopicSite
		st.AdvanceStage(domain.StageExploration)
	})
	s.AppendHistory(ctx, "u1", "greeting", "oi")

	clock.Advance(30*time.Minute + time.Millisecond)

	st := s.Get(ctx, "u1")
	assert.Equal(t, domain.StageInicio, st.Stage)
	assert.Empty(t, st.History)
	assert.False(t, st.Greeted)
	assert.Equal(t, domain.TopicNone, st.Topic)
}

func TestStore_NotExpiredAtExactTimeout(t *testing.T) {
	clock := newClock()
	s := newStore(clock)
	ctx := context.Background()

	s.Update(ctx, "u1", func(st *domain.ConversationState) { st.Greeted = true })
	clock.Advance(30 * time.Minute)

	assert.True(t, s.Get(ctx, "u1").Greeted)
}

func TestStore_GetDoesNotCountAsActivity(t *testing.T) {
	clock := newClock()
	s := newStore(clock)
	ctx := context.Background()

	s.Update(ctx, "u1", func(st *domain.ConversationState) { st.Greeted = true })
	clock.Advance(20 * time.Minute)
	_ = s.Get(ctx, "u1")
	clock.Advance(11 * time.Minute)

	assert.False(t, s.Get(ctx, "u1").Greeted)
}

func TestStore_HistoryRingBuffer(t *testing.T) {
	clock := newClock()
	s := newStore(clock)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		s.AppendHistory(ctx, "u1", "intent", fmt.Sprintf("%d: mensagem longa", i))
	}

	st := s.Get(ctx, "u1")
	require.Len(t, st.History, 3)
	assert.Equal(t, "3: mensage", st.History[0].Text)
	assert.Equal(t, "5: mensage", st.History[2].Text)
}

func TestStore_DoErrorDiscardsChanges(t *testing.T) {
	clock := newClock()
	s := newStore(clock)
	ctx := context.Background()

	st, err := s.Do(ctx, "u1", func(st *domain.ConversationState) error {
		st.Greeted = true
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.False(t, st.Greeted)
	assert.False(t, s.Get(ctx, "u1").Greeted)
}

func TestStore_SerializesPerUser(t *testing.T) {
	clock := newClock()
	s := newStore(clock)
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := "u" + fmt.Sprint(i%4)
			_, _ = s.Do(ctx, user, func(st *domain.ConversationState) error {
				current := st.MessageCount
				time.Sleep(time.Microsecond)
				st.MessageCount = current + 1
				return nil
			})
		}()
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		total += s.Get(ctx, "u"+fmt.Sprint(i)).MessageCount
	}
	assert.Equal(t, n, total)
}

func TestStore_SweepRemovesOnlyExpired(t *testing.T) {
	clock := newClock()
	repo := newFakeRepo()
	s := newStore(clock, state.WithRepository(repo))
	ctx := context.Background()

	s.Update(ctx, "old", func(st *domain.ConversationState) { st.Greeted = true })
	clock.Advance(20 * time.Minute)
	s.Update(ctx, "recent", func(st *domain.ConversationState) { st.Greeted = true })
	clock.Advance(11 * time.Minute)

	assert.Equal(t, 1, s.Sweep(ctx))
	assert.Equal(t, 1, s.Len())

	_, ok := s.Peek("old")
	assert.False(t, ok)
	st, ok := s.Peek("recent")
	require.True(t, ok)
	assert.True(t, st.Greeted)
	assert.Equal(t, []string{"old"}, repo.deletes)
}

func TestStore_SweepSkipsRecordsInUse(t *testing.T) {
	clock := newClock()
	s := newStore(clock)
	ctx := context.Background()

	s.Update(ctx, "idle", func(st *domain.ConversationState) {})
	s.Update(ctx, "busy", func(st *domain.ConversationState) {})

	_, err := s.Do(ctx, "busy", func(st *domain.ConversationState) error {
		clock.Advance(time.Hour)
		removed := s.Sweep(ctx)
		assert.Equal(t, 1, removed, "only the idle record can be swept")
		st.Greeted = true
		return nil
	})
	require.NoError(t, err)

	st, ok := s.Peek("busy")
	require.True(t, ok)
	assert.True(t, st.Greeted)
	assert.Equal(t, 1, s.Len())
}

func TestStore_PeekDoesNotCreate(t *testing.T) {
	s := newStore(newClock())
	_, ok := s.Peek("nobody")
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestStore_LoadsAndSavesThroughRepository(t *testing.T) {
	clock := newClock()
	repo := newFakeRepo()
	saved := domain.NewConversationState("u1", clock.Now().Add(-time.Minute))
	saved.Topic = domain.TopicLanding
	saved.Greeted = true
	repo.states["u1"] = saved

	s := newStore(clock, state.WithRepository(repo))
	ctx := context.Background()

	st := s.Get(ctx, "u1")
	assert.Equal(t, domain.TopicLanding, st.Topic)
	assert.True(t, st.Greeted)

	s.Update(ctx, "u1", func(st *domain.ConversationState) { st.Plan = "premium" })
	assert.Equal(t, "premium", repo.states["u1"].Plan)
	assert.Equal(t, clock.Now(), repo.states["u1"].LastActivity)
}

func TestStore_ExpiredRepositoryStateIsReset(t *testing.T) {
	clock := newClock()
	repo := newFakeRepo()
	saved := domain.NewConversationState("u1", clock.Now().Add(-31*time.Minute))
	saved.Greeted = true
	repo.states["u1"] = saved

	s := newStore(clock, state.WithRepository(repo))
	assert.False(t, s.Get(context.Background(), "u1").Greeted)
}

func TestStore_RepositoryFailuresDegrade(t *testing.T) {
	clock := newClock()
	repo := newFakeRepo()
	repo.loadErr = errors.New("redis: connection refused")
	repo.saveErr = errors.New("redis: connection refused")

	s := newStore(clock, state.WithRepository(repo))
	ctx := context.Background()

	st, err := s.Do(ctx, "u1", func(st *domain.ConversationState) error {
		st.Greeted = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, st.Greeted)
	assert.Equal(t, domain.StageInicio, st.Stage)
	assert.Equal(t, 1, repo.saves)
}

func TestStore_SweeperStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newClock()
	cfg := state.DefaultConfig()
	cfg.SweepInterval = 5 * time.Millisecond
	s := state.NewStore(cfg, zap.NewNop(), state.WithClock(clock.Now))

	s.Update(context.Background(), "u1", func(st *domain.ConversationState) {})
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := s.StartSweeper(ctx)

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
