package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/service"
)

type echoHandler struct{}

func (echoHandler) HandleMessage(_ context.Context, utt domain.Utterance) (*domain.TurnResult, error) {
	if utt.UserID == "" {
		return nil, errors.New("missing user")
	}
	return &domain.TurnResult{UserID: utt.UserID, ResponseText: "eco: " + utt.Text}, nil
}

type recordingSender struct {
	mu     sync.Mutex
	sent   map[string][]string
	failOn string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: map[string][]string{}}
}

func (s *recordingSender) Send(_ context.Context, msg domain.OutboundMessage) error {
	if s.failOn != "" && strings.Contains(msg.Text, s.failOn) {
		return errors.New("webhook returned 503")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[msg.UserID] = append(s.sent[msg.UserID], msg.Text)
	return nil
}

func (s *recordingSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msgs := range s.sent {
		n += len(msgs)
	}
	return n
}

func TestDispatcher_PreservesPerUserOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := newRecordingSender()
	d := service.NewDispatcher(echoHandler{}, sender, 4, 8, nil, zap.NewNop())
	d.Start(context.Background())

	users := []string{"u1", "u2", "u3", "u4", "u5"}
	const perUser = 30

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				err := d.Enqueue(context.Background(), domain.InboundMessage{UserID: u, Text: fmt.Sprint(i)})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	d.Stop()

	require.Equal(t, len(users)*perUser, sender.total())
	for _, u := range users {
		got := sender.sent[u]
		require.Len(t, got, perUser)
		for i, text := range got {
			assert.Equal(t, fmt.Sprintf("eco: %d", i), text, "user %s out of order", u)
		}
	}
}

func TestDispatcher_SendFailureIsCounted(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := newRecordingSender()
	sender.failOn = "falha"
	metrics := newRecordingMetrics()
	d := service.NewDispatcher(echoHandler{}, sender, 1, 4, metrics, zap.NewNop())
	d.Start(context.Background())

	require.NoError(t, d.Enqueue(context.Background(), domain.InboundMessage{UserID: "u1", Text: "falha"}))
	require.NoError(t, d.Enqueue(context.Background(), domain.InboundMessage{UserID: "u1", Text: "ok"}))
	require.NoError(t, d.Enqueue(context.Background(), domain.InboundMessage{UserID: "", Text: "sem usuário"}))
	d.Stop()

	assert.Equal(t, []string{"eco: ok"}, sender.sent["u1"])
	assert.Equal(t, 1, metrics.errors["sender"])
}

func TestDispatcher_EnqueueAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := service.NewDispatcher(echoHandler{}, newRecordingSender(), 2, 1, nil, zap.NewNop())
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	err := d.Enqueue(context.Background(), domain.InboundMessage{UserID: "u1", Text: "oi"})
	assert.ErrorIs(t, err, service.ErrDispatcherStopped)
}

func TestDispatcher_EnqueueRespectsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Sem Start ninguém consome: a fila de tamanho 1 enche na segunda mensagem.
	d := service.NewDispatcher(echoHandler{}, newRecordingSender(), 1, 1, nil, zap.NewNop())
	require.NoError(t, d.Enqueue(context.Background(), domain.InboundMessage{UserID: "u1", Text: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Enqueue(ctx, domain.InboundMessage{UserID: "u1", Text: "2"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	d.Stop()
}

func TestDispatcher_WithChatService(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	sender := newRecordingSender()
	d := service.NewDispatcher(f.svc, sender, 2, 4, nil, zap.NewNop())
	d.Start(context.Background())

	require.NoError(t, d.Enqueue(context.Background(), domain.InboundMessage{UserID: user, Text: "oi"}))
	d.Stop()

	require.Len(t, sender.sent[user], 1)
	assert.Contains(t, sender.sent[user][0], f.cat.Company.Name)
}
