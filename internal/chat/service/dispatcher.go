package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
)

// ErrDispatcherStopped é devolvido por Enqueue depois de Stop.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// MessageHandler processa um turno (implementado pelo ChatService).
type MessageHandler interface {
	HandleMessage(ctx context.Context, utt domain.Utterance) (*domain.TurnResult, error)
}

// DispatchMetrics é o que o Dispatcher registra.
type DispatchMetrics interface {
	IncrExternalError(service string)
	RecordRequestDuration(operation string, d time.Duration)
}

// Dispatcher distribui as mensagens de entrada em N filas por hash do
// userId. Cada fila tem um único worker: mensagens do mesmo usuário
// saem na ordem em que chegaram, usuários diferentes andam em paralelo.
type Dispatcher struct {
	handler MessageHandler
	sender  port.Sender
	metrics DispatchMetrics
	logger  *zap.Logger

	queues   []chan domain.InboundMessage
	stopping chan struct{}
	mu       sync.RWMutex
	started  bool
	closed   bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher cria o Dispatcher com workers filas de tamanho queueSize.
func NewDispatcher(handler MessageHandler, sender port.Sender, workers, queueSize int, metrics DispatchMetrics, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	queues := make([]chan domain.InboundMessage, workers)
	for i := range queues {
		queues[i] = make(chan domain.InboundMessage, queueSize)
	}
	return &Dispatcher{
		handler:  handler,
		sender:   sender,
		metrics:  metrics,
		logger:   logger,
		queues:   queues,
		stopping: make(chan struct{}),
	}
}

// Start sobe um worker por fila. ctx é repassado aos turnos.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i, q := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, i, q)
	}
	d.logger.Info("dispatcher started", zap.Int("workers", len(d.queues)))
}

// Enqueue coloca a mensagem na fila do usuário. Bloqueia se a fila
// estiver cheia, até ctx expirar ou o Dispatcher parar.
func (d *Dispatcher) Enqueue(ctx context.Context, msg domain.InboundMessage) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherStopped
	}
	q := d.queues[d.shard(msg.UserID)]
	select {
	case q <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopping:
		return ErrDispatcherStopped
	}
}

// Stop fecha as filas e espera os workers drenarem o que já foi aceito.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopping)

		d.mu.Lock()
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
		d.mu.Unlock()

		d.wg.Wait()
		d.logger.Info("dispatcher stopped")
	})
}

func (d *Dispatcher) shard(userID string) int {
	return int(xxhash.Sum64String(userID) % uint64(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, id int, q <-chan domain.InboundMessage) {
	defer d.wg.Done()
	for msg := range q {
		d.process(ctx, id, msg)
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, msg domain.InboundMessage) {
	start := time.Now()
	res, err := d.handler.HandleMessage(ctx, domain.Utterance{
		UserID:      msg.UserID,
		Text:        msg.Text,
		DisplayName: msg.DisplayName,
		ReceivedAt:  start,
	})
	if err != nil {
		d.logger.Warn("inbound message rejected",
			zap.Int("worker", worker),
			zap.String("message_id", msg.ID),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return
	}
	if d.sender == nil || res.ResponseText == "" {
		return
	}
	if err := d.sender.Send(ctx, domain.OutboundMessage{UserID: res.UserID, Text: res.ResponseText}); err != nil {
		d.metrics.IncrExternalError("sender")
		d.logger.Error("outbound send failed",
			zap.String("message_id", msg.ID),
			zap.String("user_id", msg.UserID),
			zap.String("action", string(res.Action)),
			zap.Error(err),
		)
		return
	}
	d.metrics.RecordRequestDuration("dispatch", time.Since(start))
}
