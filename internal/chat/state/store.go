// Package state é o dono exclusivo do ConversationState de cada usuário.
//
// Todo acesso a um usuário passa por um lock próprio daquele usuário:
// mensagens do mesmo usuário são processadas uma de cada vez, usuários
// diferentes seguem em paralelo. O mapa de registros fica atrás de um
// RWMutex e a varredura de sessões expiradas só remove registros
// inteiros, nunca mexe em um registro que esteja em uso.
package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
)

// Config controla o ciclo de vida das sessões.
type Config struct {
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	HistorySize    int
	HistoryTextMax int
	// RepoTimeout limita cada leitura/escrita no repositório durável.
	RepoTimeout time.Duration
}

// DefaultConfig devolve os valores padrão (30 minutos de inatividade).
func DefaultConfig() Config {
	return Config{
		IdleTimeout:    30 * time.Minute,
		SweepInterval:  time.Minute,
		HistorySize:    10,
		HistoryTextMax: 200,
		RepoTimeout:    300 * time.Millisecond,
	}
}

type record struct {
	mu      sync.Mutex
	state   domain.ConversationState
	loaded  bool
	deleted bool
}

// Store guarda os estados em memória, com persistência opcional.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record

	cfg    Config
	repo   port.StateRepository
	now    func() time.Time
	logger *zap.Logger
}

// Option configura o Store.
type Option func(*Store)

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRepository liga a persistência durável. Falhas do repositório
// nunca interrompem uma conversa: o estado segue em memória.
func WithRepository(repo port.StateRepository) Option {
	return func(s *Store) { s.repo = repo }
}

// NewStore cria um Store vazio.
func NewStore(cfg Config, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*record),
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire devolve o registro do usuário já travado. Se a varredura
// removeu o registro entre a busca e o lock, tenta de novo.
func (s *Store) acquire(userID string) *record {
	for {
		s.mu.RLock()
		rec, ok := s.records[userID]
		s.mu.RUnlock()

		if !ok {
			s.mu.Lock()
			rec, ok = s.records[userID]
			if !ok {
				rec = &record{}
				s.records[userID] = rec
			}
			s.mu.Unlock()
		}

		rec.mu.Lock()
		if !rec.deleted {
			return rec
		}
		rec.mu.Unlock()
	}
}

// prepare carrega o estado salvo e reinicia sessões expiradas.
// Chamado com rec.mu travado.
func (s *Store) prepare(ctx context.Context, rec *record, userID string, now time.Time) {
	if !rec.loaded {
		rec.state = s.load(ctx, userID, now)
		rec.loaded = true
	}
	if rec.state.Expired(now, s.cfg.IdleTimeout) {
		s.logger.Debug("session expired, starting fresh",
			zap.String("user_id", userID),
			zap.Time("last_activity", rec.state.LastActivity),
		)
		rec.state = domain.NewConversationState(userID, now)
	}
}

// Do executa fn com acesso exclusivo ao estado do usuário. Ao final,
// LastActivity é atualizado e o estado é persistido. Se fn falhar,
// as alterações feitas por ela são descartadas.
func (s *Store) Do(ctx context.Context, userID string, fn func(st *domain.ConversationState) error) (domain.ConversationState, error) {
	rec := s.acquire(userID)
	defer rec.mu.Unlock()

	now := s.now()
	s.prepare(ctx, rec, userID, now)

	working := rec.state.Clone()
	if err := fn(&working); err != nil {
		return rec.state.Clone(), err
	}
	working.UserID = userID
	working.LastActivity = s.now()
	rec.state = working

	s.save(ctx, rec.state)
	return rec.state.Clone(), nil
}

// Get devolve o estado do usuário, criando um novo se não existir ou se
// tiver expirado. Não conta como atividade.
func (s *Store) Get(ctx context.Context, userID string) domain.ConversationState {
	rec := s.acquire(userID)
	defer rec.mu.Unlock()

	s.prepare(ctx, rec, userID, s.now())
	return rec.state.Clone()
}

// Peek devolve o estado em memória sem criar nada.
func (s *Store) Peek(userID string) (domain.ConversationState, bool) {
	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	if !ok {
		return domain.ConversationState{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted || !rec.loaded || rec.state.Expired(s.now(), s.cfg.IdleTimeout) {
		return domain.ConversationState{}, false
	}
	return rec.state.Clone(), true
}

// Update aplica patch ao estado do usuário.
func (s *Store) Update(ctx context.Context, userID string, patch func(st *domain.ConversationState)) domain.ConversationState {
	st, _ := s.Do(ctx, userID, func(st *domain.ConversationState) error {
		patch(st)
		return nil
	})
	return st
}

// AppendHistory registra uma troca no ring buffer do usuário.
func (s *Store) AppendHistory(ctx context.Context, userID, intent, text string) domain.ConversationState {
	return s.Update(ctx, userID, func(st *domain.ConversationState) {
		st.PushHistory(intent, text, s.now(), s.cfg.HistorySize, s.cfg.HistoryTextMax)
	})
}

// PushHistory aplica o tamanho de histórico configurado a st.
// Para uso dentro de Do.
func (s *Store) PushHistory(st *domain.ConversationState, intent, text string) {
	st.PushHistory(intent, text, s.now(), s.cfg.HistorySize, s.cfg.HistoryTextMax)
}

// Len devolve quantas sessões estão em memória.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Sweep remove todas as sessões inativas há mais de IdleTimeout e devolve
// quantas foram removidas. Registros em uso são pulados e ficam para a
// próxima rodada.
func (s *Store) Sweep(ctx context.Context) int {
	now := s.now()

	s.mu.RLock()
	candidates := make(map[string]*record, len(s.records))
	for id, rec := range s.records {
		candidates[id] = rec
	}
	s.mu.RUnlock()

	removed := 0
	for id, rec := range candidates {
		if !rec.mu.TryLock() {
			continue
		}
		if !rec.deleted && rec.loaded && rec.state.Expired(now, s.cfg.IdleTimeout) {
			rec.deleted = true
			s.mu.Lock()
			if s.records[id] == rec {
				delete(s.records, id)
			}
			s.mu.Unlock()
			removed++
			s.forget(ctx, id)
		}
		rec.mu.Unlock()
	}

	if removed > 0 {
		s.logger.Info("expired sessions swept", zap.Int("removed", removed), zap.Int("remaining", s.Len()))
	}
	return removed
}

// StartSweeper roda Sweep a cada SweepInterval até ctx ser cancelado.
// O canal devolvido fecha quando a goroutine termina.
func (s *Store) StartSweeper(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
	return done
}

func (s *Store) load(ctx context.Context, userID string, now time.Time) domain.ConversationState {
	fresh := domain.NewConversationState(userID, now)
	if s.repo == nil {
		return fresh
	}
	ctx, cancel := s.repoContext(ctx)
	defer cancel()

	st, err := s.repo.Load(ctx, userID)
	if err != nil {
		s.logger.Warn("state load failed, using default state", zap.String("user_id", userID), zap.Error(err))
		return fresh
	}
	if st == nil {
		return fresh
	}
	if st.History == nil {
		st.History = []domain.HistoryEntry{}
	}
	return *st
}

func (s *Store) save(ctx context.Context, st domain.ConversationState) {
	if s.repo == nil {
		return
	}
	ctx, cancel := s.repoContext(ctx)
	defer cancel()

	if err := s.repo.Save(ctx, &st); err != nil {
		s.logger.Warn("state save failed", zap.String("user_id", st.UserID), zap.Error(err))
	}
}

func (s *Store) forget(ctx context.Context, userID string) {
	if s.repo == nil {
		return
	}
	ctx, cancel := s.repoContext(ctx)
	defer cancel()

	if err := s.repo.Delete(ctx, userID); err != nil {
		s.logger.Warn("state delete failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Store) repoContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RepoTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RepoTimeout)
}
