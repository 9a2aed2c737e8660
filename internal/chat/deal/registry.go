// Package deal implementa a máquina de estados das negociações.
//
// Uma Deal nasce quando a proposta é gerada (proposal_sent) e só anda
// para frente: payment_method_chosen → payment_confirmed →
// contract_generated. Cada transição acrescenta uma entrada ao StageLog,
// que nunca é reescrito. Se o cliente recomeçar a negociação, uma nova
// Deal substitui a anterior como ativa; a antiga continua acessível pelo id.
package deal

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/vendas-bot-go/internal/chat/catalog"
	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
	maindomain "github.com/boddenberg/vendas-bot-go/internal/domain"
)

var tracer = otel.Tracer("chat/deal")

// TransitionObserver recebe cada transição registrada (métricas).
type TransitionObserver interface {
	RecordDealTransition(status string)
}

// CreateRequest são os dados necessários para abrir uma Deal.
type CreateRequest struct {
	UserID          string
	Product         domain.Topic
	Plan            string
	ListPrice       float64
	DiscountPercent float64
	Client          domain.EntitySet
}

// Registry guarda as Deals por usuário (a ativa) e por id (todas).
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]*domain.Deal
	byID   map[string]*domain.Deal

	repo     port.DealRepository
	observer TransitionObserver
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger

	repoTimeout time.Duration
}

// Option configura o Registry.
type Option func(*Registry)

// WithRepository liga a persistência durável das Deals.
func WithRepository(repo port.DealRepository) Option {
	return func(r *Registry) { r.repo = repo }
}

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator troca o gerador de ids (testes).
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithTransitionObserver registra quem acompanha as transições.
func WithTransitionObserver(o TransitionObserver) Option {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry cria um Registry vazio.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		byUser:      make(map[string]*domain.Deal),
		byID:        make(map[string]*domain.Deal),
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logger,
		repoTimeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FinalPrice aplica o desconto ao preço de tabela.
func FinalPrice(listPrice, discountPercent float64) float64 {
	return listPrice * (1 - discountPercent/100)
}

// CreateDeal abre uma nova Deal em proposal_sent e a torna a ativa do usuário.
func (r *Registry) CreateDeal(ctx context.Context, req CreateRequest) (*domain.Deal, error) {
	ctx, span := tracer.Start(ctx, "Registry.CreateDeal")
	defer span.End()

	switch {
	case req.UserID == "":
		return nil, &maindomain.ErrValidation{Field: "userId", Message: "required"}
	case req.Product == domain.TopicNone:
		return nil, &maindomain.ErrValidation{Field: "product", Message: "required"}
	case req.Plan == "":
		return nil, &maindomain.ErrValidation{Field: "plan", Message: "required"}
	case req.ListPrice <= 0:
		return nil, &maindomain.ErrValidation{Field: "listPrice", Message: "must be positive"}
	case req.DiscountPercent < 0 || req.DiscountPercent > 100:
		return nil, &maindomain.ErrValidation{Field: "discountPercent", Message: "must be between 0 and 100"}
	}

	now := r.now()
	d := &domain.Deal{
		ID:              r.newID(),
		UserID:          req.UserID,
		Status:          domain.DealProposalSent,
		Product:         req.Product,
		Plan:            req.Plan,
		ListPrice:       req.ListPrice,
		DiscountPercent: req.DiscountPercent,
		FinalPrice:      FinalPrice(req.ListPrice, req.DiscountPercent),
		ClientName:      req.Client.Name,
		ClientEmail:     req.Client.Email,
		ClientPhone:     req.Client.Phone,
		ClientCompany:   req.Client.Company,
		StageLog: []domain.StageLogEntry{
			{Stage: domain.DealProposalSent, At: now, Note: "proposta gerada"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	if prev, ok := r.byUser[req.UserID]; ok {
		r.logger.Info("deal superseded",
			zap.String("user_id", req.UserID),
			zap.String("previous_deal_id", prev.ID),
			zap.String("previous_status", string(prev.Status)),
		)
	}
	r.byUser[req.UserID] = d
	r.byID[d.ID] = d
	out := d.Clone()
	r.mu.Unlock()

	r.logger.Info("deal created",
		zap.String("deal_id", out.ID),
		zap.String("user_id", out.UserID),
		zap.String("product", string(out.Product)),
		zap.String("plan", out.Plan),
		zap.Float64("final_price", out.FinalPrice),
	)
	r.observe(out.Status)
	r.persist(ctx, out)
	return out, nil
}

// Active devolve a Deal ativa do usuário, ou nil se não houver.
// Consulta o repositório quando a Deal não está em memória.
func (r *Registry) Active(ctx context.Context, userID string) *domain.Deal {
	r.mu.RLock()
	d, ok := r.byUser[userID]
	var out *domain.Deal
	if ok {
		out = d.Clone()
	}
	r.mu.RUnlock()
	if ok || r.repo == nil {
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, r.repoTimeout)
	defer cancel()
	loaded, err := r.repo.FindLatestByUser(ctx, userID)
	if err != nil {
		r.logger.Warn("deal lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if loaded == nil {
		return nil
	}
	return r.adopt(loaded)
}

// Status devolve o status da Deal ativa (none quando não há).
func (r *Registry) Status(ctx context.Context, userID string) domain.DealStatus {
	if d := r.Active(ctx, userID); d != nil {
		return d.Status
	}
	return domain.DealNone
}

// ByID busca qualquer Deal (ativa ou substituída) pelo id.
func (r *Registry) ByID(ctx context.Context, dealID string) (*domain.Deal, error) {
	r.mu.RLock()
	d, ok := r.byID[dealID]
	var out *domain.Deal
	if ok {
		out = d.Clone()
	}
	r.mu.RUnlock()
	if ok {
		return out, nil
	}

	if r.repo != nil {
		ctx, cancel := context.WithTimeout(ctx, r.repoTimeout)
		defer cancel()
		loaded, err := r.repo.FindByID(ctx, dealID)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			r.mu.Lock()
			if _, exists := r.byID[loaded.ID]; !exists {
				r.byID[loaded.ID] = loaded.Clone()
			}
			r.mu.Unlock()
			return loaded, nil
		}
	}
	return nil, &maindomain.ErrNotFound{Resource: "deal", ID: dealID}
}

// ApplyDiscount define o desconto da Deal e recalcula o preço final.
// Reaplicar o mesmo percentual não altera nada.
func (r *Registry) ApplyDiscount(ctx context.Context, dealID string, percent float64) (*domain.Deal, error) {
	if percent < 0 || percent > 100 {
		return nil, &maindomain.ErrValidation{Field: "discountPercent", Message: "must be between 0 and 100"}
	}
	return r.mutate(ctx, dealID, func(d *domain.Deal) (bool, error) {
		if d.DiscountPercent == percent {
			return false, nil
		}
		if d.Status.AtLeast(domain.DealPaymentConfirmed) {
			return false, &maindomain.ErrInvalidTransition{DealID: d.ID, From: string(d.Status), To: "discount"}
		}
		d.DiscountPercent = percent
		d.FinalPrice = FinalPrice(d.ListPrice, percent)
		d.StageLog = append(d.StageLog, domain.StageLogEntry{
			Stage: d.Status,
			At:    r.now(),
			Note:  "desconto de " + catalog.FormatPercent(percent),
		})
		return true, nil
	})
}

// ChoosePayment registra a forma de pagamento. Trocar de forma antes da
// confirmação é permitido e fica registrado no log.
func (r *Registry) ChoosePayment(ctx context.Context, dealID string, method domain.PaymentMethod, installments int) (*domain.Deal, error) {
	if method == domain.PaymentNone {
		return nil, &maindomain.ErrValidation{Field: "paymentMethod", Message: "required"}
	}
	return r.mutate(ctx, dealID, func(d *domain.Deal) (bool, error) {
		switch d.Status {
		case domain.DealProposalSent, domain.DealPaymentMethodChosen:
		default:
			return false, &maindomain.ErrInvalidTransition{DealID: d.ID, From: string(d.Status), To: string(domain.DealPaymentMethodChosen)}
		}
		if d.Status == domain.DealPaymentMethodChosen && d.PaymentMethod == method && d.Installments == installments {
			return false, nil
		}
		note := "forma de pagamento: " + string(method)
		if d.Status == domain.DealPaymentMethodChosen {
			note = "forma de pagamento alterada: " + string(d.PaymentMethod) + " -> " + string(method)
		}
		d.Status = domain.DealPaymentMethodChosen
		d.PaymentMethod = method
		d.Installments = installments
		d.StageLog = append(d.StageLog, domain.StageLogEntry{Stage: d.Status, At: r.now(), Note: note})
		return true, nil
	})
}

// SetInstallments registra o número de parcelas do cartão.
func (r *Registry) SetInstallments(ctx context.Context, dealID string, n, maxInstallments int) (*domain.Deal, error) {
	if n < 1 || (maxInstallments > 0 && n > maxInstallments) {
		return nil, &maindomain.ErrValidation{Field: "installments", Message: "out of range"}
	}
	return r.mutate(ctx, dealID, func(d *domain.Deal) (bool, error) {
		if d.Status != domain.DealPaymentMethodChosen || d.PaymentMethod != domain.PaymentCard {
			return false, &maindomain.ErrInvalidTransition{DealID: d.ID, From: string(d.Status), To: "installments"}
		}
		if d.Installments == n {
			return false, nil
		}
		d.Installments = n
		d.StageLog = append(d.StageLog, domain.StageLogEntry{Stage: d.Status, At: r.now(), Note: "parcelas: " + strconv.Itoa(n)})
		return true, nil
	})
}

// Advance move a Deal para o próximo status. Só a transição para o
// status imediatamente seguinte é aceita.
func (r *Registry) Advance(ctx context.Context, dealID string, to domain.DealStatus, note string) (*domain.Deal, error) {
	ctx, span := tracer.Start(ctx, "Registry.Advance")
	defer span.End()

	return r.mutate(ctx, dealID, func(d *domain.Deal) (bool, error) {
		next, ok := d.Status.Next()
		if !ok || next != to {
			return false, &maindomain.ErrInvalidTransition{DealID: d.ID, From: string(d.Status), To: string(to)}
		}
		d.Status = to
		d.StageLog = append(d.StageLog, domain.StageLogEntry{Stage: to, At: r.now(), Note: note})
		return true, nil
	})
}

// Len devolve quantas Deals estão em memória.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// mutate aplica fn à Deal sob o lock. fn devolve changed=false para não
// persistir nem logar nada.
func (r *Registry) mutate(ctx context.Context, dealID string, fn func(d *domain.Deal) (bool, error)) (*domain.Deal, error) {
	if _, err := r.ByID(ctx, dealID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	d := r.byID[dealID]
	before := d.Status
	changed, err := fn(d)
	if changed {
		d.UpdatedAt = r.now()
	}
	out := d.Clone()
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("deal transition rejected", zap.String("deal_id", dealID), zap.Error(err))
		return nil, err
	}
	if changed {
		if out.Status != before {
			r.logger.Info("deal advanced",
				zap.String("deal_id", out.ID),
				zap.String("from", string(before)),
				zap.String("to", string(out.Status)),
			)
		}
		r.observe(out.Status)
		r.persist(ctx, out)
	}
	return out, nil
}

// adopt coloca em memória uma Deal vinda do repositório.
func (r *Registry) adopt(d *domain.Deal) *domain.Deal {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byUser[d.UserID]; ok {
		return cur.Clone()
	}
	if cur, ok := r.byID[d.ID]; ok {
		r.byUser[d.UserID] = cur
		return cur.Clone()
	}
	own := d.Clone()
	r.byUser[d.UserID] = own
	r.byID[d.ID] = own
	return own.Clone()
}

func (r *Registry) observe(status domain.DealStatus) {
	if r.observer != nil {
		r.observer.RecordDealTransition(string(status))
	}
}

func (r *Registry) persist(ctx context.Context, d *domain.Deal) {
	if r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.repoTimeout)
	defer cancel()
	if err := r.repo.Save(ctx, d); err != nil {
		r.logger.Warn("deal save failed", zap.String("deal_id", d.ID), zap.Error(err))
	}
}
