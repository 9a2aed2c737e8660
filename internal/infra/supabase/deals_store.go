package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	chatdomain "github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Deals store (implements chat/port.DealRepository)
// ============================================================
//
// Table "deals": one row per deal, stage_log as jsonb. Deals are never
// deleted; Save upserts on id.

const defaultDealsTable = "deals"

var _ port.DealRepository = (*DealsStore)(nil)

type supabaseDeal struct {
	ID              string                     `json:"id"`
	UserID          string                     `json:"user_id"`
	Status          string                     `json:"status"`
	Product         string                     `json:"product"`
	Plan            string                     `json:"plan"`
	ListPrice       float64                    `json:"list_price"`
	DiscountPercent float64                    `json:"discount_percent"`
	FinalPrice      float64                    `json:"final_price"`
	PaymentMethod   string                     `json:"payment_method"`
	Installments    int                        `json:"installments"`
	ClientName      string                     `json:"client_name"`
	ClientEmail     string                     `json:"client_email"`
	ClientPhone     string                     `json:"client_phone"`
	ClientCompany   string                     `json:"client_company"`
	StageLog        []chatdomain.StageLogEntry `json:"stage_log"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// DealsStore persists deals in Supabase.
type DealsStore struct {
	client *Client
	table  string
}

// NewDealsStore creates the store. An empty table uses "deals".
func NewDealsStore(client *Client, table string) *DealsStore {
	if table == "" {
		table = defaultDealsTable
	}
	return &DealsStore{client: client, table: table}
}

// Ping checks the deals table is reachable.
func (s *DealsStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, s.table)
}

// Save upserts the whole deal.
func (s *DealsStore) Save(ctx context.Context, d *chatdomain.Deal) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveDeal")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", d.ID))

	row := toSupabaseDeal(d)
	_, err := s.client.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.client.cfg, func() error {
			_, err := s.client.doUpsert(ctx, s.table, "id", row)
			return err
		})
	})
	if err != nil {
		return resilience.ExternalError("supabase/deals", err)
	}
	return nil
}

// FindByID returns (nil, nil) when the deal does not exist.
func (s *DealsStore) FindByID(ctx context.Context, dealID string) (*chatdomain.Deal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindDealByID")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", dealID))

	path := fmt.Sprintf("%s?id=eq.%s&limit=1", s.table, url.QueryEscape(dealID))
	return s.findOne(ctx, path)
}

// FindLatestByUser returns the most recently updated deal of the user.
func (s *DealsStore) FindLatestByUser(ctx context.Context, userID string) (*chatdomain.Deal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindLatestDeal")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("%s?user_id=eq.%s&order=updated_at.desc&limit=1", s.table, url.QueryEscape(userID))
	return s.findOne(ctx, path)
}

func (s *DealsStore) findOne(ctx context.Context, path string) (*chatdomain.Deal, error) {
	var deal *chatdomain.Deal

	_, err := s.client.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.client.cfg, func() error {
			body, err := s.client.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				deal = nil
				return nil
			}

			var rows []supabaseDeal
			if err := json.Unmarshal(body, &rows); err != nil {
				return resilience.Permanent(fmt.Errorf("failed to decode deals: %w", err))
			}
			if len(rows) == 0 {
				deal = nil
				return nil
			}
			deal = fromSupabaseDeal(rows[0])
			return nil
		})
	})
	if err != nil {
		return nil, resilience.ExternalError("supabase/deals", err)
	}
	return deal, nil
}

func toSupabaseDeal(d *chatdomain.Deal) supabaseDeal {
	return supabaseDeal{
		ID:              d.ID,
		UserID:          d.UserID,
		Status:          string(d.Status),
		Product:         string(d.Product),
		Plan:            d.Plan,
		ListPrice:       d.ListPrice,
		DiscountPercent: d.DiscountPercent,
		FinalPrice:      d.FinalPrice,
		PaymentMethod:   string(d.PaymentMethod),
		Installments:    d.Installments,
		ClientName:      d.ClientName,
		ClientEmail:     d.ClientEmail,
		ClientPhone:     d.ClientPhone,
		ClientCompany:   d.ClientCompany,
		StageLog:        d.StageLog,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

func fromSupabaseDeal(r supabaseDeal) *chatdomain.Deal {
	return &chatdomain.Deal{
		ID:              r.ID,
		UserID:          r.UserID,
		Status:          chatdomain.DealStatus(r.Status),
		Product:         chatdomain.Topic(r.Product),
		Plan:            r.Plan,
		ListPrice:       r.ListPrice,
		DiscountPercent: r.DiscountPercent,
		FinalPrice:      r.FinalPrice,
		PaymentMethod:   chatdomain.PaymentMethod(r.PaymentMethod),
		Installments:    r.Installments,
		ClientName:      r.ClientName,
		ClientEmail:     r.ClientEmail,
		ClientPhone:     r.ClientPhone,
		ClientCompany:   r.ClientCompany,
		StageLog:        r.StageLog,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
