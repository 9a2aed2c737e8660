package domain

import "time"

// DealStatus é o estágio de uma negociação. Linear e só para frente.
type DealStatus string

const (
	DealNone                DealStatus = "none"
	DealProposalSent        DealStatus = "proposal_sent"
	DealPaymentMethodChosen DealStatus = "payment_method_chosen"
	DealPaymentConfirmed    DealStatus = "payment_confirmed"
	DealContractGenerated   DealStatus = "contract_generated"
)

var dealOrder = []DealStatus{
	DealNone,
	DealProposalSent,
	DealPaymentMethodChosen,
	DealPaymentConfirmed,
	DealContractGenerated,
}

// Rank devolve a posição do status na sequência (-1 se desconhecido).
func (s DealStatus) Rank() int {
	for i, st := range dealOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next devolve o próximo status da sequência.
func (s DealStatus) Next() (DealStatus, bool) {
	r := s.Rank()
	if r < 0 || r+1 >= len(dealOrder) {
		return "", false
	}
	return dealOrder[r+1], true
}

// AtLeast é true quando s está em other ou depois dele.
func (s DealStatus) AtLeast(other DealStatus) bool {
	return s.Rank() >= other.Rank()
}

// StageLogEntry é um item do log append-only de uma Deal.
type StageLogEntry struct {
	Stage DealStatus `json:"stage"`
	At    time.Time  `json:"at"`
	Note  string     `json:"note,omitempty"`
}

// Deal é uma negociação comercial.
//
// Invariante: FinalPrice == ListPrice * (1 - DiscountPercent/100).
type Deal struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Status          DealStatus      `json:"status"`
	Product         Topic           `json:"product"`
	Plan            string          `json:"plan"`
	ListPrice       float64         `json:"listPrice"`
	DiscountPercent float64         `json:"discountPercent"`
	FinalPrice      float64         `json:"finalPrice"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod,omitempty"`
	Installments    int             `json:"installments,omitempty"`
	ClientName      string          `json:"clientName,omitempty"`
	ClientEmail     string          `json:"clientEmail,omitempty"`
	ClientPhone     string          `json:"clientPhone,omitempty"`
	ClientCompany   string          `json:"clientCompany,omitempty"`
	StageLog        []StageLogEntry `json:"stageLog"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Clone devolve uma cópia com StageLog próprio.
func (d *Deal) Clone() *Deal {
	if d == nil {
		return nil
	}
	c := *d
	c.StageLog = append([]StageLogEntry(nil), d.StageLog...)
	return &c
}
