package deal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/chat/catalog"
	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

const dateLayout = "02/01/2006"

// ArtifactView são os campos disponíveis nos templates de artefatos.
type ArtifactView struct {
	DealID        string
	ClientName    string
	ClientCompany string
	ClientEmail   string

	Service      string
	Plan         string
	Features     string
	DeliveryDays int

	ListPrice    string
	HasDiscount  bool
	Discount     string
	FinalPrice   string
	ValidityDays int

	CompanyName string
	CompanyCNPJ string

	PaymentLabel     string
	Installments     int
	InstallmentValue string
	MaxInstallments  int

	PixKeyType string
	PixKey     string
	Bank       string
	Agency     string
	Account    string

	Date    string
	DueDate string
}

// ShortID é o identificador curto exibido nos artefatos.
func ShortID(id string) string {
	clean := strings.ReplaceAll(id, "-", "")
	if len(clean) > 8 {
		clean = clean[:8]
	}
	return strings.ToUpper(clean)
}

// InstallmentValue divide o preço final em n parcelas, arredondando ao centavo.
func InstallmentValue(finalPrice float64, n int) float64 {
	if n < 1 {
		n = 1
	}
	return math.Round(finalPrice/float64(n)*100) / 100
}

var paymentLabels = map[domain.PaymentMethod]string{
	domain.PaymentPix:    "Pix",
	domain.PaymentCard:   "cartão de crédito",
	domain.PaymentBoleto: "boleto bancário",
}

func newView(cat *catalog.Catalog, d *domain.Deal, at time.Time) ArtifactView {
	v := ArtifactView{
		DealID:          ShortID(d.ID),
		ClientName:      d.ClientName,
		ClientCompany:   d.ClientCompany,
		ClientEmail:     d.ClientEmail,
		Service:         string(d.Product),
		Plan:            d.Plan,
		ListPrice:       catalog.FormatBRL(d.ListPrice),
		HasDiscount:     d.DiscountPercent > 0,
		Discount:        catalog.FormatPercent(d.DiscountPercent),
		FinalPrice:      catalog.FormatBRL(d.FinalPrice),
		ValidityDays:    cat.Company.ProposalValidityDays,
		CompanyName:     cat.Company.Name,
		CompanyCNPJ:     cat.Company.CNPJ,
		PaymentLabel:    paymentLabels[d.PaymentMethod],
		Installments:    d.Installments,
		MaxInstallments: cat.Company.MaxInstallments,
		PixKeyType:      cat.Company.PixKeyType,
		PixKey:          cat.Company.PixKey,
		Bank:            cat.Company.Bank,
		Agency:          cat.Company.Agency,
		Account:         cat.Company.Account,
		Date:            at.Format(dateLayout),
		DueDate:         at.AddDate(0, 0, cat.Company.BoletoDueDays).Format(dateLayout),
	}
	if v.ClientName == "" {
		v.ClientName = "Cliente"
	}
	if svc, ok := cat.Service(d.Product); ok {
		v.Service = svc.Name
	}
	if p, ok := cat.Plan(d.Product, d.Plan); ok {
		v.Plan = p.Label
		v.Features = strings.Join(p.Features, ", ")
		v.DeliveryDays = p.DeliveryDays
	}
	if d.Installments > 0 {
		v.InstallmentValue = catalog.FormatBRL(InstallmentValue(d.FinalPrice, d.Installments))
	}
	return v
}

func render(cat *catalog.Catalog, name string, v ArtifactView) (string, error) {
	t, ok := cat.Artifacts[name]
	if !ok || t.Empty() {
		return "", fmt.Errorf("artifact template %q not found", name)
	}
	out, err := t.Render(nil, v)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return out, nil
}

// RenderProposal gera o texto da proposta comercial. Não altera a Deal.
func RenderProposal(cat *catalog.Catalog, d *domain.Deal) (string, error) {
	return render(cat, "proposal", newView(cat, d, d.CreatedAt))
}

// RenderContract gera o texto do contrato com data at.
func RenderContract(cat *catalog.Catalog, d *domain.Deal, at time.Time) (string, error) {
	return render(cat, "contract", newView(cat, d, at))
}

// RenderPaymentInstructions gera as instruções da forma de pagamento
// escolhida. Cartão sem parcelas definidas pergunta o número de parcelas.
func RenderPaymentInstructions(cat *catalog.Catalog, d *domain.Deal, at time.Time) (string, error) {
	v := newView(cat, d, at)
	switch d.PaymentMethod {
	case domain.PaymentPix:
		return render(cat, "pix", v)
	case domain.PaymentCard:
		if d.Installments < 1 {
			return render(cat, "card_ask_installments", v)
		}
		return render(cat, "card", v)
	case domain.PaymentBoleto:
		return render(cat, "boleto", v)
	}
	return "", fmt.Errorf("deal %s has no payment method", d.ID)
}
