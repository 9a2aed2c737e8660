package catalog

import (
	"strconv"
	"strings"
)

// View são os dados disponíveis para os templates de resposta.
type View struct {
	Name        string
	CompanyName string
	Service     string
	Plan        string
	Price       string
	FinalPrice  string
	Discount    string
	Options     string
	Prices      string
	Services    string
	Deadline    string

	Proposal     string
	Instructions string
	Contract     string

	Installments     int
	InstallmentValue string
	MaxInstallments  int
}

// FormatBRL formata um valor em reais: 1500 -> "R$ 1.500,00".
func FormatBRL(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}

// FormatPercent formata um percentual sem casas decimais inúteis: 10 -> "10%".
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

// PlanLines lista os planos de um serviço, um por linha, numerados.
func (s Service) PlanLines() string {
	var b strings.Builder
	for i, p := range s.Plans {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(") ")
		b.WriteString(p.Label)
		b.WriteString(" - ")
		b.WriteString(FormatBRL(p.Price))
		if len(p.Features) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(p.Features, ", "))
		}
	}
	return b.String()
}

// PriceTable resume o preço inicial de cada serviço.
func (c *Catalog) PriceTable() string {
	var b strings.Builder
	for i, s := range c.Services {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(s.Name)
		b.WriteString(": a partir de ")
		b.WriteString(FormatBRL(s.Plans[0].Price))
	}
	return b.String()
}

// ServiceNames lista os nomes dos serviços separados por vírgula.
func (c *Catalog) ServiceNames() string {
	names := make([]string, len(c.Services))
	for i, s := range c.Services {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}
