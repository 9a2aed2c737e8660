// Package catalog carrega os intents, os templates de resposta e o
// catálogo de serviços/planos usados pelo motor de vendas.
//
// O catálogo padrão vem embutido no binário (catalog.yaml) e pode ser
// substituído por um arquivo externo via CATALOG_PATH.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Intent descreve um intent conhecido pelo classificador.
type Intent struct {
	Name     string       `yaml:"name"`
	Priority int          `yaml:"priority"`
	Patterns []string     `yaml:"patterns"`
	Topic    domain.Topic `yaml:"topic,omitempty"`
	// Informational marca intents que têm resposta própria (ANSWER_INTENT).
	Informational bool     `yaml:"informational,omitempty"`
	Response      Template `yaml:"response,omitempty"`
}

// Plan é um plano de um serviço.
type Plan struct {
	Code         string   `yaml:"code"`
	Label        string   `yaml:"label"`
	Price        float64  `yaml:"price"`
	DeliveryDays int      `yaml:"deliveryDays"`
	Features     []string `yaml:"features"`
}

// Service é uma linha de serviço vendida pela empresa.
type Service struct {
	Topic       domain.Topic `yaml:"topic"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Plans       []Plan       `yaml:"plans"`
}

// Company são os dados usados nos artefatos (proposta, contrato, cobrança).
type Company struct {
	Name                 string `yaml:"name"`
	CNPJ                 string `yaml:"cnpj"`
	Email                string `yaml:"email"`
	Phone                string `yaml:"phone"`
	PixKey               string `yaml:"pixKey"`
	PixKeyType           string `yaml:"pixKeyType"`
	Bank                 string `yaml:"bank"`
	Agency               string `yaml:"agency"`
	Account              string `yaml:"account"`
	BoletoDueDays        int    `yaml:"boletoDueDays"`
	MaxInstallments      int    `yaml:"maxInstallments"`
	ProposalValidityDays int    `yaml:"proposalValidityDays"`
}

// Catalog é o conteúdo completo do arquivo de catálogo.
type Catalog struct {
	Company   Company                        `yaml:"company"`
	Services  []Service                      `yaml:"services"`
	Intents   []Intent                       `yaml:"intents"`
	Discounts []float64                      `yaml:"discounts"`
	Responses map[domain.ActionCode]Template `yaml:"responses"`
	Artifacts map[string]Template            `yaml:"artifacts"`
}

// Default devolve o catálogo embutido. Entra em pânico se o arquivo
// embutido for inválido, o que só acontece por erro de build.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog is invalid: %v", err))
	}
	return c
}

// Load lê o catálogo de path; com path vazio usa o embutido.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodifica e valida um catálogo YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Intents))
	for _, in := range c.Intents {
		if in.Name == "" {
			return fmt.Errorf("catalog: intent without name")
		}
		if seen[in.Name] {
			return fmt.Errorf("catalog: duplicated intent %q", in.Name)
		}
		seen[in.Name] = true
		if in.Informational && in.Response.Empty() {
			return fmt.Errorf("catalog: informational intent %q has no response", in.Name)
		}
	}
	for _, s := range c.Services {
		if len(s.Plans) == 0 {
			return fmt.Errorf("catalog: service %q has no plans", s.Topic)
		}
		for _, p := range s.Plans {
			if p.Price <= 0 {
				return fmt.Errorf("catalog: plan %s/%s must have a positive price", s.Topic, p.Code)
			}
		}
	}
	for i := 1; i < len(c.Discounts); i++ {
		if c.Discounts[i] <= c.Discounts[i-1] {
			return fmt.Errorf("catalog: discounts must be increasing")
		}
	}
	if c.Responses[domain.ActionFallback].Empty() {
		return fmt.Errorf("catalog: missing response for %s", domain.ActionFallback)
	}
	return nil
}

// Intent busca um intent pelo nome.
func (c *Catalog) Intent(name string) (Intent, bool) {
	for _, in := range c.Intents {
		if in.Name == name {
			return in, true
		}
	}
	return Intent{}, false
}

// Service busca o serviço de um tópico.
func (c *Catalog) Service(topic domain.Topic) (Service, bool) {
	for _, s := range c.Services {
		if s.Topic == topic {
			return s, true
		}
	}
	return Service{}, false
}

// Plan busca um plano pelo código (ou pelo rótulo, sem diferenciar caixa).
func (c *Catalog) Plan(topic domain.Topic, code string) (Plan, bool) {
	s, ok := c.Service(topic)
	if !ok {
		return Plan{}, false
	}
	for _, p := range s.Plans {
		if p.Code == code || strings.EqualFold(p.Label, code) {
			return p, true
		}
	}
	return Plan{}, false
}

// PlanByIndex devolve o n-ésimo plano (1-based) de um serviço.
func (c *Catalog) PlanByIndex(topic domain.Topic, n int) (Plan, bool) {
	s, ok := c.Service(topic)
	if !ok || n < 1 || n > len(s.Plans) {
		return Plan{}, false
	}
	return s.Plans[n-1], true
}

// Response devolve o template de uma ação, caindo no FALLBACK.
func (c *Catalog) Response(action domain.ActionCode) Template {
	if t, ok := c.Responses[action]; ok && !t.Empty() {
		return t
	}
	return c.Responses[domain.ActionFallback]
}

// NextDiscount devolve o próximo degrau de desconto acima de current.
// ok é false quando o desconto máximo já foi concedido.
func (c *Catalog) NextDiscount(current float64) (float64, bool) {
	for _, d := range c.Discounts {
		if d > current {
			return d, true
		}
	}
	return 0, false
}

// MaxDiscount é o último degrau da escada de descontos.
func (c *Catalog) MaxDiscount() float64 {
	if len(c.Discounts) == 0 {
		return 0
	}
	return c.Discounts[len(c.Discounts)-1]
}
