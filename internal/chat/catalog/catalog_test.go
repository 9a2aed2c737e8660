package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/vendas-bot-go/internal/chat/catalog"
	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

func TestDefault_IsValid(t *testing.T) {
	c := catalog.Default()

	require.Len(t, c.Services, 4)
	for _, topic := range []domain.Topic{domain.TopicSite, domain.TopicLanding, domain.TopicTrafego, domain.TopicMarketing} {
		s, ok := c.Service(topic)
		require.True(t, ok, "service %s", topic)
		assert.Len(t, s.Plans, 3)
	}

	for _, a := range []domain.ActionCode{
		domain.ActionGreetFirst, domain.ActionSendProposal, domain.ActionOfferDiscount,
		domain.ActionGeneratePix, domain.ActionConfirmPayment, domain.ActionFallback,
	} {
		assert.False(t, c.Response(a).Empty(), "response for %s", a)
	}
	for _, name := range []string{"proposal", "contract", "pix", "card", "card_ask_installments", "boleto"} {
		assert.False(t, c.Artifacts[name].Empty(), "artifact %s", name)
	}
	assert.Equal(t, []float64{10, 15}, c.Discounts)
}

func TestCatalog_PlanLookup(t *testing.T) {
	c := catalog.Default()

	p, ok := c.Plan(domain.TopicSite, "simples")
	require.True(t, ok)
	assert.Equal(t, 1200.0, p.Price)

	p, ok = c.Plan(domain.TopicSite, "Premium")
	require.True(t, ok)
	assert.Equal(t, "premium", p.Code)

	p, ok = c.PlanByIndex(domain.TopicLanding, 2)
	require.True(t, ok)
	assert.Equal(t, "profissional", p.Code)

	_, ok = c.PlanByIndex(domain.TopicLanding, 4)
	assert.False(t, ok)
	_, ok = c.Plan(domain.TopicNone, "simples")
	assert.False(t, ok)
}

func TestCatalog_DiscountLadder(t *testing.T) {
	c := catalog.Default()

	d, ok := c.NextDiscount(0)
	assert.True(t, ok)
	assert.Equal(t, 10.0, d)

	d, ok = c.NextDiscount(10)
	assert.True(t, ok)
	assert.Equal(t, 15.0, d)

	_, ok = c.NextDiscount(15)
	assert.False(t, ok)
	assert.Equal(t, 15.0, c.MaxDiscount())
}

func TestCatalog_UnknownActionFallsBack(t *testing.T) {
	c := catalog.Default()
	assert.Equal(t, c.Responses[domain.ActionFallback].Texts, c.Response("NOPE").Texts)
}

func TestParse_TemplateVariants(t *testing.T) {
	data := []byte(`
intents:
  - name: fixed
    informational: true
    patterns: [a]
    response: "olá {{.Name}}"
  - name: random
    informational: true
    patterns: [b]
    response: ["um", "dois", "três"]
responses:
  FALLBACK: "?"
`)
	c, err := catalog.Parse(data)
	require.NoError(t, err)

	fixed, _ := c.Intent("fixed")
	assert.Equal(t, catalog.TemplateFixed, fixed.Response.Kind)
	out, err := fixed.Response.Render(nil, catalog.View{Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "olá Ana", out)

	random, _ := c.Intent("random")
	assert.Equal(t, catalog.TemplateRandom, random.Response.Kind)
	for i, want := range []string{"um", "dois", "três"} {
		out, err := random.Response.Render(func(int) int { return i }, nil)
		require.NoError(t, err)
		assert.Equal(t, want, out)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"duplicated intent": `
intents:
  - {name: a, patterns: [x]}
  - {name: a, patterns: [y]}
responses: {FALLBACK: "?"}`,
		"informational without response": `
intents:
  - {name: a, informational: true, patterns: [x]}
responses: {FALLBACK: "?"}`,
		"plan without price": `
services:
  - topic: site
    plans: [{code: simples, price: 0}]
responses: {FALLBACK: "?"}`,
		"missing fallback": `
intents: []`,
		"bad template": `
responses: {FALLBACK: "{{.Name"}`,
		"response is a map": `
responses:
  FALLBACK: {a: b}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`responses: {FALLBACK: "oi?"}`), 0o600))

	c, err := catalog.Load(path)
	require.NoError(t, err)
	out, err := c.Response(domain.ActionGreetFirst).Render(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "oi?", out)

	_, err = catalog.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFormatBRL(t *testing.T) {
	tests := map[float64]string{
		0:          "R$ 0,00",
		99.9:       "R$ 99,90",
		1200:       "R$ 1.200,00",
		1234567.89: "R$ 1.234.567,89",
		-50:        "-R$ 50,00",
	}
	for in, want := range tests {
		assert.Equal(t, want, catalog.FormatBRL(in))
	}
	assert.Equal(t, "10%", catalog.FormatPercent(10))
	assert.Equal(t, "12.5%", catalog.FormatPercent(12.5))
}
