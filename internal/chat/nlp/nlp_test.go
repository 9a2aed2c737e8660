package nlp_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/nlp"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Olá, tudo bem?", "ola tudo bem"},
		{"  QUANTO   custa\to site??  ", "quanto custa o site"},
		{"Não, obrigado!!!", "nao obrigado"},
		{"Promoção de Páscoa: 50%", "promocao de pascoa 50"},
		{"ação\nreação", "acao reacao"},
		{"...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, nlp.Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Olá! Quero um SITE institucional 😀",
		"R$ 1.500,00 à vista?",
		"Ação — reação; coração…",
		"ñandú über café",
		"   ",
		"linha 1\r\nlinha 2",
	}
	for _, in := range inputs {
		once := nlp.Normalize(in)
		assert.Equal(t, once, nlp.Normalize(once), "input %q", in)
	}
}

func TestLines(t *testing.T) {
	got := nlp.Lines("Ana Souza\r\n\n  Padaria Boa  \n ana@padaria.com \n")
	assert.Equal(t, []string{"Ana Souza", "Padaria Boa", "ana@padaria.com"}, got)
	assert.Empty(t, nlp.Lines("  \n \n"))
}

func signals(raw string) domain.SignalSet {
	return nlp.ExtractSignals(nlp.Normalize(raw), raw)
}

func TestExtractSignals(t *testing.T) {
	ignoreShape := cmpopts.IgnoreFields(domain.SignalSet{}, "WordCount", "LineCount")

	tests := []struct {
		name string
		raw  string
		want domain.SignalSet
	}{
		{"empty", "", domain.SignalSet{}},
		{"short confirm", "sim", domain.SignalSet{ShortConfirm: true}},
		{"confirm phrase", "Pode ser!", domain.SignalSet{ShortConfirm: true}},
		{"short negative", "não quero", domain.SignalSet{ShortNegative: true}},
		{"plan by number", "quero o 2", domain.SignalSet{PlanChoice: 2}},
		{"plan by name", "vou de premium", domain.SignalSet{PlanChoice: 3}},
		{"bare number is plan and number", "1", domain.SignalSet{PlanChoice: 1, BareNumber: 1}},
		{"pix", "pix", domain.SignalSet{PaymentPix: true}},
		{"card with installments", "cartão em 6x", domain.SignalSet{PaymentCard: true, Installments: 6}},
		{"boleto", "prefiro boleto", domain.SignalSet{PaymentBoleto: true}},
		{"payment asked", "quais as formas de pagamento?", domain.SignalSet{IsQuestion: true, PaymentAsked: true}},
		{"payment confirmed", "já paguei, segue o comprovante", domain.SignalSet{PaymentConfirmed: true}},
		{"pix done is not a choice", "fiz o pix", domain.SignalSet{PaymentConfirmed: true}},
		{"payment negated", "ainda não paguei", domain.SignalSet{ShortNegative: false}},
		{"price objection", "caro demais", domain.SignalSet{ObjectionPrice: true}},
		{"time objection", "vou pensar e te falo", domain.SignalSet{ObjectionTime: true}},
		{"trust objection", "isso não é golpe né", domain.SignalSet{ObjectionTrust: true}},
		{"buy request", "quero contratar", domain.SignalSet{BuyRequest: true}},
		{"price question", "quanto custa um site?", domain.SignalSet{IsQuestion: true, PriceQuestion: true, Topic: domain.TopicSite}},
		{"landing before site", "preciso de uma página de vendas", domain.SignalSet{Topic: domain.TopicLanding}},
		{"trafego pago is not a payment", "quero tráfego pago", domain.SignalSet{Topic: domain.TopicTrafego}},
		{"greeting", "Oi, boa tarde", domain.SignalSet{Greeting: true}},
		{"goodbye and thanks", "valeu, até mais", domain.SignalSet{Goodbye: true, Thanks: true}},
		{"multi-line data", "Ana Souza\nPadaria Boa\nana@padaria.com", domain.SignalSet{LooksLikeData: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := signals(tt.raw)
			if diff := cmp.Diff(tt.want, got, ignoreShape); diff != "" {
				t.Errorf("ExtractSignals(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestExtractSignals_QuestionSuppressesConfirmAndPlan(t *testing.T) {
	inputs := []string{
		"sim?", "quero o 2?", "pix?", "ok?", "pode ser o premium?",
		"qual o plano 1", "como pago no pix", "será que o 3", "aceita cartão",
		"pode ser?", "1?", "boleto?",
	}
	for _, in := range inputs {
		s := signals(in)
		require.True(t, s.IsQuestion, "input %q should be a question", in)
		assert.False(t, s.ShortConfirm, "input %q", in)
		assert.Zero(t, s.PlanChoice, "input %q", in)
		assert.Equal(t, domain.PaymentNone, s.PaymentChoice(), "input %q", in)
	}
}

func TestExtractSignals_Shape(t *testing.T) {
	s := signals("Ana\nPadaria\n\n(11) 98765-4321")
	assert.Equal(t, 3, s.LineCount)
	assert.True(t, s.LooksLikeData)
}

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.EntitySet
	}{
		{
			name: "multi-line lead",
			raw:  "Ana Souza\nPadaria Boa\nana@padaria.com\n(11) 98765-4321",
			want: domain.EntitySet{
				Name: "Ana Souza", Company: "Padaria Boa", Email: "ana@padaria.com",
				Phone: "11987654321",
			},
		},
		{
			name: "name phrase",
			raw:  "Oi, meu nome é Carlos",
			want: domain.EntitySet{Name: "Carlos"},
		},
		{
			name: "budget in mil and high urgency",
			raw:  "tenho uns 3 mil e preciso do site pra ontem",
			want: domain.EntitySet{Budget: 3000, Urgency: domain.UrgencyHigh, Interest: domain.TopicSite},
		},
		{
			name: "budget with currency",
			raw:  "meu orçamento é R$ 1.500,50, sem pressa",
			want: domain.EntitySet{Budget: 1500.50, Urgency: domain.UrgencyLow},
		},
		{
			name: "budget in reais",
			raw:  "posso pagar 800 reais",
			want: domain.EntitySet{Budget: 800},
		},
		{
			name: "labelled lines",
			raw:  "Nome: Joana Lima\nEmpresa: Studio JL",
			want: domain.EntitySet{Name: "Joana Lima", Company: "Studio JL"},
		},
		{
			name: "medium urgency phrase",
			raw:  "preciso disso em breve",
			want: domain.EntitySet{Urgency: domain.UrgencyMedium},
		},
		{
			name: "nothing",
			raw:  "hmm",
			want: domain.EntitySet{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nlp.ExtractEntities(tt.raw, nlp.Normalize(tt.raw))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExtractEntities mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractEntities_UrgencySurvivesLaterTurns(t *testing.T) {
	extract := func(raw string) domain.EntitySet { return nlp.ExtractEntities(raw, nlp.Normalize(raw)) }

	lead := domain.EntitySet{}.Merge(extract("preciso de um site urgente"))
	require.Equal(t, domain.UrgencyHigh, lead.Urgency)

	lead = lead.Merge(extract("ok"))
	assert.Equal(t, domain.UrgencyHigh, lead.Urgency)
	assert.Equal(t, domain.UrgencyHigh, lead.EffectiveUrgency())

	// Sem nenhuma indicação de prazo a leitura assume "media".
	quiet := domain.EntitySet{}.Merge(extract("ok"))
	assert.Empty(t, quiet.Urgency)
	assert.Equal(t, domain.UrgencyMedium, quiet.EffectiveUrgency())
}

func TestExtractEntities_FirstLineEmailIsNotName(t *testing.T) {
	got := nlp.ExtractEntities("ana@padaria.com\n11987654321", "")
	assert.Empty(t, got.Name)
	assert.Empty(t, got.Company)
	assert.Equal(t, "ana@padaria.com", got.Email)
	assert.Equal(t, "11987654321", got.Phone)
}
