// Package policy decide a única ação do bot em cada turno.
//
// As regras formam uma cascata ordenada: a primeira que casa vence e
// nenhuma outra é avaliada. A ordem em rules é o comportamento: mover uma
// regra muda o que o bot responde.
package policy

import (
	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

// Input é tudo que a policy enxerga. Nada aqui é alterado por Decide.
type Input struct {
	Signals domain.SignalSet
	Intent  domain.IntentResult
	// IntentTopic é o tópico associado ao intent no catálogo (about_*).
	IntentTopic domain.Topic
	// IntentAnswer é true quando o intent tem resposta própria no catálogo.
	IntentAnswer bool
	// Entities são as entidades extraídas desta mensagem.
	Entities domain.EntitySet
	// State já tem o lead desta mensagem mesclado.
	State domain.ConversationState
	Deal  domain.DealStatus
	// MaxDiscount é o teto da escada de descontos (%).
	MaxDiscount float64
}

// Decision é a ação escolhida e o nome da regra que a produziu.
type Decision struct {
	Action domain.ActionCode `json:"action"`
	Rule   string            `json:"rule"`
}

type rule struct {
	name  string
	match func(in *Input) (domain.ActionCode, bool)
}

const defaultMaxDiscount = 15

// rules, da maior para a menor prioridade.
var rules = []rule{
	{"confirm_payment", confirmPayment},
	{"installments", installments},
	{"payment_method", paymentMethod},
	{"await_payment_confirmation", awaitPaymentConfirmation},
	{"client_data", clientData},
	{"plan_choice", planChoice},
	{"short_confirm", shortConfirm},
	{"price_objection", priceObjection},
	{"time_trust_objection", timeTrustObjection},
	{"short_negative", shortNegative},
	{"buy_request", buyRequest},
	{"price_question", priceQuestion},
	{"topic_intro", topicIntro},
	{"greeting_goodbye", greetingGoodbye},
	{"question", question},
	{"state_fallback", stateFallback},
	{"fallback", func(*Input) (domain.ActionCode, bool) { return domain.ActionFallback, true }},
}

// Decide avalia a cascata e devolve a primeira ação que casar.
// Sempre devolve uma ação: a última regra casa qualquer entrada.
func Decide(in Input) Decision {
	for _, r := range rules {
		if action, ok := r.match(&in); ok {
			return Decision{Action: action, Rule: r.name}
		}
	}
	return Decision{Action: domain.ActionFallback, Rule: "fallback"}
}

// RuleNames devolve os nomes das regras na ordem de avaliação.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

// ============================================================
// Helpers
// ============================================================

func (in *Input) dealStatus() domain.DealStatus {
	if in.Deal.Rank() < 0 {
		return domain.DealNone
	}
	return in.Deal
}

// proposalOpen: proposta enviada e pagamento ainda não confirmado.
func (in *Input) proposalOpen() bool {
	d := in.dealStatus()
	return d.AtLeast(domain.DealProposalSent) && !d.AtLeast(domain.DealPaymentConfirmed)
}

// topic considera o tópico citado nesta mensagem antes do salvo no estado.
func (in *Input) topic() domain.Topic {
	if in.Signals.Topic != domain.TopicNone {
		return in.Signals.Topic
	}
	return in.State.Topic
}

func (in *Input) expecting(e domain.Expectation) bool {
	return in.State.PendingExpectation == e
}

func (in *Input) maxDiscount() float64 {
	if in.MaxDiscount <= 0 {
		return defaultMaxDiscount
	}
	return in.MaxDiscount
}

// routeByDepth escolhe o próximo passo do funil pelo quanto já sabemos.
func routeByDepth(in *Input) domain.ActionCode {
	st := in.State
	topic := in.topic()
	switch {
	case !in.proposalOpen() && topic != domain.TopicNone && st.Plan != "" && st.Lead.Name != "":
		return domain.ActionSendProposal
	case topic != domain.TopicNone && !st.OptionsShown:
		return domain.ActionShowOptions
	case st.OptionsShown && st.Plan == "":
		return domain.ActionAskWhichPlan
	default:
		return domain.ActionContinueFlow
	}
}

// ============================================================
// Regras
// ============================================================

func confirmPayment(in *Input) (domain.ActionCode, bool) {
	if !in.Signals.PaymentConfirmed {
		return "", false
	}
	if in.dealStatus() == domain.DealPaymentMethodChosen || in.expecting(domain.ExpectPaymentConfirmation) {
		return domain.ActionConfirmPayment, true
	}
	return "", false
}

func installments(in *Input) (domain.ActionCode, bool) {
	if !in.expecting(domain.ExpectInstallments) {
		return "", false
	}
	if in.Signals.Installments > 0 || (in.Signals.BareNumber >= 1 && in.Signals.BareNumber <= 12) {
		return domain.ActionProcessInstallments, true
	}
	return "", false
}

func paymentMethod(in *Input) (domain.ActionCode, bool) {
	if !in.proposalOpen() {
		return "", false
	}
	if in.Signals.PaymentAsked {
		return domain.ActionExplainPaymentMethods, true
	}
	switch in.Signals.PaymentChoice() {
	case domain.PaymentPix:
		return domain.ActionGeneratePix, true
	case domain.PaymentCard:
		return domain.ActionGenerateCard, true
	case domain.PaymentBoleto:
		return domain.ActionGenerateBoleto, true
	}
	return "", false
}

func awaitPaymentConfirmation(in *Input) (domain.ActionCode, bool) {
	if in.Signals.ShortConfirm && in.expecting(domain.ExpectPaymentConfirmation) {
		return domain.ActionAwaitPaymentConfirm, true
	}
	return "", false
}

func clientData(in *Input) (domain.ActionCode, bool) {
	looksLikeData := in.Signals.LooksLikeData || in.Intent.Intent == domain.IntentLeadInfo
	waiting := in.expecting(domain.ExpectClientData) || in.State.DataRequested
	if looksLikeData && waiting && in.Entities.Count() > 0 {
		return domain.ActionProcessClientData, true
	}
	return "", false
}

func planChoice(in *Input) (domain.ActionCode, bool) {
	if in.Signals.PlanChoice > 0 && in.State.Topic != domain.TopicNone && !in.proposalOpen() {
		return domain.ActionProcessPlanChoice, true
	}
	return "", false
}

func shortConfirm(in *Input) (domain.ActionCode, bool) {
	if !in.Signals.ShortConfirm {
		return "", false
	}
	return routeByDepth(in), true
}

func priceObjection(in *Input) (domain.ActionCode, bool) {
	if !in.Signals.ObjectionPrice {
		return "", false
	}
	if in.State.DiscountOffered < in.maxDiscount() {
		return domain.ActionOfferDiscount, true
	}
	return domain.ActionHandlePriceObjectionMax, true
}

func timeTrustObjection(in *Input) (domain.ActionCode, bool) {
	switch {
	case in.Signals.ObjectionTime:
		return domain.ActionHandleTimeObjection, true
	case in.Signals.ObjectionTrust:
		return domain.ActionHandleTrustObjection, true
	}
	return "", false
}

func shortNegative(in *Input) (domain.ActionCode, bool) {
	if in.Signals.ShortNegative {
		return domain.ActionHandleNegative, true
	}
	return "", false
}

func buyRequest(in *Input) (domain.ActionCode, bool) {
	if !in.Signals.BuyRequest && !in.Signals.ProposalRequest && in.Intent.Intent != "purchase" {
		return "", false
	}
	switch {
	case in.State.Lead.Name == "":
		return domain.ActionAskClientData, true
	case in.topic() == domain.TopicNone:
		return domain.ActionAskService, true
	case in.State.Plan == "":
		return domain.ActionShowOptions, true
	default:
		return domain.ActionSendProposal, true
	}
}

func priceQuestion(in *Input) (domain.ActionCode, bool) {
	if !in.Signals.PriceQuestion && in.Intent.Intent != "pricing" {
		return "", false
	}
	if in.topic() != domain.TopicNone {
		return domain.ActionShowPrices, true
	}
	return domain.ActionAskServiceForPrice, true
}

var topicActions = map[domain.Topic]domain.ActionCode{
	domain.TopicSite:      domain.ActionStartSite,
	domain.TopicLanding:   domain.ActionStartLanding,
	domain.TopicTrafego:   domain.ActionStartTrafego,
	domain.TopicMarketing: domain.ActionStartMarketing,
}

func topicIntro(in *Input) (domain.ActionCode, bool) {
	topic := in.Signals.Topic
	if topic == domain.TopicNone {
		topic = in.IntentTopic
	}
	action, ok := topicActions[topic]
	return action, ok
}

func greetingGoodbye(in *Input) (domain.ActionCode, bool) {
	switch {
	case in.Signals.Greeting || in.Intent.Intent == "greeting":
		if in.State.Greeted {
			return domain.ActionGreetReturning, true
		}
		return domain.ActionGreetFirst, true
	case in.Signals.Goodbye || in.Intent.Intent == "goodbye":
		return domain.ActionSayGoodbye, true
	}
	return "", false
}

func question(in *Input) (domain.ActionCode, bool) {
	switch {
	case in.IntentAnswer:
		return domain.ActionAnswerIntent, true
	case in.Signals.IsQuestion:
		return domain.ActionAnswerQuestion, true
	}
	return "", false
}

func stateFallback(in *Input) (domain.ActionCode, bool) {
	if in.topic() == domain.TopicNone {
		return "", false
	}
	return routeByDepth(in), true
}
