package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/policy"
)

func withState(patch func(st *domain.ConversationState)) domain.ConversationState {
	st := domain.ConversationState{Stage: domain.StageInicio}
	if patch != nil {
		patch(&st)
	}
	return st
}

func TestDecide(t *testing.T) {
	proposalReady := withState(func(st *domain.ConversationState) {
		st.Topic = domain.TopicSite
		st.Plan = "simples"
		st.OptionsShown = true
		st.Lead.Name = "Ana"
	})
	// Depois do contrato o plano é zerado; tópico e lead continuam.
	closedSale := withState(func(st *domain.ConversationState) {
		st.Topic = domain.TopicSite
		st.Lead.Name = "Ana"
	})

	tests := []struct {
		name       string
		in         policy.Input
		wantAction domain.ActionCode
		wantRule   string
	}{
		{
			name:       "payment confirmed after method chosen",
			in:         policy.Input{Signals: domain.SignalSet{PaymentConfirmed: true}, Deal: domain.DealPaymentMethodChosen},
			wantAction: domain.ActionConfirmPayment,
			wantRule:   "confirm_payment",
		},
		{
			name: "payment confirmed while expecting confirmation",
			in: policy.Input{
				Signals: domain.SignalSet{PaymentConfirmed: true},
				State:   withState(func(st *domain.ConversationState) { st.PendingExpectation = domain.ExpectPaymentConfirmation }),
				Deal:    domain.DealPaymentMethodChosen,
			},
			wantAction: domain.ActionConfirmPayment,
			wantRule:   "confirm_payment",
		},
		{
			name:       "payment confirmed without a deal is ignored",
			in:         policy.Input{Signals: domain.SignalSet{PaymentConfirmed: true}, Deal: domain.DealNone},
			wantAction: domain.ActionFallback,
			wantRule:   "fallback",
		},
		{
			name: "installments by bare number",
			in: policy.Input{
				Signals: domain.SignalSet{BareNumber: 6},
				State:   withState(func(st *domain.ConversationState) { st.PendingExpectation = domain.ExpectInstallments }),
				Deal:    domain.DealPaymentMethodChosen,
			},
			wantAction: domain.ActionProcessInstallments,
			wantRule:   "installments",
		},
		{
			name: "installments out of range is not a choice",
			in: policy.Input{
				Signals: domain.SignalSet{BareNumber: 24},
				State:   withState(func(st *domain.ConversationState) { st.PendingExpectation = domain.ExpectInstallments }),
				Deal:    domain.DealPaymentMethodChosen,
			},
			wantAction: domain.ActionFallback,
			wantRule:   "fallback",
		},
		{
			name:       "pix after proposal",
			in:         policy.Input{Signals: domain.SignalSet{PaymentPix: true}, State: proposalReady, Deal: domain.DealProposalSent},
			wantAction: domain.ActionGeneratePix,
			wantRule:   "payment_method",
		},
		{
			name:       "card after proposal",
			in:         policy.Input{Signals: domain.SignalSet{PaymentCard: true, Installments: 6}, State: proposalReady, Deal: domain.DealProposalSent},
			wantAction: domain.ActionGenerateCard,
			wantRule:   "payment_method",
		},
		{
			name:       "switching to boleto after choosing pix",
			in:         policy.Input{Signals: domain.SignalSet{PaymentBoleto: true}, State: proposalReady, Deal: domain.DealPaymentMethodChosen},
			wantAction: domain.ActionGenerateBoleto,
			wantRule:   "payment_method",
		},
		{
			name:       "asking about payment methods after proposal",
			in:         policy.Input{Signals: domain.SignalSet{PaymentAsked: true, IsQuestion: true}, State: proposalReady, Deal: domain.DealProposalSent},
			wantAction: domain.ActionExplainPaymentMethods,
			wantRule:   "payment_method",
		},
		{
			name:       "pix before any proposal does not generate a charge",
			in:         policy.Input{Signals: domain.SignalSet{PaymentPix: true}},
			wantAction: domain.ActionFallback,
			wantRule:   "fallback",
		},
		{
			name:       "pix after payment confirmed does not generate a charge",
			in:         policy.Input{Signals: domain.SignalSet{PaymentPix: true}, State: closedSale, Deal: domain.DealContractGenerated},
			wantAction: domain.ActionShowOptions,
			wantRule:   "state_fallback",
		},
		{
			name: "short confirm while waiting for payment",
			in: policy.Input{
				Signals: domain.SignalSet{ShortConfirm: true},
				State:   withState(func(st *domain.ConversationState) { st.PendingExpectation = domain.ExpectPaymentConfirmation }),
				Deal:    domain.DealPaymentMethodChosen,
			},
			wantAction: domain.ActionAwaitPaymentConfirm,
			wantRule:   "await_payment_confirmation",
		},
		{
			name: "client data when requested",
			in: policy.Input{
				Signals:  domain.SignalSet{LooksLikeData: true, LineCount: 3},
				Entities: domain.EntitySet{Name: "Ana Souza", Email: "ana@padaria.com"},
				State:    withState(func(st *domain.ConversationState) { st.DataRequested = true }),
			},
			wantAction: domain.ActionProcessClientData,
			wantRule:   "client_data",
		},
		{
			name: "data-shaped text without entities is not client data",
			in: policy.Input{
				Signals: domain.SignalSet{LooksLikeData: true, LineCount: 2},
				State:   withState(func(st *domain.ConversationState) { st.PendingExpectation = domain.ExpectClientData }),
			},
			wantAction: domain.ActionFallback,
			wantRule:   "fallback",
		},
		{
			name: "plan choice with topic",
			in: policy.Input{
				Signals: domain.SignalSet{PlanChoice: 2},
				State:   withState(func(st *domain.ConversationState) { st.Topic = domain.TopicLanding; st.OptionsShown = true }),
			},
			wantAction: domain.ActionProcessPlanChoice,
			wantRule:   "plan_choice",
		},
		{
			name:       "plan choice after a closed deal starts a new negotiation",
			in:         policy.Input{Signals: domain.SignalSet{PlanChoice: 1}, State: closedSale, Deal: domain.DealContractGenerated},
			wantAction: domain.ActionProcessPlanChoice,
			wantRule:   "plan_choice",
		},
		{
			name:       "plan choice while a proposal is open is not a new choice",
			in:         policy.Input{Signals: domain.SignalSet{PlanChoice: 1}, State: proposalReady, Deal: domain.DealProposalSent},
			wantAction: domain.ActionContinueFlow,
			wantRule:   "state_fallback",
		},
		{
			name:       "plan choice without topic is ignored",
			in:         policy.Input{Signals: domain.SignalSet{PlanChoice: 2}},
			wantAction: domain.ActionFallback,
			wantRule:   "fallback",
		},
		{
			name:       "sim with everything known sends the proposal",
			in:         policy.Input{Signals: domain.SignalSet{ShortConfirm: true}, State: proposalReady, Deal: domain.DealNone},
			wantAction: domain.ActionSendProposal,
			wantRule:   "short_confirm",
		},
		{
			name: "sim with topic only shows options",
			in: policy.Input{
				Signals: domain.SignalSet{ShortConfirm: true},
				State:   withState(func(st *domain.ConversationState) { st.Topic = domain.TopicSite }),
			},
			wantAction: domain.ActionShowOptions,
			wantRule:   "short_confirm",
		},
		{
			name: "sim after options asks which plan",
			in: policy.Input{
				Signals: domain.SignalSet{ShortConfirm: true},
				State:   withState(func(st *domain.ConversationState) { st.Topic = domain.TopicSite; st.OptionsShown = true }),
			},
			wantAction: domain.ActionAskWhichPlan,
			wantRule:   "short_confirm",
		},
		{
			name:       "sim with nothing known continues",
			in:         policy.Input{Signals: domain.SignalSet{ShortConfirm: true}},
			wantAction: domain.ActionContinueFlow,
			wantRule:   "short_confirm",
		},
		{
			name:       "sim after a closed deal sends a new proposal",
			in:         policy.Input{Signals: domain.SignalSet{ShortConfirm: true}, State: proposalReady, Deal: domain.DealContractGenerated},
			wantAction: domain.ActionSendProposal,
			wantRule:   "short_confirm",
		},
		{
			name:       "sim after payment confirmed sends a new proposal",
			in:         policy.Input{Signals: domain.SignalSet{ShortConfirm: true}, State: proposalReady, Deal: domain.DealPaymentConfirmed},
			wantAction: domain.ActionSendProposal,
			wantRule:   "short_confirm",
		},
		{
			name:       "sim after proposal continues",
			in:         policy.Input{Signals: domain.SignalSet{ShortConfirm: true}, State: proposalReady, Deal: domain.DealProposalSent},
			wantAction: domain.ActionContinueFlow,
			wantRule:   "short_confirm",
		},
		{
			name:       "price objection offers discount",
			in:         policy.Input{Signals: domain.SignalSet{ObjectionPrice: true}, MaxDiscount: 15},
			wantAction: domain.ActionOfferDiscount,
			wantRule:   "price_objection",
		},
		{
			name: "price objection after first discount offers the next one",
			in: policy.Input{
				Signals:     domain.SignalSet{ObjectionPrice: true},
				State:       withState(func(st *domain.ConversationState) { st.DiscountOffered = 10 }),
				MaxDiscount: 15,
			},
			wantAction: domain.ActionOfferDiscount,
			wantRule:   "price_objection",
		},
		{
			name: "price objection at max discount",
			in: policy.Input{
				Signals: domain.SignalSet{ObjectionPrice: true},
				State:   withState(func(st *domain.ConversationState) { st.DiscountOffered = 15 }),
			},
			wantAction: domain.ActionHandlePriceObjectionMax,
			wantRule:   "price_objection",
		},
		{
			name:       "time objection",
			in:         policy.Input{Signals: domain.SignalSet{ObjectionTime: true}},
			wantAction: domain.ActionHandleTimeObjection,
			wantRule:   "time_trust_objection",
		},
		{
			name:       "trust objection",
			in:         policy.Input{Signals: domain.SignalSet{ObjectionTrust: true}},
			wantAction: domain.ActionHandleTrustObjection,
			wantRule:   "time_trust_objection",
		},
		{
			name:       "short negative",
			in:         policy.Input{Signals: domain.SignalSet{ShortNegative: true}},
			wantAction: domain.ActionHandleNegative,
			wantRule:   "short_negative",
		},
		{
			name:       "buy request without name asks for data",
			in:         policy.Input{Signals: domain.SignalSet{BuyRequest: true, Topic: domain.TopicSite}},
			wantAction: domain.ActionAskClientData,
			wantRule:   "buy_request",
		},
		{
			name: "buy request without topic asks for service",
			in: policy.Input{
				Signals: domain.SignalSet{BuyRequest: true},
				State:   withState(func(st *domain.ConversationState) { st.Lead.Name = "Ana" }),
			},
			wantAction: domain.ActionAskService,
			wantRule:   "buy_request",
		},
		{
			name: "buy request without plan shows options",
			in: policy.Input{
				Signals: domain.SignalSet{ProposalRequest: true},
				State:   withState(func(st *domain.ConversationState) { st.Lead.Name = "Ana"; st.Topic = domain.TopicSite }),
			},
			wantAction: domain.ActionShowOptions,
			wantRule:   "buy_request",
		},
		{
			name:       "buy request with everything sends proposal",
			in:         policy.Input{Intent: domain.IntentResult{Intent: "purchase"}, State: proposalReady},
			wantAction: domain.ActionSendProposal,
			wantRule:   "buy_request",
		},
		{
			name:       "price question with topic in the message",
			in:         policy.Input{Signals: domain.SignalSet{PriceQuestion: true, IsQuestion: true, Topic: domain.TopicSite}},
			wantAction: domain.ActionShowPrices,
			wantRule:   "price_question",
		},
		{
			name:       "price question without topic",
			in:         policy.Input{Signals: domain.SignalSet{PriceQuestion: true, IsQuestion: true}},
			wantAction: domain.ActionAskServiceForPrice,
			wantRule:   "price_question",
		},
		{
			name:       "topic signal starts the topic",
			in:         policy.Input{Signals: domain.SignalSet{Topic: domain.TopicTrafego}},
			wantAction: domain.ActionStartTrafego,
			wantRule:   "topic_intro",
		},
		{
			name:       "about intent starts the topic",
			in:         policy.Input{Intent: domain.IntentResult{Intent: "about_landing"}, IntentTopic: domain.TopicLanding},
			wantAction: domain.ActionStartLanding,
			wantRule:   "topic_intro",
		},
		{
			name:       "first greeting",
			in:         policy.Input{Signals: domain.SignalSet{Greeting: true}},
			wantAction: domain.ActionGreetFirst,
			wantRule:   "greeting_goodbye",
		},
		{
			name: "returning greeting",
			in: policy.Input{
				Signals: domain.SignalSet{Greeting: true},
				State:   withState(func(st *domain.ConversationState) { st.Greeted = true }),
			},
			wantAction: domain.ActionGreetReturning,
			wantRule:   "greeting_goodbye",
		},
		{
			name:       "goodbye",
			in:         policy.Input{Signals: domain.SignalSet{Goodbye: true, Thanks: true}},
			wantAction: domain.ActionSayGoodbye,
			wantRule:   "greeting_goodbye",
		},
		{
			name:       "informational intent",
			in:         policy.Input{Intent: domain.IntentResult{Intent: "deadline"}, IntentAnswer: true, Signals: domain.SignalSet{IsQuestion: true}},
			wantAction: domain.ActionAnswerIntent,
			wantRule:   "question",
		},
		{
			name:       "generic question",
			in:         policy.Input{Signals: domain.SignalSet{IsQuestion: true}},
			wantAction: domain.ActionAnswerQuestion,
			wantRule:   "question",
		},
		{
			name: "unmatched text with a topic follows the funnel",
			in: policy.Input{
				State: withState(func(st *domain.ConversationState) { st.Topic = domain.TopicMarketing }),
			},
			wantAction: domain.ActionShowOptions,
			wantRule:   "state_fallback",
		},
		{
			name:       "nothing matches",
			in:         policy.Input{},
			wantAction: domain.ActionFallback,
			wantRule:   "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Decide(tt.in)
			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantRule, got.Rule)
		})
	}
}

func TestDecide_PaymentConfirmationBeatsEverything(t *testing.T) {
	in := policy.Input{
		Signals: domain.SignalSet{PaymentConfirmed: true, PaymentPix: true, ShortConfirm: true, Greeting: true},
		State:   withState(func(st *domain.ConversationState) { st.PendingExpectation = domain.ExpectPaymentConfirmation }),
		Deal:    domain.DealPaymentMethodChosen,
	}
	assert.Equal(t, domain.ActionConfirmPayment, policy.Decide(in).Action)
}

func TestDecide_PlanChoiceBeatsPriceObjection(t *testing.T) {
	in := policy.Input{
		Signals: domain.SignalSet{PlanChoice: 1, ObjectionPrice: true},
		State:   withState(func(st *domain.ConversationState) { st.Topic = domain.TopicSite }),
	}
	assert.Equal(t, domain.ActionProcessPlanChoice, policy.Decide(in).Action)
}

func TestDecide_UnknownDealStatusTreatedAsNone(t *testing.T) {
	in := policy.Input{Signals: domain.SignalSet{PaymentPix: true}, Deal: domain.DealStatus("bogus")}
	assert.Equal(t, domain.ActionFallback, policy.Decide(in).Action)
}

func TestDecide_DoesNotMutateInput(t *testing.T) {
	st := withState(func(st *domain.ConversationState) {
		st.Topic = domain.TopicSite
		st.History = []domain.HistoryEntry{{Intent: "greeting", Text: "oi"}}
	})
	in := policy.Input{Signals: domain.SignalSet{ShortConfirm: true}, State: st}
	_ = policy.Decide(in)
	assert.Equal(t, domain.TopicSite, in.State.Topic)
	assert.Len(t, in.State.History, 1)
}

func TestRuleNames(t *testing.T) {
	names := policy.RuleNames()
	assert.Len(t, names, 17)
	assert.Equal(t, "confirm_payment", names[0])
	assert.Equal(t, "fallback", names[len(names)-1])
}
