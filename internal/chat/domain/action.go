package domain

// ActionCode é a única ação que o bot executa em um turno.
type ActionCode string

const (
	ActionConfirmPayment          ActionCode = "CONFIRM_PAYMENT"
	ActionProcessInstallments     ActionCode = "PROCESS_INSTALLMENTS"
	ActionGeneratePix             ActionCode = "GENERATE_PIX"
	ActionGenerateCard            ActionCode = "GENERATE_CARD"
	ActionGenerateBoleto          ActionCode = "GENERATE_BOLETO"
	ActionExplainPaymentMethods   ActionCode = "EXPLAIN_PAYMENT_METHODS"
	ActionAwaitPaymentConfirm     ActionCode = "AWAIT_PAYMENT_CONFIRMATION"
	ActionProcessClientData       ActionCode = "PROCESS_CLIENT_DATA"
	ActionProcessPlanChoice       ActionCode = "PROCESS_PLAN_CHOICE"
	ActionSendProposal            ActionCode = "SEND_PROPOSAL"
	ActionShowOptions             ActionCode = "SHOW_OPTIONS"
	ActionAskWhichPlan            ActionCode = "ASK_WHICH_PLAN"
	ActionContinueFlow            ActionCode = "CONTINUE_FLOW"
	ActionOfferDiscount           ActionCode = "OFFER_DISCOUNT"
	ActionHandlePriceObjectionMax ActionCode = "HANDLE_PRICE_OBJECTION_MAX"
	ActionHandleTimeObjection     ActionCode = "HANDLE_TIME_OBJECTION"
	ActionHandleTrustObjection    ActionCode = "HANDLE_TRUST_OBJECTION"
	ActionHandleNegative          ActionCode = "HANDLE_NEGATIVE"
	ActionAskClientData           ActionCode = "ASK_CLIENT_DATA"
	ActionAskService              ActionCode = "ASK_SERVICE"
	ActionShowPrices              ActionCode = "SHOW_PRICES"
	ActionAskServiceForPrice      ActionCode = "ASK_SERVICE_FOR_PRICE"
	ActionStartSite               ActionCode = "START_SITE"
	ActionStartLanding            ActionCode = "START_LANDING"
	ActionStartTrafego            ActionCode = "START_TRAFEGO"
	ActionStartMarketing          ActionCode = "START_MARKETING"
	ActionGreetFirst              ActionCode = "GREET_FIRST"
	ActionGreetReturning          ActionCode = "GREET_RETURNING"
	ActionSayGoodbye              ActionCode = "SAY_GOODBYE"
	ActionAnswerIntent            ActionCode = "ANSWER_INTENT"
	ActionAnswerQuestion          ActionCode = "ANSWER_QUESTION"
	ActionFallback                ActionCode = "FALLBACK"
)

// Stylistic indica ações de baixa confiança em que o gerador de texto
// externo pode substituir o template.
func (a ActionCode) Stylistic() bool {
	switch a {
	case ActionFallback, ActionAnswerQuestion, ActionContinueFlow:
		return true
	}
	return false
}
