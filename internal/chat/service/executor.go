// Package service: executor.go aplica o efeito de cada ActionCode.
//
// ============================================================
// EXECUTOR: uma função por ação
// ============================================================
//
// A policy só decide; quem muda estado e Deal é o executor. Cada ação
// tem um actionFunc registrado em actionTable, que:
//  1. Altera o ConversationState (cópia de trabalho do turno)
//  2. Cria ou avança a Deal quando for o caso
//  3. Preenche o catalog.View usado pelo template de resposta
//
// Se o actionFunc falhar, a cópia de trabalho é descartada e o turno
// responde com o template de FALLBACK.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/vendas-bot-go/internal/chat/catalog"
	"github.com/boddenberg/vendas-bot-go/internal/chat/deal"
	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/chat/policy"
)

// turn carrega tudo que um actionFunc pode ler ou alterar.
type turn struct {
	in     policy.Input
	action domain.ActionCode
	st     *domain.ConversationState
	deal   *domain.Deal
	view   catalog.View

	// dealUpdate é a Deal depois da ação, quando a ação mexeu nela.
	dealUpdate *domain.Deal
	// template substitui o template da ação (ex.: desconto esgotado).
	template *catalog.Template
}

type actionFunc func(ctx context.Context, s *ChatService, t *turn) error

var actionTable map[domain.ActionCode]actionFunc

func init() {
	actionTable = map[domain.ActionCode]actionFunc{
		domain.ActionConfirmPayment:          execConfirmPayment,
		domain.ActionProcessInstallments:     execProcessInstallments,
		domain.ActionGeneratePix:             execGeneratePayment(domain.PaymentPix),
		domain.ActionGenerateCard:            execGeneratePayment(domain.PaymentCard),
		domain.ActionGenerateBoleto:          execGeneratePayment(domain.PaymentBoleto),
		domain.ActionExplainPaymentMethods:   execExplainPayment,
		domain.ActionAwaitPaymentConfirm:     execNothing,
		domain.ActionProcessClientData:       execProcessClientData,
		domain.ActionProcessPlanChoice:       execProcessPlanChoice,
		domain.ActionSendProposal:            execSendProposal,
		domain.ActionShowOptions:             execShowOptions,
		domain.ActionAskWhichPlan:            execAskWhichPlan,
		domain.ActionContinueFlow:            execNothing,
		domain.ActionOfferDiscount:           execOfferDiscount,
		domain.ActionHandlePriceObjectionMax: execPriceObjectionMax,
		domain.ActionHandleTimeObjection:     execNothing,
		domain.ActionHandleTrustObjection:    execNothing,
		domain.ActionHandleNegative:          execNegative,
		domain.ActionAskClientData:           execAskClientData,
		domain.ActionAskService:              execNothing,
		domain.ActionShowPrices:              execShowPrices,
		domain.ActionAskServiceForPrice:      execAskServiceForPrice,
		domain.ActionStartSite:               execStartTopic(domain.TopicSite),
		domain.ActionStartLanding:            execStartTopic(domain.TopicLanding),
		domain.ActionStartTrafego:            execStartTopic(domain.TopicTrafego),
		domain.ActionStartMarketing:          execStartTopic(domain.TopicMarketing),
		domain.ActionGreetFirst:              execGreet,
		domain.ActionGreetReturning:          execGreet,
		domain.ActionSayGoodbye:              execNothing,
		domain.ActionAnswerIntent:            execAnswerIntent,
		domain.ActionAnswerQuestion:          execNothing,
		domain.ActionFallback:                execNothing,
	}
}

// execute roda a ação sobre uma cópia do estado e renderiza a resposta.
func (s *ChatService) execute(ctx context.Context, t *turn) (string, error) {
	fn, ok := actionTable[t.action]
	if !ok {
		return "", fmt.Errorf("no executor for action %s", t.action)
	}

	working := t.st.Clone()
	original := t.st
	t.st = &working
	defer func() { t.st = original }()

	if err := fn(ctx, s, t); err != nil {
		return "", fmt.Errorf("executing %s: %w", t.action, err)
	}
	s.fillView(t)

	tmpl := s.catalog.Response(t.action)
	if t.template != nil {
		tmpl = *t.template
	}
	text, err := tmpl.Render(s.intn, t.view)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty response for %s", t.action)
	}
	*original = working
	return text, nil
}

// fillView completa o View com o que vale para qualquer ação.
func (s *ChatService) fillView(t *turn) {
	v := &t.view
	v.Name = displayName(t.st)
	v.CompanyName = s.catalog.Company.Name
	v.Services = s.catalog.ServiceNames()
	v.MaxInstallments = s.catalog.Company.MaxInstallments

	if v.Service == "" {
		if svc, ok := s.catalog.Service(t.st.Topic); ok {
			v.Service = svc.Name
		}
	}
	if v.Plan == "" && t.st.Plan != "" {
		if p, ok := s.catalog.Plan(t.st.Topic, t.st.Plan); ok {
			v.Plan = p.Label
			v.Price = catalog.FormatBRL(p.Price)
			v.FinalPrice = catalog.FormatBRL(deal.FinalPrice(p.Price, t.st.DiscountOffered))
			v.Deadline = fmt.Sprintf("%d dias úteis", p.DeliveryDays)
		}
	}
	current := t.dealUpdate
	if current == nil {
		current = t.deal
	}
	if current != nil && current.Status.AtLeast(domain.DealProposalSent) {
		v.FinalPrice = catalog.FormatBRL(current.FinalPrice)
	}
}

func displayName(st *domain.ConversationState) string {
	if st.Lead.Name != "" {
		return strings.Fields(st.Lead.Name)[0]
	}
	if f := strings.Fields(st.DisplayName); len(f) > 0 {
		return f[0]
	}
	return ""
}

// ============================================================
// Helpers de estado
// ============================================================

// setTopic troca o tópico. Trocar de serviço zera plano e opções.
func setTopic(st *domain.ConversationState, topic domain.Topic) {
	if topic == domain.TopicNone || st.Topic == topic {
		return
	}
	st.Topic = topic
	st.Plan = ""
	st.OptionsShown = false
	st.Lead.Interest = topic
	st.AdvanceStage(domain.StageExploration)
}

// topicOf usa o tópico citado na mensagem antes do salvo no estado.
func topicOf(t *turn) domain.Topic {
	if t.in.Signals.Topic != domain.TopicNone {
		return t.in.Signals.Topic
	}
	return t.st.Topic
}

func (s *ChatService) showPlans(t *turn) error {
	setTopic(t.st, topicOf(t))
	svc, ok := s.catalog.Service(t.st.Topic)
	if !ok {
		return fmt.Errorf("unknown service %q", t.st.Topic)
	}
	t.st.OptionsShown = true
	t.st.PendingExpectation = domain.ExpectPlanChoice
	t.st.AdvanceStage(domain.StageDetailing)
	t.view.Service = svc.Name
	t.view.Options = svc.PlanLines()
	return nil
}

// proposal cria a Deal com o que o estado já sabe e renderiza a proposta.
func (s *ChatService) proposal(ctx context.Context, t *turn) error {
	plan, ok := s.catalog.Plan(t.st.Topic, t.st.Plan)
	if !ok {
		return fmt.Errorf("unknown plan %q for %q", t.st.Plan, t.st.Topic)
	}
	d, err := s.deals.CreateDeal(ctx, deal.CreateRequest{
		UserID:          t.st.UserID,
		Product:         t.st.Topic,
		Plan:            plan.Code,
		ListPrice:       plan.Price,
		DiscountPercent: t.st.DiscountOffered,
		Client:          t.st.Lead,
	})
	if err != nil {
		return err
	}
	text, err := deal.RenderProposal(s.catalog, d)
	if err != nil {
		return err
	}
	t.dealUpdate = d
	t.view.Proposal = text
	t.st.DataRequested = false
	t.st.PendingExpectation = domain.ExpectPaymentMethod
	t.st.AdvanceStage(domain.StageClosing)
	return nil
}

func (s *ChatService) instructions(t *turn, d *domain.Deal) error {
	text, err := deal.RenderPaymentInstructions(s.catalog, d, s.now())
	if err != nil {
		return err
	}
	t.view.Instructions = text
	return nil
}

func requireDeal(t *turn) (*domain.Deal, error) {
	if t.deal == nil {
		return nil, fmt.Errorf("action %s requires an active deal", t.action)
	}
	return t.deal, nil
}

func (s *ChatService) validInstallments(n int) bool {
	maxN := s.catalog.Company.MaxInstallments
	if maxN <= 0 {
		maxN = 12
	}
	return n >= 1 && n <= maxN
}

// ============================================================
// Ações
// ============================================================

func execNothing(context.Context, *ChatService, *turn) error { return nil }

func execGreet(_ context.Context, _ *ChatService, t *turn) error {
	t.st.Greeted = true
	return nil
}

func execNegative(_ context.Context, _ *ChatService, t *turn) error {
	t.st.PendingExpectation = domain.ExpectNothing
	return nil
}

func execStartTopic(topic domain.Topic) actionFunc {
	return func(_ context.Context, _ *ChatService, t *turn) error {
		setTopic(t.st, topic)
		return nil
	}
}

func execShowOptions(_ context.Context, s *ChatService, t *turn) error {
	return s.showPlans(t)
}

func execShowPrices(_ context.Context, s *ChatService, t *turn) error {
	if err := s.showPlans(t); err != nil {
		return err
	}
	t.st.PricesShown = true
	return nil
}

func execAskServiceForPrice(_ context.Context, s *ChatService, t *turn) error {
	t.st.PricesShown = true
	t.view.Prices = s.catalog.PriceTable()
	return nil
}

func execAskWhichPlan(_ context.Context, _ *ChatService, t *turn) error {
	t.st.PendingExpectation = domain.ExpectPlanChoice
	return nil
}

func execAskClientData(_ context.Context, _ *ChatService, t *turn) error {
	setTopic(t.st, t.in.Signals.Topic)
	t.st.DataRequested = true
	t.st.PendingExpectation = domain.ExpectClientData
	return nil
}

func execProcessPlanChoice(ctx context.Context, s *ChatService, t *turn) error {
	plan, ok := s.catalog.PlanByIndex(t.st.Topic, t.in.Signals.PlanChoice)
	if !ok {
		return fmt.Errorf("plan %d not found for %q", t.in.Signals.PlanChoice, t.st.Topic)
	}
	t.st.Plan = plan.Code
	t.st.AdvanceStage(domain.StageDetailing)
	t.view.Plan = plan.Label
	t.view.Price = catalog.FormatBRL(plan.Price)

	if t.st.Lead.Name == "" {
		t.st.DataRequested = true
		t.st.PendingExpectation = domain.ExpectClientData
		return nil
	}
	return s.proposal(ctx, t)
}

func execProcessClientData(ctx context.Context, s *ChatService, t *turn) error {
	t.st.DataRequested = false
	t.st.PendingExpectation = domain.ExpectNothing
	if t.st.Topic == domain.TopicNone || t.st.Plan == "" || t.st.Lead.Name == "" {
		return nil
	}
	if t.deal != nil && t.deal.Status.AtLeast(domain.DealProposalSent) && t.deal.Plan == t.st.Plan && t.deal.Product == t.st.Topic {
		return nil
	}
	return s.proposal(ctx, t)
}

func execSendProposal(ctx context.Context, s *ChatService, t *turn) error {
	setTopic(t.st, topicOf(t))
	return s.proposal(ctx, t)
}

func execOfferDiscount(ctx context.Context, s *ChatService, t *turn) error {
	next, ok := s.catalog.NextDiscount(t.st.DiscountOffered)
	if !ok {
		maxTmpl := s.catalog.Response(domain.ActionHandlePriceObjectionMax)
		t.template = &maxTmpl
		t.view.Discount = catalog.FormatPercent(t.st.DiscountOffered)
		return nil
	}
	t.st.DiscountOffered = next
	t.view.Discount = catalog.FormatPercent(next)

	if t.deal != nil && !t.deal.Status.AtLeast(domain.DealPaymentConfirmed) {
		d, err := s.deals.ApplyDiscount(ctx, t.deal.ID, next)
		if err != nil {
			return err
		}
		t.dealUpdate = d
		t.view.Service = ""
		if svc, ok := s.catalog.Service(d.Product); ok {
			t.view.Service = svc.Name
		}
		if p, ok := s.catalog.Plan(d.Product, d.Plan); ok {
			t.view.Plan = p.Label
		}
		t.view.Price = catalog.FormatBRL(d.ListPrice)
	}
	return nil
}

func execPriceObjectionMax(_ context.Context, _ *ChatService, t *turn) error {
	t.view.Discount = catalog.FormatPercent(t.st.DiscountOffered)
	return nil
}

func execExplainPayment(_ context.Context, _ *ChatService, t *turn) error {
	if _, err := requireDeal(t); err != nil {
		return err
	}
	t.st.PendingExpectation = domain.ExpectPaymentMethod
	return nil
}

func execGeneratePayment(method domain.PaymentMethod) actionFunc {
	return func(ctx context.Context, s *ChatService, t *turn) error {
		cur, err := requireDeal(t)
		if err != nil {
			return err
		}
		installments := 0
		if method == domain.PaymentCard && s.validInstallments(t.in.Signals.Installments) {
			installments = t.in.Signals.Installments
		}
		d, err := s.deals.ChoosePayment(ctx, cur.ID, method, installments)
		if err != nil {
			return err
		}
		t.dealUpdate = d
		if err := s.instructions(t, d); err != nil {
			return err
		}
		if method == domain.PaymentCard && installments == 0 {
			t.st.PendingExpectation = domain.ExpectInstallments
		} else {
			t.st.PendingExpectation = domain.ExpectPaymentConfirmation
		}
		return nil
	}
}

func execProcessInstallments(ctx context.Context, s *ChatService, t *turn) error {
	cur, err := requireDeal(t)
	if err != nil {
		return err
	}
	n := t.in.Signals.Installments
	if n == 0 {
		n = t.in.Signals.BareNumber
	}
	if !s.validInstallments(n) {
		return fmt.Errorf("installments %d out of range", n)
	}

	var d *domain.Deal
	if cur.Status == domain.DealPaymentMethodChosen && cur.PaymentMethod == domain.PaymentCard {
		d, err = s.deals.SetInstallments(ctx, cur.ID, n, s.catalog.Company.MaxInstallments)
	} else {
		d, err = s.deals.ChoosePayment(ctx, cur.ID, domain.PaymentCard, n)
	}
	if err != nil {
		return err
	}
	t.dealUpdate = d
	t.view.Installments = n
	t.view.InstallmentValue = catalog.FormatBRL(deal.InstallmentValue(d.FinalPrice, n))
	if err := s.instructions(t, d); err != nil {
		return err
	}
	t.st.PendingExpectation = domain.ExpectPaymentConfirmation
	return nil
}

func execConfirmPayment(ctx context.Context, s *ChatService, t *turn) error {
	cur, err := requireDeal(t)
	if err != nil {
		return err
	}
	// O contrato é renderizado antes de qualquer avanço: se falhar, a Deal
	// continua em payment_method_chosen e o cliente pode confirmar de novo.
	paid := cur.Clone()
	paid.Status = domain.DealPaymentConfirmed
	contract, err := deal.RenderContract(s.catalog, paid, s.now())
	if err != nil {
		return err
	}
	d, err := s.deals.Advance(ctx, cur.ID, domain.DealPaymentConfirmed, "pagamento informado pelo cliente")
	if err != nil {
		return err
	}
	d, err = s.deals.Advance(ctx, d.ID, domain.DealContractGenerated, "contrato enviado")
	if err != nil {
		return err
	}
	t.dealUpdate = d
	t.view.Contract = contract
	t.st.PendingExpectation = domain.ExpectNothing
	// Venda fechada: a próxima negociação começa do catálogo.
	t.st.Plan = ""
	t.st.OptionsShown = false
	t.st.DiscountOffered = 0
	return nil
}

func execAnswerIntent(_ context.Context, s *ChatService, t *turn) error {
	in, ok := s.catalog.Intent(t.in.Intent.Intent)
	if !ok || in.Response.Empty() {
		return fmt.Errorf("intent %q has no response", t.in.Intent.Intent)
	}
	s.fillView(t)
	text, err := in.Response.Render(s.intn, t.view)
	if err != nil {
		return err
	}
	t.view.Instructions = text
	return nil
}
