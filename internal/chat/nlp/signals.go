package nlp

import (
	"strconv"
	"strings"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

// signalInput é o que cada detector enxerga.
type signalInput struct {
	norm  string
	raw   string
	words []string
	lines []string
}

// detector liga flags no SignalSet. Detectores posteriores podem ler o
// que os anteriores já decidiram (a pergunta vem sempre primeiro).
type detector func(in *signalInput, s *domain.SignalSet)

// detectors é a ordem de avaliação. Não reordenar: detectQuestion precisa
// rodar antes de confirmação, escolha de plano e forma de pagamento.
var detectors = []detector{
	detectShape,
	detectQuestion,
	detectShortConfirm,
	detectShortNegative,
	detectPlanChoice,
	detectPayment,
	detectNumbers,
	detectObjections,
	detectRequests,
	detectTopic,
	detectSmallTalk,
	detectData,
}

// ExtractSignals deriva o SignalSet de uma mensagem. Função pura e total:
// entrada sem correspondência devolve um SignalSet todo falso.
func ExtractSignals(normalized, raw string) domain.SignalSet {
	in := &signalInput{
		norm:  normalized,
		raw:   raw,
		words: Words(normalized),
		lines: Lines(raw),
	}
	var s domain.SignalSet
	for _, d := range detectors {
		d(in, &s)
	}
	return s
}

func detectShape(in *signalInput, s *domain.SignalSet) {
	s.WordCount = len(in.words)
	s.LineCount = len(in.lines)
}

func detectQuestion(in *signalInput, s *domain.SignalSet) {
	if strings.Contains(in.raw, "?") {
		s.IsQuestion = true
		return
	}
	s.IsQuestion = startsWithAny(in.norm, questionStarters)
}

// detectShortConfirm: até 3 palavras, vocabulário fechado e não é pergunta.
func detectShortConfirm(in *signalInput, s *domain.SignalSet) {
	if s.IsQuestion || s.WordCount == 0 || s.WordCount > 3 {
		return
	}
	if confirmPhrases[in.norm] {
		s.ShortConfirm = true
		return
	}
	for _, w := range in.words {
		if !confirmWords[w] {
			return
		}
	}
	s.ShortConfirm = true
}

func detectShortNegative(in *signalInput, s *domain.SignalSet) {
	if s.IsQuestion || s.WordCount == 0 || s.WordCount > 3 {
		return
	}
	if negativePhrases[in.norm] || in.words[0] == "nao" {
		s.ShortNegative = true
	}
}

func detectPlanChoice(in *signalInput, s *domain.SignalSet) {
	if s.IsQuestion || s.WordCount == 0 || s.WordCount > 6 {
		return
	}
	m := planChoiceRe.FindStringSubmatch(in.norm)
	if m == nil {
		return
	}
	if n, ok := planWords[m[1]]; ok {
		s.PlanChoice = n
		// "sim", "quero o 2": a escolha de plano tem precedência sobre a confirmação.
		s.ShortConfirm = false
	}
}

func detectPayment(in *signalInput, s *domain.SignalSet) {
	mentionsPix := containsAny(in.norm, pixWords)
	mentionsCard := containsAny(in.norm, cardWords)
	mentionsBoleto := containsAny(in.norm, boletoWords)

	if containsAny(in.norm, paymentAskPhrases) {
		s.PaymentAsked = true
	}
	if s.IsQuestion {
		if mentionsPix || mentionsCard || mentionsBoleto {
			s.PaymentAsked = true
		}
	} else if !s.PaymentAsked {
		s.PaymentPix = mentionsPix
		s.PaymentCard = mentionsCard && !mentionsPix
		s.PaymentBoleto = mentionsBoleto && !mentionsPix && !mentionsCard
	}

	if containsAny(in.norm, paymentConfirmPhrases) && !containsAny(in.norm, paymentNegations) {
		s.PaymentConfirmed = true
		// "fiz o pix" não é escolha de forma de pagamento.
		s.PaymentPix, s.PaymentCard, s.PaymentBoleto = false, false, false
	}
}

func detectNumbers(in *signalInput, s *domain.SignalSet) {
	if m := installmentsRe.FindStringSubmatch(in.norm); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 12 {
			s.Installments = n
		}
	}
	if bareNumberRe.MatchString(in.norm) {
		if n, err := strconv.Atoi(in.norm); err == nil {
			s.BareNumber = n
		}
	}
}

func detectObjections(in *signalInput, s *domain.SignalSet) {
	s.ObjectionPrice = containsAny(in.norm, priceObjections)
	s.ObjectionTime = containsAny(in.norm, timeObjections)
	s.ObjectionTrust = containsAny(in.norm, trustObjections)
}

func detectRequests(in *signalInput, s *domain.SignalSet) {
	s.BuyRequest = !s.IsQuestion && containsAny(in.norm, buyPhrases)
	s.ProposalRequest = containsAny(in.norm, proposalPhrases)
	s.PriceQuestion = containsAny(in.norm, priceQuestions)
}

func detectTopic(in *signalInput, s *domain.SignalSet) {
	for _, tv := range topicVocabulary {
		if containsAny(in.norm, tv.phrase) {
			s.Topic = domain.Topic(tv.topic)
			return
		}
	}
}

func detectSmallTalk(in *signalInput, s *domain.SignalSet) {
	s.Greeting = startsWithAny(in.norm, greetingStarts)
	s.Goodbye = containsAny(in.norm, goodbyePhrases)
	s.Thanks = containsAny(in.norm, thanksPhrases)
}

func detectData(in *signalInput, s *domain.SignalSet) {
	s.LooksLikeData = len(in.lines) >= 2 ||
		emailRe.MatchString(in.raw) ||
		findPhone(in.raw) != ""
}
