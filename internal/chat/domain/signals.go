package domain

// Topic é a categoria de serviço em discussão.
type Topic string

const (
	TopicNone      Topic = ""
	TopicSite      Topic = "site"
	TopicLanding   Topic = "landing"
	TopicTrafego   Topic = "trafego"
	TopicMarketing Topic = "marketing"
)

// PaymentMethod é a forma de pagamento escolhida pelo cliente.
type PaymentMethod string

const (
	PaymentNone   PaymentMethod = ""
	PaymentPix    PaymentMethod = "pix"
	PaymentCard   PaymentMethod = "cartao"
	PaymentBoleto PaymentMethod = "boleto"
)

// SignalSet reúne as flags derivadas de uma mensagem normalizada.
//
// Invariante: IsQuestion implica ShortConfirm == false, PlanChoice == 0
// e nenhuma forma de pagamento selecionada.
type SignalSet struct {
	IsQuestion    bool `json:"isQuestion"`
	ShortConfirm  bool `json:"shortConfirm"`
	ShortNegative bool `json:"shortNegative"`

	// PlanChoice é 1, 2 ou 3; 0 quando não houve escolha.
	PlanChoice int `json:"planChoice"`

	PaymentPix       bool `json:"paymentPix"`
	PaymentCard      bool `json:"paymentCard"`
	PaymentBoleto    bool `json:"paymentBoleto"`
	PaymentAsked     bool `json:"paymentAsked"`
	PaymentConfirmed bool `json:"paymentConfirmed"`

	// Installments vem de "6x", "em 6 vezes", "6 parcelas".
	Installments int `json:"installments"`
	// BareNumber é preenchido quando a mensagem é só um número.
	BareNumber int `json:"bareNumber"`

	ObjectionPrice bool `json:"objectionPrice"`
	ObjectionTime  bool `json:"objectionTime"`
	ObjectionTrust bool `json:"objectionTrust"`

	BuyRequest      bool `json:"buyRequest"`
	ProposalRequest bool `json:"proposalRequest"`
	PriceQuestion   bool `json:"priceQuestion"`

	Topic Topic `json:"topic,omitempty"`

	Greeting bool `json:"greeting"`
	Goodbye  bool `json:"goodbye"`
	Thanks   bool `json:"thanks"`

	// LooksLikeData marca texto com cara de dados cadastrais
	// (várias linhas, e-mail ou telefone).
	LooksLikeData bool `json:"looksLikeData"`
	LineCount     int  `json:"lineCount"`
	WordCount     int  `json:"wordCount"`
}

// PaymentChoice devolve a forma de pagamento selecionada, se houver.
func (s SignalSet) PaymentChoice() PaymentMethod {
	switch {
	case s.PaymentPix:
		return PaymentPix
	case s.PaymentCard:
		return PaymentCard
	case s.PaymentBoleto:
		return PaymentBoleto
	}
	return PaymentNone
}

// MentionsPayment é true quando algum sinal de forma de pagamento disparou.
func (s SignalSet) MentionsPayment() bool {
	return s.PaymentPix || s.PaymentCard || s.PaymentBoleto || s.PaymentAsked
}
