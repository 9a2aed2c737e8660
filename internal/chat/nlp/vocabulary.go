package nlp

import (
	"regexp"
	"strings"
)

// Vocabulários fechados, já no formato normalizado (sem acento, minúsculo).

var questionStarters = []string{
	"quanto", "quantos", "quantas", "qual", "quais", "como", "quando", "onde",
	"porque", "por que", "o que", "sera que", "tem como", "voces fazem",
	"vcs fazem", "voce faz", "vc faz", "aceita", "aceitam", "e possivel",
	"da pra", "consigo", "poderia", "teria",
}

var confirmPhrases = map[string]bool{
	"sim": true, "s": true, "ss": true, "ok": true, "okay": true, "pode": true,
	"pode ser": true, "pode sim": true, "claro": true, "claro que sim": true,
	"bora": true, "vamos": true, "vamo": true, "fechado": true, "fechou": true,
	"quero": true, "quero sim": true, "beleza": true, "blz": true, "isso": true,
	"isso mesmo": true, "certo": true, "ta certo": true, "ta bom": true,
	"manda": true, "pode mandar": true, "manda ai": true, "perfeito": true,
	"top": true, "show": true, "com certeza": true, "sim quero": true,
	"sim pode": true, "aham": true, "uhum": true, "positivo": true,
	"combinado": true, "otimo": true, "legal": true, "yes": true, "pode crer": true,
}

var confirmWords = map[string]bool{
	"sim": true, "ok": true, "pode": true, "claro": true, "bora": true,
	"fechado": true, "quero": true, "beleza": true, "blz": true, "isso": true,
	"certo": true, "manda": true, "perfeito": true, "top": true, "show": true,
	"combinado": true, "otimo": true, "legal": true, "ta": true, "bom": true,
	"entao": true, "vamos": true,
}

var negativePhrases = map[string]bool{
	"nao": true, "n": true, "nao quero": true, "agora nao": true,
	"nao obrigado": true, "nao obrigada": true, "nao precisa": true,
	"deixa": true, "deixa pra la": true, "negativo": true, "nope": true,
	"dispenso": true, "melhor nao": true, "nao tenho interesse": true,
	"sem interesse": true, "nem": true,
}

var planWords = map[string]int{
	"1": 1, "um": 1, "primeiro": 1, "primeira": 1, "basico": 1, "simples": 1, "essencial": 1,
	"2": 2, "dois": 2, "segundo": 2, "segunda": 2, "profissional": 2, "intermediario": 2, "pro": 2,
	"3": 3, "tres": 3, "terceiro": 3, "terceira": 3, "premium": 3, "completo": 3, "avancado": 3,
}

var planChoiceRe = regexp.MustCompile(
	`^(?:(?:quero|vou de|vou com|prefiro|escolho|fico com|pode ser|sera)\s+)?(?:(?:o|a)\s+)?(?:(?:plano|opcao|pacote)\s+)?(?:(?:numero|n)\s+)?(\w+)$`)

var pixWords = []string{"pix"}
var cardWords = []string{"cartao", "credito", "cartao de credito", "parcelado", "parcelar", "parcela"}
var boletoWords = []string{"boleto", "boleto bancario"}
var paymentAskPhrases = []string{
	"forma de pagamento", "formas de pagamento", "como pago", "como pagar",
	"como faco pra pagar", "como faco para pagar", "meios de pagamento",
	"como funciona o pagamento", "opcoes de pagamento",
}

var paymentConfirmPhrases = []string{
	"paguei", "ja paguei", "ta pago", "esta pago", "ja esta pago", "pagamento feito",
	"pagamento realizado", "pagamento efetuado", "fiz o pix", "fiz o pagamento",
	"transferi", "comprovante", "enviei o comprovante", "segue o comprovante",
	"pix feito", "pix enviado", "pix realizado", "efetuei",
}

var paymentNegations = []string{
	"nao paguei", "ainda nao", "nao fiz", "vou pagar", "vou fazer o pix", "nao consegui",
}

var priceObjections = []string{
	"caro", "carissimo", "muito caro", "caro demais", "ta caro", "salgado", "puxado",
	"sem dinheiro", "sem grana", "nao tenho dinheiro", "nao tenho grana",
	"fora do orcamento", "acima do orcamento", "nao cabe no orcamento", "desconto",
	"mais barato", "baratear", "abaixar o preco", "abaixa o valor", "por menos",
	"menor preco",
}

var timeObjections = []string{
	"sem tempo", "vou pensar", "preciso pensar", "pensar melhor", "depois eu vejo",
	"depois vejo", "mais pra frente", "mais para frente", "proximo mes",
	"agora nao da", "nao e o momento", "outra hora", "ano que vem", "vou ver",
	"falar com meu socio", "conversar com meu socio", "nao tenho tempo",
}

var trustObjections = []string{
	"golpe", "confiavel", "confiar", "nao confio", "garantia", "referencias",
	"e seguro", "seguranca", "empresa de verdade", "desconfiado", "desconfiada",
	"avaliacoes", "depoimentos", "medo",
}

var buyPhrases = []string{
	"quero contratar", "quero fechar", "vamos fechar", "pode fechar", "bora fechar",
	"quero comprar", "quero assinar", "quero esse", "quero esse plano", "pode fazer",
	"fechar negocio", "contratar", "quero comecar", "vamos comecar", "fechar o plano",
}

var proposalPhrases = []string{
	"proposta", "orcamento", "me manda a proposta", "quero a proposta", "manda a proposta",
}

var priceQuestions = []string{
	"quanto custa", "quanto e", "quanto fica", "quanto sai", "qual o valor",
	"qual valor", "qual o preco", "preco", "precos", "valor", "valores",
	"investimento", "tabela de precos", "quanto cobra", "quanto voces cobram",
	"quanto vcs cobram",
}

// A ordem importa: "pagina de vendas" é landing, não site.
var topicVocabulary = []struct {
	topic  string
	phrase []string
}{
	{"landing", []string{"landing", "landing page", "lp", "pagina de vendas", "pagina de captura"}},
	{"trafego", []string{"trafego", "trafego pago", "anuncio", "anuncios", "ads", "google ads", "facebook ads", "meta ads", "impulsionar", "campanha", "campanhas"}},
	{"marketing", []string{"marketing", "redes sociais", "instagram", "social media", "posts", "conteudo", "gestao de redes"}},
	{"site", []string{"site", "website", "pagina", "loja virtual", "ecommerce", "e commerce", "institucional", "blog"}},
}

var greetingStarts = []string{
	"oi", "oii", "oie", "ola", "opa", "eai", "e ai", "bom dia", "boa tarde",
	"boa noite", "hey", "hello", "salve", "fala", "alo",
}

var goodbyePhrases = []string{
	"tchau", "ate mais", "ate logo", "ate breve", "falou", "flw", "ate amanha",
	"bom fim de semana", "ate a proxima",
}

var thanksPhrases = []string{
	"obrigado", "obrigada", "valeu", "vlw", "agradeco", "brigado", "brigada",
}

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?55[\s\-]?)?(?:\(?\d{2}\)?[\s\-]?)?9?\d{4}[\s\-]?\d{4}`)

	installmentsRe = regexp.MustCompile(`\b(\d{1,2})\s*(?:x|vezes|parcelas?)\b`)
	bareNumberRe   = regexp.MustCompile(`^\d{1,2}$`)
)

// containsPhrase testa se phrase aparece em text respeitando limites de palavra.
func containsPhrase(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

func startsWithAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if text == p || strings.HasPrefix(text, p+" ") {
			return true
		}
	}
	return false
}
