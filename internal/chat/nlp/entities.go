package nlp

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

var (
	moneyRe     = regexp.MustCompile(`(?i)R\$\s*([\d.]+(?:,\d{1,2})?)`)
	reaisRe     = regexp.MustCompile(`\b(\d+(?:\s\d{3})*)\s+reais\b`)
	milRe       = regexp.MustCompile(`\b(\d+)\s*(?:k|mil)\b`)
	namePhrase  = regexp.MustCompile(`\b(?:meu nome e|me chamo|aqui e o|aqui e a|sou o|sou a)\s+([a-z]+(?:\s[a-z]+){0,2})`)
	companyLead = regexp.MustCompile(`\b(?:minha empresa e|minha empresa se chama|empresa chamada|trabalho na|trabalho no)\s+([a-z0-9]+(?:\s[a-z0-9]+){0,3})`)
)

var urgencyBuckets = []struct {
	level  domain.Urgency
	phrase []string
}{
	{domain.UrgencyHigh, []string{"urgente", "urgencia", "hoje", "agora", "pra ontem", "para ontem", "o quanto antes", "o mais rapido", "rapido", "essa semana", "esta semana", "imediato"}},
	{domain.UrgencyLow, []string{"sem pressa", "mais pra frente", "mais para frente", "proximo mes", "quando der", "tranquilo", "sem urgencia", "ano que vem"}},
	{domain.UrgencyMedium, []string{"esse mes", "este mes", "proximas semanas", "em breve", "logo"}},
}

// nameStopWords evita que uma saudação curta vire "nome".
var nameStopWords = map[string]bool{
	"oi": true, "ola": true, "sim": true, "nao": true, "ok": true, "bom": true,
	"boa": true, "quero": true, "obrigado": true, "obrigada": true,
}

// ExtractEntities extrai os dados do lead. Nunca falha: campo sem
// correspondência simplesmente fica vazio.
func ExtractEntities(raw, normalized string) domain.EntitySet {
	var e domain.EntitySet

	if m := emailRe.FindString(raw); m != "" {
		e.Email = strings.ToLower(m)
	}
	e.Phone = findPhone(raw)
	e.Budget = findBudget(raw, normalized)
	e.Urgency = classifyUrgency(normalized)

	for _, tv := range topicVocabulary {
		if containsAny(normalized, tv.phrase) {
			e.Interest = domain.Topic(tv.topic)
			break
		}
	}

	if m := namePhrase.FindStringSubmatch(normalized); m != nil {
		e.Name = titleCase(m[1])
	}
	if m := companyLead.FindStringSubmatch(normalized); m != nil {
		e.Company = titleCase(m[1])
	}

	lines := Lines(raw)
	if len(lines) >= 2 {
		if e.Name == "" && looksLikeLabel(lines[0], 4) {
			e.Name = cleanLabel(lines[0])
		}
		if e.Company == "" && looksLikeLabel(lines[1], 6) {
			e.Company = cleanLabel(lines[1])
		}
	}
	return e
}

// findPhone devolve só os dígitos de um telefone BR (10 a 13 dígitos).
func findPhone(raw string) string {
	for _, m := range phoneRe.FindAllString(raw, -1) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m)
		if len(digits) >= 10 && len(digits) <= 13 {
			return digits
		}
	}
	return ""
}

func findBudget(raw, normalized string) float64 {
	if m := moneyRe.FindStringSubmatch(raw); m != nil {
		v := strings.ReplaceAll(m[1], ".", "")
		v = strings.ReplaceAll(v, ",", ".")
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	if m := milRe.FindStringSubmatch(normalized); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return float64(n) * 1000
		}
	}
	// "1.500 reais" chega normalizado como "1 500 reais".
	if m := reaisRe.FindStringSubmatch(normalized); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], " ", "")); err == nil && n > 0 {
			return float64(n)
		}
	}
	return 0
}

// classifyUrgency devolve vazio quando nenhuma expressão casa; o default
// "media" é aplicado na leitura (EntitySet.EffectiveUrgency).
func classifyUrgency(normalized string) domain.Urgency {
	for _, b := range urgencyBuckets {
		if containsAny(normalized, b.phrase) {
			return b.level
		}
	}
	return ""
}

// looksLikeLabel aceita linhas curtas que não são e-mail nem telefone.
func looksLikeLabel(line string, maxWords int) bool {
	if emailRe.MatchString(line) || findPhone(line) != "" {
		return false
	}
	if len([]rune(line)) > 60 || strings.Contains(line, "?") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > maxWords {
		return false
	}
	if len(words) == 1 && nameStopWords[Normalize(words[0])] {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2
}

// cleanLabel remove prefixos como "Nome:" e "Empresa -".
func cleanLabel(line string) string {
	if i := strings.IndexAny(line, ":-"); i > 0 && i < 12 {
		prefix := Normalize(line[:i])
		switch prefix {
		case "nome", "empresa", "cliente", "razao social", "company", "name":
			line = line[i+1:]
		}
	}
	return strings.TrimSpace(line)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
