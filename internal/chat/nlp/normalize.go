// Package nlp contém as funções puras que transformam o texto bruto
// em texto normalizado, sinais e entidades. Nada aqui faz I/O ou falha.
package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize coloca o texto em minúsculas, remove acentos, troca qualquer
// pontuação por espaço e colapsa espaços. É idempotente.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// transform.Transformer guarda estado: um por chamada.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Words divide o texto normalizado em palavras.
func Words(normalized string) []string {
	return strings.Fields(normalized)
}

// Lines devolve as linhas não vazias do texto bruto, já aparadas.
func Lines(raw string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
