package infra

import (
	"fmt"
	"strings"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

// BuildPrompt monta o prompt enviado aos geradores de texto.
//
// O gerador recebe a resposta de template como base e deve devolver só a
// mensagem final, em português, sem inventar preços nem prazos. Na
// segunda tentativa o pedido fica mais curto e direto.
func BuildPrompt(req *domain.GenerationRequest) string {
	var b strings.Builder
	b.WriteString("Você é o atendente comercial de uma agência digital no WhatsApp.\n")
	b.WriteString("Responda em português do Brasil, em no máximo 3 frases, tom cordial.\n")
	b.WriteString("Nunca invente preços, prazos ou condições que não estejam abaixo.\n")
	if req.Attempt > 1 {
		b.WriteString("Seja ainda mais breve: uma ou duas frases.\n")
	}

	fmt.Fprintf(&b, "\nAção decidida: %s\n", req.Action)
	if req.Summary != "" {
		fmt.Fprintf(&b, "Resumo da conversa: %s\n", req.Summary)
	}
	if len(req.History) > 0 {
		b.WriteString("Últimas mensagens do cliente:\n")
		for _, h := range req.History {
			fmt.Fprintf(&b, "- [%s] %s\n", h.Intent, h.Text)
		}
	}
	fmt.Fprintf(&b, "Mensagem atual: %s\n", req.Text)
	fmt.Fprintf(&b, "Resposta base (reescreva mantendo o sentido): %s\n", req.Template)
	return b.String()
}
