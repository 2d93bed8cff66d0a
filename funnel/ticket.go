package funnel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mbolis/quick-funnel/model"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketExpired  = errors.New("ticket expired")
	ErrTicketUsed     = errors.New("ticket already used")
)

// ValidateTicket gates session seeding: a missing, expired or already
// redeemed ticket must not seed lead data.
func ValidateTicket(t *model.LeadTicket, now time.Time) error {
	if t == nil {
		return ErrTicketNotFound
	}
	if t.ExpiresAt.Before(now) {
		return ErrTicketExpired
	}
	if t.UsedAt != nil {
		return ErrTicketUsed
	}
	return nil
}

// TicketWarning is the user-facing message shown when seeding is refused.
func TicketWarning(err error) string {
	switch {
	case errors.Is(err, ErrTicketExpired):
		return "Este ticket expirou. Por favor, preencha o formulário novamente."
	case errors.Is(err, ErrTicketUsed):
		return "Este ticket já foi utilizado."
	default:
		return "Ticket inválido ou expirado"
	}
}

var ticketFieldLabels = map[string]string{
	"nome":             "Nome",
	"name":             "Nome",
	"contacto":         "Contacto",
	"telefone":         "Contacto",
	"phone":            "Contacto",
	"valor":            "Valor Solicitado",
	"valor_solicitado": "Valor Solicitado",
	"prazo":            "Prazo de Pagamento",
	"motivo":           "Motivo",
	"finalidade":       "Finalidade",
	"provincia":        "Província",
	"bairro":           "Bairro",
	"quarteirao":       "Quarteirão",
	"numero_casa":      "Nº Casa",
	"sector_trabalho":  "Sector de Trabalho",
	"taxa_inscricao":   "Taxa de Inscrição",
	"juros_mensais":    "Juros Mensais",
	"parcela_estimada": "Parcela Estimada",
	"forma_pagamento":  "Forma de Pagamento",
	"email":            "Email",
}

var ticketSections = []struct {
	title  string
	fields []string
}{
	{"👤 Meus dados:", []string{"nome", "name", "contacto", "telefone", "phone", "email"}},
	{"💰 Sobre o empréstimo:", []string{"valor", "valor_solicitado", "prazo", "motivo", "finalidade", "taxa_inscricao", "juros_mensais", "parcela_estimada", "forma_pagamento"}},
	{"📍 Localização:", []string{"provincia", "bairro", "quarteirao", "numero_casa"}},
	{"💼 Trabalho:", []string{"sector_trabalho"}},
}

// FormatTicketIntro renders the opening message a seeded session posts on
// the lead's behalf, grouping the captured form fields into sections.
func FormatTicketIntro(t *model.LeadTicket) string {
	var b strings.Builder
	b.WriteString("Olá! Vim através do formulário de empréstimo.\n\n")
	fmt.Fprintf(&b, "📋 Pedido: %s\n\n", t.TicketCode)

	known := map[string]bool{}
	for _, section := range ticketSections {
		lines := []string{}
		for _, field := range section.fields {
			known[field] = true
			value := t.LeadData[field]
			if value == nil {
				continue
			}
			if s, ok := value.(string); ok && s == "" {
				continue
			}
			label := field
			if l, ok := ticketFieldLabels[field]; ok {
				label = l
			}
			lines = append(lines, fmt.Sprintf("• %s: %s", label, stringify(value)))
		}
		if len(lines) > 0 {
			b.WriteString(section.title + "\n")
			b.WriteString(strings.Join(lines, "\n") + "\n\n")
		}
	}

	extra := []string{}
	for _, key := range sortedKeys(t.LeadData) {
		if known[key] {
			continue
		}
		label := key
		if l, ok := ticketFieldLabels[strings.ToLower(key)]; ok {
			label = l
		}
		extra = append(extra, fmt.Sprintf("• %s: %s", label, stringify(t.LeadData[key])))
	}
	if len(extra) > 0 {
		b.WriteString("📝 Outras informações:\n")
		b.WriteString(strings.Join(extra, "\n") + "\n")
	}

	return strings.TrimSpace(b.String())
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
