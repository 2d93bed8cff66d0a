package funnel

import (
	"strings"
	"testing"
	"time"

	"github.com/mbolis/quick-funnel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTicket(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	used := now.Add(-time.Hour)

	assert.ErrorIs(t, ValidateTicket(nil, now), ErrTicketNotFound)

	expired := &model.LeadTicket{ExpiresAt: now.Add(-time.Minute)}
	assert.ErrorIs(t, ValidateTicket(expired, now), ErrTicketExpired)

	redeemed := &model.LeadTicket{ExpiresAt: now.Add(time.Hour), UsedAt: &used}
	assert.ErrorIs(t, ValidateTicket(redeemed, now), ErrTicketUsed)

	fresh := &model.LeadTicket{ExpiresAt: now.Add(time.Hour)}
	assert.NoError(t, ValidateTicket(fresh, now))
}

func TestTicketWarning(t *testing.T) {
	assert.Equal(t, "Este ticket expirou. Por favor, preencha o formulário novamente.", TicketWarning(ErrTicketExpired))
	assert.Equal(t, "Este ticket já foi utilizado.", TicketWarning(ErrTicketUsed))
	assert.Equal(t, "Ticket inválido ou expirado", TicketWarning(ErrTicketNotFound))
}

func TestFormatTicketIntro(t *testing.T) {
	ticket := &model.LeadTicket{
		TicketCode: "TKT-AAAA1111",
		LeadData: map[string]any{
			"nome":             "Ana Silva",
			"contacto":         "841234567",
			"valor_solicitado": float64(50000),
			"prazo":            "12 meses",
			"provincia":        "Maputo",
			"zzz_custom":       "extra",
			"aaa_custom":       "primeiro",
		},
	}

	intro := FormatTicketIntro(ticket)

	assert.True(t, strings.HasPrefix(intro, "Olá! Vim através do formulário de empréstimo."))
	assert.Contains(t, intro, "📋 Pedido: TKT-AAAA1111")
	assert.Contains(t, intro, "👤 Meus dados:")
	assert.Contains(t, intro, "• Nome: Ana Silva")
	assert.Contains(t, intro, "• Contacto: 841234567")
	assert.Contains(t, intro, "💰 Sobre o empréstimo:")
	assert.Contains(t, intro, "• Valor Solicitado: 50000")
	assert.Contains(t, intro, "• Prazo de Pagamento: 12 meses")
	assert.Contains(t, intro, "📍 Localização:")
	assert.Contains(t, intro, "• Província: Maputo")

	require.Contains(t, intro, "📝 Outras informações:")
	assert.Less(t, strings.Index(intro, "• aaa_custom: primeiro"), strings.Index(intro, "• zzz_custom: extra"),
		"unmapped fields are listed in key order")
	assert.NotContains(t, intro, "💼 Trabalho:", "empty sections are skipped")
}

func TestFormatTicketIntroSkipsEmptyValues(t *testing.T) {
	ticket := &model.LeadTicket{
		TicketCode: "TKT-BBBB2222",
		LeadData:   map[string]any{"nome": "", "email": nil},
	}

	intro := FormatTicketIntro(ticket)
	assert.NotContains(t, intro, "Meus dados")
	assert.NotContains(t, intro, "• Nome")
}
