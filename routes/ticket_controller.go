package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mbolis/quick-funnel/app"
	"github.com/mbolis/quick-funnel/httpx"
	"github.com/mbolis/quick-funnel/log"
)

// CreateTicket is the hand-off point for external form captures: it stores
// the collected lead data as a single-use ticket and returns the chat link
// that redeems it.
func CreateTicket(app app.App) http.HandlerFunc {
	type ticketRequest struct {
		FunnelSlug      string         `json:"funnel_slug"`
		LeadData        map[string]any `json:"lead_data"`
		ExpirationHours int            `json:"expiration_hours"`
		ChatBaseURL     string         `json:"chat_base_url"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		req := ticketRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if req.FunnelSlug == "" || req.LeadData == nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel,
				"create_ticket.validate", "missing required fields: funnel_slug and lead_data")
			return
		}
		if req.ExpirationHours <= 0 {
			req.ExpirationHours = 24
		}

		var funnelId, funnelSlug string
		err = app.QueryRowContext(r.Context(), `
			SELECT id, slug FROM funnel WHERE slug = ?`,
			req.FunnelSlug,
		).Scan(&funnelId, &funnelSlug)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "create_ticket.get_funnel", req.FunnelSlug)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.create_ticket.get_funnel", err)
			return
		}

		ticketCode := generateTicketCode()
		now := time.Now().UTC()
		expiresAt := now.Add(time.Duration(req.ExpirationHours) * time.Hour)

		leadJson, err := json.Marshal(req.LeadData)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "create_ticket.parse_lead_data")
			return
		}

		_, err = app.ExecContext(r.Context(), `
			INSERT INTO lead_ticket (id, ticket_code, funnel_id, lead_data, ip_address, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(),
			ticketCode,
			funnelId,
			string(leadJson),
			clientIP(r),
			now,
			expiresAt,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.create_ticket.insert", err)
			return
		}

		baseUrl := req.ChatBaseURL
		if baseUrl == "" {
			baseUrl = app.BaseURL
		}
		chatUrl := strings.TrimRight(baseUrl, "/") + "/chat/" + funnelSlug + "?ticket=" + ticketCode

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"ticket_code": ticketCode,
			"chat_url":    chatUrl,
			"expires_at":  expiresAt,
		})
	}
}

// generateTicketCode makes a short human-relayable code, unique thanks to
// the uuid entropy behind it.
func generateTicketCode() string {
	id := uuid.NewString()
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("x-real-ip"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
