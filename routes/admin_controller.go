package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mbolis/quick-funnel/app"
	"github.com/mbolis/quick-funnel/database"
	"github.com/mbolis/quick-funnel/graph"
	"github.com/mbolis/quick-funnel/httpx"
	"github.com/mbolis/quick-funnel/log"
	"github.com/mbolis/quick-funnel/model"
)

var reNoIdent = regexp.MustCompile(`\W+`)

func slugify(name string) string {
	slug := strings.ToLower(name)
	slug = reNoIdent.ReplaceAllLiteralString(slug, " ")
	return strings.Join(strings.Fields(slug), "-")
}

func CreateFunnel(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := model.Funnel{}
		err := render.DecodeJSON(r.Body, &f)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if f.Name == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_funnel.validate", "missing funnel name")
			return
		}
		if f.Slug == "" {
			f.Slug = slugify(f.Name)
		}
		if f.ProfileName == "" {
			f.ProfileName = f.Name
		}

		f.ID = uuid.NewString()
		now := time.Now().UTC()

		_, err = app.ExecContext(r.Context(), `
			INSERT INTO funnel (id, name, slug, profile_name, profile_image_url, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID,
			f.Name,
			f.Slug,
			f.ProfileName,
			f.ProfileImageURL,
			f.IsActive,
			now,
			now,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_funnel", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":   f.ID,
			"slug": f.Slug,
		})
	}
}

func ListFunnels(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT id, name, slug, profile_name, profile_image_url, is_active, created_at, updated_at
			FROM funnel
			ORDER BY created_at DESC`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_funnels", err)
			return
		}
		defer rows.Close()

		funnels := []model.Funnel{}
		for rows.Next() {
			f := model.Funnel{}
			err = rows.Scan(&f.ID, &f.Name, &f.Slug, &f.ProfileName, &f.ProfileImageURL, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
			if err != nil {
				httpx.LogInternalError(w, "db.get_funnels.scan", err)
				return
			}

			funnels = append(funnels, f)
		}

		render.JSON(w, r, map[string]any{
			"funnels": funnels,
		})
	}
}

func GetFunnelById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnelId := chi.URLParam(r, "id")

		f := model.Funnel{}
		err := app.QueryRowContext(r.Context(), `
			SELECT id, name, slug, profile_name, profile_image_url, is_active, created_at, updated_at
			FROM funnel
			WHERE id = ?`,
			funnelId,
		).Scan(&f.ID, &f.Name, &f.Slug, &f.ProfileName, &f.ProfileImageURL, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_funnel", funnelId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_funnel", err)
			return
		}

		render.JSON(w, r, f)
	}
}

func UpdateFunnel(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnelId := chi.URLParam(r, "id")

		f := model.Funnel{}
		err := render.DecodeJSON(r.Body, &f)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE funnel
			SET
				name = ?,
				slug = ?,
				profile_name = ?,
				profile_image_url = ?,
				is_active = ?,
				updated_at = ?
			WHERE id = ?`,
			f.Name,
			f.Slug,
			f.ProfileName,
			f.ProfileImageURL,
			f.IsActive,
			time.Now().UTC(),
			funnelId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_funnel", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_funnel.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_funnel", funnelId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteFunnel(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnelId := chi.URLParam(r, "id")

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM funnel_block
			WHERE funnel_id = ?`,
			funnelId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_funnel.blocks", err)
			return
		}

		res, err := tx.ExecContext(r.Context(), `
			DELETE FROM funnel WHERE id = ?`,
			funnelId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_funnel", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_funnel.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_funnel", funnelId)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_funnel.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func GetFunnelGraph(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnelId := chi.URLParam(r, "id")

		blocks, err := loadBlocks(r.Context(), app.DB, funnelId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_funnel_graph", err)
			return
		}

		nodes, edges := graph.Explode(blocks)
		render.JSON(w, r, map[string]any{
			"nodes": nodes,
			"edges": edges,
		})
	}
}

func SaveFunnelGraph(app app.App) http.HandlerFunc {
	type graphRequest struct {
		Nodes []graph.Node `json:"nodes"`
		Edges []graph.Edge `json:"edges"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		funnelId := chi.URLParam(r, "id")

		req := graphRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		blocks, err := graph.Compile(funnelId, req.Nodes, req.Edges)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusUnprocessableEntity, log.DebugLevel, "save_funnel_graph.compile", "%s", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// the editor replaces the whole script on save
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM funnel_block
			WHERE funnel_id = ?`,
			funnelId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.save_funnel_graph.delete_blocks", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO funnel_block (id, funnel_id, type, content, position_x, position_y, order_index, next_block_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.save_funnel_graph.blocks.prepare", err)
			return
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, b := range blocks {
			contentJson, err := json.Marshal(b.Content)
			if err != nil {
				httpx.LogInternalError(w, "db.save_funnel_graph.blocks.parse_content", err)
				return
			}

			var next any
			if b.NextBlockID != "" {
				next = b.NextBlockID
			}

			_, err = stmt.ExecContext(r.Context(), b.ID, funnelId, b.Type, string(contentJson), b.PositionX, b.PositionY, b.OrderIndex, next, now)
			if err != nil {
				httpx.LogInternalError(w, "db.save_funnel_graph.blocks.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.save_funnel_graph.commit", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"blocks": blocks,
		})
	}
}

func ListConversations(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnelId := chi.URLParam(r, "id")

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, funnel_id, status, lead_data, started_at, completed_at, last_activity_at
			FROM conversation
			WHERE funnel_id = ?
			ORDER BY last_activity_at DESC`,
			funnelId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_conversations", err)
			return
		}
		defer rows.Close()

		conversations := []model.Conversation{}
		for rows.Next() {
			c := model.Conversation{}
			var leadJson string
			var completedAt sql.NullTime
			err = rows.Scan(&c.ID, &c.FunnelID, &c.Status, &leadJson, &c.StartedAt, &completedAt, &c.LastActivityAt)
			if err != nil {
				httpx.LogInternalError(w, "db.get_conversations.scan", err)
				return
			}

			if leadJson != "" {
				err = json.Unmarshal([]byte(leadJson), &c.LeadData)
				if err != nil {
					httpx.LogInternalError(w, "db.get_conversations.parse_lead_data", err)
					return
				}
			}
			if completedAt.Valid {
				c.CompletedAt = &completedAt.Time
			}

			conversations = append(conversations, c)
		}

		render.JSON(w, r, map[string]any{
			"conversations": conversations,
		})
	}
}

func GetConversationResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationId := chi.URLParam(r, "id")

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, conversation_id, block_id, response_text, attachment_url, attachment_type, created_at
			FROM lead_response
			WHERE conversation_id = ?
			ORDER BY created_at`,
			conversationId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses", err)
			return
		}
		defer rows.Close()

		responses := []model.LeadResponse{}
		for rows.Next() {
			resp := model.LeadResponse{}
			var blockId, attachmentUrl, attachmentType sql.NullString
			err = rows.Scan(&resp.ID, &resp.ConversationID, &blockId, &resp.ResponseText, &attachmentUrl, &attachmentType, &resp.CreatedAt)
			if err != nil {
				httpx.LogInternalError(w, "db.get_responses.scan", err)
				return
			}

			resp.BlockID = blockId.String
			resp.AttachmentURL = attachmentUrl.String
			resp.AttachmentType = attachmentType.String

			responses = append(responses, resp)
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

func SweepConversations(app app.App) http.HandlerFunc {
	type sweepRequest struct {
		IdleMinutes int `json:"idle_minutes"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		req := sweepRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil || req.IdleMinutes <= 0 {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		cutoff := time.Now().UTC().Add(-time.Duration(req.IdleMinutes) * time.Minute)

		abandoned, err := database.NewStore(app.DB).AbandonIdle(r.Context(), cutoff)
		if err != nil {
			httpx.LogInternalError(w, "db.sweep_conversations", err)
			return
		}
		evicted := app.Chats.Evict(cutoff)

		render.JSON(w, r, map[string]any{
			"abandoned": abandoned,
			"evicted":   evicted,
		})
	}
}
