package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/quick-funnel/app"
	"github.com/mbolis/quick-funnel/database"
	"github.com/mbolis/quick-funnel/funnel"
	"github.com/mbolis/quick-funnel/httpx"
	"github.com/mbolis/quick-funnel/log"
	"github.com/mbolis/quick-funnel/model"
)

func PublicGetFunnel(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		f, err := activeFunnelBySlug(r.Context(), app.DB, slug)
		if err != nil {
			httpx.LogInternalError(w, "db.get_funnel", err)
			return
		}
		if f == nil {
			httpx.LogNotFound(w, "get_funnel", slug)
			return
		}

		blocks, err := loadBlocks(r.Context(), app.DB, f.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_funnel.blocks", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"funnel": f,
			"blocks": blocks,
		})
	}
}

func StartConversation(app app.App) http.HandlerFunc {
	type startRequest struct {
		TicketCode string `json:"ticket_code"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		req := startRequest{}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			// body is optional: no ticket means a plain un-seeded session
			req = startRequest{}
		}

		f, err := activeFunnelBySlug(r.Context(), app.DB, slug)
		if err != nil {
			httpx.LogInternalError(w, "db.start_conversation.get_funnel", err)
			return
		}
		if f == nil {
			httpx.LogNotFound(w, "start_conversation.get_funnel", slug)
			return
		}

		blocks, err := loadBlocks(r.Context(), app.DB, f.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.start_conversation.blocks", err)
			return
		}

		store := database.NewStore(app.DB)

		var ticket *model.LeadTicket
		if req.TicketCode != "" {
			ticket, err = store.TicketByCode(r.Context(), f.ID, req.TicketCode)
			if err != nil {
				httpx.LogInternalError(w, "db.start_conversation.get_ticket", err)
				return
			}
		}

		eng := funnel.New(f.ID, blocks, req.TicketCode, ticket, store, funnel.SystemClock)
		app.Chats.Put(eng)

		// the run outlives this request; the client polls for messages
		go func() {
			err := eng.Start(context.Background())
			if err != nil && !errors.Is(err, funnel.ErrStarted) {
				log.Errorf("funnel.start: %s", err)
			}
		}()

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"conversation_id": eng.ConversationID(),
		})
	}
}

func GetMessages(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationId := chi.URLParam(r, "id")

		eng, ok := app.Chats.Get(conversationId)
		if !ok {
			httpx.LogNotFound(w, "get_messages", conversationId)
			return
		}

		render.JSON(w, r, eng.Snapshot())
	}
}

func PostMessage(app app.App) http.HandlerFunc {
	type messageRequest struct {
		Text string `json:"text"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conversationId := chi.URLParam(r, "id")

		eng, ok := app.Chats.Get(conversationId)
		if !ok {
			httpx.LogNotFound(w, "post_message", conversationId)
			return
		}

		req := messageRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil || strings.TrimSpace(req.Text) == "" {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if !eng.Snapshot().CanReply {
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "post_message.not_waiting")
			return
		}

		// resume pacing in the background, the client keeps polling
		go func() {
			err := eng.Reply(context.Background(), req.Text)
			if err != nil && !errors.Is(err, funnel.ErrNotWaiting) {
				log.Errorf("funnel.reply: %s", err)
			}
		}()

		w.WriteHeader(http.StatusAccepted)
	}
}

var validImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

const maxAttachmentSize = 5 << 20 // 5MiB, same cap the chat UI enforces

func PostAttachment(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationId := chi.URLParam(r, "id")

		eng, ok := app.Chats.Get(conversationId)
		if !ok {
			httpx.LogNotFound(w, "post_attachment", conversationId)
			return
		}
		if !eng.Snapshot().CanReply {
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "post_attachment.not_waiting")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentSize)
		err := r.ParseMultipartForm(maxAttachmentSize)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusRequestEntityTooLarge, log.DebugLevel,
				"post_attachment.parse_form", "A imagem deve ter no máximo 5MB")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "post_attachment.file")
			return
		}
		defer file.Close()

		contentType := header.Header.Get("content-type")
		ext, ok := validImageTypes[contentType]
		if !ok {
			// fall back on the file name extension
			ext = strings.TrimPrefix(path.Ext(header.Filename), ".")
			if _, valid := validImageTypes["image/"+ext]; !valid {
				httpx.LogStatusMsg(w, http.StatusUnsupportedMediaType, log.DebugLevel,
					"post_attachment.content_type", "Por favor, selecione uma imagem válida (JPG, PNG, GIF ou WEBP)")
				return
			}
		}

		url, err := app.Blobs.Put(r.Context(), conversationId, ext, file)
		if err != nil {
			// the question stays pending, the user is told to retry
			httpx.LogStatusMsg(w, http.StatusBadGateway, log.ErrorLevel,
				"post_attachment.store", "Erro ao enviar imagem. Tente novamente.")
			return
		}

		go func() {
			err := eng.ReplyAttachment(context.Background(), url, "image")
			if err != nil && !errors.Is(err, funnel.ErrNotWaiting) {
				log.Errorf("funnel.reply_attachment: %s", err)
			}
		}()

		w.WriteHeader(http.StatusAccepted)
		render.JSON(w, r, map[string]any{
			"attachment_url": url,
		})
	}
}

func activeFunnelBySlug(ctx context.Context, db *sql.DB, slug string) (*model.Funnel, error) {
	f := model.Funnel{}
	err := db.QueryRowContext(ctx, `
		SELECT id, name, slug, profile_name, profile_image_url, is_active
		FROM funnel
		WHERE slug = ?
			AND is_active = 1`,
		slug,
	).Scan(&f.ID, &f.Name, &f.Slug, &f.ProfileName, &f.ProfileImageURL, &f.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func loadBlocks(ctx context.Context, db *sql.DB, funnelID string) ([]model.Block, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, funnel_id, type, content, position_x, position_y, order_index, next_block_id
		FROM funnel_block
		WHERE funnel_id = ?
		ORDER BY order_index`,
		funnelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks := []model.Block{}
	for rows.Next() {
		b := model.Block{}
		var content string
		var next sql.NullString
		err = rows.Scan(&b.ID, &b.FunnelID, &b.Type, &content, &b.PositionX, &b.PositionY, &b.OrderIndex, &next)
		if err != nil {
			return nil, err
		}

		if content != "" {
			err = json.Unmarshal([]byte(content), &b.Content)
			if err != nil {
				return nil, err
			}
		}
		b.NextBlockID = next.String

		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}
