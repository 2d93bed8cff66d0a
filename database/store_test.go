package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mbolis/quick-funnel/config"
	"github.com/mbolis/quick-funnel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open(config.Config{DBUrl: filepath.Join(t.TempDir(), "test.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		INSERT INTO funnel (id, name, slug, profile_name, is_active, created_at, updated_at)
		VALUES ('f1', 'Empréstimo', 'emprestimo', 'Maria', 1, ?, ?)`,
		time.Now().UTC(), time.Now().UTC())
	require.NoError(t, err)

	return NewStore(db)
}

func TestCreateAndMergeConversation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "c1", "f1", map[string]any{"nome": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, model.StatusActive, conv.Status)

	require.NoError(t, s.MergeLeadData(ctx, "c1", map[string]any{"lastResponse": "sim"}))
	require.NoError(t, s.MergeLeadData(ctx, "c1", map[string]any{"lastResponse": "não"}))

	var leadJson string
	var last, started time.Time
	err = s.db.QueryRow(`SELECT lead_data, last_activity_at, started_at FROM conversation WHERE id = 'c1'`).
		Scan(&leadJson, &last, &started)
	require.NoError(t, err)

	assert.JSONEq(t, `{"nome":"Ana","lastResponse":"não"}`, leadJson, "merge patches, existing keys survive")
	assert.False(t, last.Before(started))
}

func TestCreateConversationNilLeadData(t *testing.T) {
	s := testStore(t)

	_, err := s.CreateConversation(context.Background(), "c1", "f1", nil)
	require.NoError(t, err)

	var leadJson string
	require.NoError(t, s.db.QueryRow(`SELECT lead_data FROM conversation WHERE id = 'c1'`).Scan(&leadJson))
	assert.JSONEq(t, `{}`, leadJson)
}

func TestCompleteConversation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "c1", "f1", nil)
	require.NoError(t, err)
	require.NoError(t, s.CompleteConversation(ctx, "c1"))

	var status string
	var completedAt *time.Time
	require.NoError(t, s.db.QueryRow(`SELECT status, completed_at FROM conversation WHERE id = 'c1'`).
		Scan(&status, &completedAt))
	assert.Equal(t, "completed", status)
	assert.NotNil(t, completedAt)
}

func TestAbandonIdle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "old", "f1", nil)
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "fresh", "f1", nil)
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "done", "f1", nil)
	require.NoError(t, err)
	require.NoError(t, s.CompleteConversation(ctx, "done"))

	stale := time.Now().UTC().Add(-2 * time.Hour)
	_, err = s.db.Exec(`UPDATE conversation SET last_activity_at = ? WHERE id IN ('old', 'done')`, stale)
	require.NoError(t, err)

	n, err := s.AbandonIdle(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only stale active conversations are swept")

	var status string
	require.NoError(t, s.db.QueryRow(`SELECT status FROM conversation WHERE id = 'old'`).Scan(&status))
	assert.Equal(t, "abandoned", status)
	require.NoError(t, s.db.QueryRow(`SELECT status FROM conversation WHERE id = 'fresh'`).Scan(&status))
	assert.Equal(t, "active", status)
	require.NoError(t, s.db.QueryRow(`SELECT status FROM conversation WHERE id = 'done'`).Scan(&status))
	assert.Equal(t, "completed", status)
}

func TestInsertResponse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "c1", "f1", nil)
	require.NoError(t, err)

	require.NoError(t, s.InsertResponse(ctx, model.LeadResponse{
		ConversationID: "c1",
		BlockID:        "b1",
		ResponseText:   "Maria",
	}))
	require.NoError(t, s.InsertResponse(ctx, model.LeadResponse{
		ConversationID: "c1",
		ResponseText:   "Enviou uma imagem",
		AttachmentURL:  "http://x/uploads/c1/a.png",
		AttachmentType: "image",
	}))

	rows, err := s.db.Query(`
		SELECT id, block_id, response_text, attachment_url
		FROM lead_response WHERE conversation_id = 'c1' ORDER BY created_at`)
	require.NoError(t, err)
	defer rows.Close()

	var got []model.LeadResponse
	for rows.Next() {
		var r model.LeadResponse
		var blockID, attachmentURL *string
		require.NoError(t, rows.Scan(&r.ID, &blockID, &r.ResponseText, &attachmentURL))
		if blockID != nil {
			r.BlockID = *blockID
		}
		if attachmentURL != nil {
			r.AttachmentURL = *attachmentURL
		}
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID, "ids are assigned on insert")
	assert.Equal(t, "b1", got[0].BlockID)
	assert.Equal(t, "Maria", got[0].ResponseText)
	assert.Empty(t, got[1].BlockID, "terminal replies carry no block")
	assert.Equal(t, "http://x/uploads/c1/a.png", got[1].AttachmentURL)
}

func seedTicket(t *testing.T, s *Store, id, code string, expiresAt time.Time) {
	t.Helper()
	_, err := s.db.Exec(`
		INSERT INTO lead_ticket (id, ticket_code, funnel_id, lead_data, created_at, expires_at)
		VALUES (?, ?, 'f1', '{"nome":"Ana"}', ?, ?)`,
		id, code, time.Now().UTC(), expiresAt)
	require.NoError(t, err)
}

func TestTicketByCode(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedTicket(t, s, "t1", "TKT-AAAA1111", time.Now().UTC().Add(24*time.Hour))

	ticket, err := s.TicketByCode(ctx, "f1", "TKT-AAAA1111")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, "t1", ticket.ID)
	assert.Equal(t, "Ana", ticket.LeadData["nome"])
	assert.Nil(t, ticket.UsedAt)

	ticket, err = s.TicketByCode(ctx, "f1", "TKT-GHOST000")
	require.NoError(t, err)
	assert.Nil(t, ticket, "unknown code is not an error")
}

func TestConsumeTicketIsSingleUse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedTicket(t, s, "t1", "TKT-AAAA1111", time.Now().UTC().Add(24*time.Hour))

	_, err := s.CreateConversation(ctx, "c1", "f1", nil)
	require.NoError(t, err)

	require.NoError(t, s.ConsumeTicket(ctx, "t1", "c1"))

	ticket, err := s.TicketByCode(ctx, "f1", "TKT-AAAA1111")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.NotNil(t, ticket.UsedAt)
	assert.Equal(t, "c1", ticket.SessionID)

	assert.ErrorIs(t, s.ConsumeTicket(ctx, "t1", "c2"), ErrTicketUsed)
}
