package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mbolis/quick-funnel/model"
)

var ErrTicketUsed = errors.New("ticket already used")

// Store is the persistence surface the funnel engine runs against.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db}
}

// CreateConversation inserts the session row. The id comes from the engine,
// which needs to hand it to the client before the row exists.
func (s *Store) CreateConversation(ctx context.Context, id, funnelID string, leadData map[string]any) (model.Conversation, error) {
	now := time.Now().UTC()
	conv := model.Conversation{
		ID:             id,
		FunnelID:       funnelID,
		Status:         model.StatusActive,
		LeadData:       leadData,
		StartedAt:      now,
		LastActivityAt: now,
	}

	leadJson, err := marshalLeadData(leadData)
	if err != nil {
		return model.Conversation{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation (id, funnel_id, status, lead_data, started_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID,
		conv.FunnelID,
		conv.Status,
		leadJson,
		conv.StartedAt,
		conv.LastActivityAt,
	)
	if err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

// MergeLeadData patches the conversation lead-data bag without dropping
// existing keys, and refreshes last_activity_at.
func (s *Store) MergeLeadData(ctx context.Context, conversationID string, patch map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var leadJson string
	err = tx.QueryRowContext(ctx, `
		SELECT lead_data FROM conversation WHERE id = ?`,
		conversationID,
	).Scan(&leadJson)
	if err != nil {
		return err
	}

	leadData := map[string]any{}
	if leadJson != "" {
		err = json.Unmarshal([]byte(leadJson), &leadData)
		if err != nil {
			return err
		}
	}
	for k, v := range patch {
		leadData[k] = v
	}

	merged, err := marshalLeadData(leadData)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversation
		SET lead_data = ?, last_activity_at = ?
		WHERE id = ?`,
		merged,
		time.Now().UTC(),
		conversationID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CompleteConversation(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation
		SET status = ?, completed_at = ?
		WHERE id = ?`,
		model.StatusCompleted,
		time.Now().UTC(),
		conversationID,
	)
	return err
}

// AbandonIdle flips active conversations with no activity since the cutoff
// to abandoned. Returns the number of conversations swept.
func (s *Store) AbandonIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation
		SET status = ?
		WHERE status = ?
			AND last_activity_at < ?`,
		model.StatusAbandoned,
		model.StatusActive,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) InsertResponse(ctx context.Context, resp model.LeadResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_response (id, conversation_id, block_id, response_text, attachment_url, attachment_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		resp.ID,
		resp.ConversationID,
		nullable(resp.BlockID),
		resp.ResponseText,
		nullable(resp.AttachmentURL),
		nullable(resp.AttachmentType),
		resp.CreatedAt,
	)
	return err
}

func (s *Store) TicketByCode(ctx context.Context, funnelID, code string) (*model.LeadTicket, error) {
	t := model.LeadTicket{}
	var leadJson string
	var usedAt sql.NullTime
	var sessionID sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, ticket_code, funnel_id, lead_data, created_at, expires_at, used_at, session_id
		FROM lead_ticket
		WHERE funnel_id = ?
			AND ticket_code = ?`,
		funnelID,
		code,
	).Scan(&t.ID, &t.TicketCode, &t.FunnelID, &leadJson, &t.CreatedAt, &t.ExpiresAt, &usedAt, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if leadJson != "" {
		err = json.Unmarshal([]byte(leadJson), &t.LeadData)
		if err != nil {
			return nil, err
		}
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	t.SessionID = sessionID.String

	return &t, nil
}

// ConsumeTicket marks a ticket used by the given session. Single-use: a
// second consumption attempt reports ErrTicketUsed.
func (s *Store) ConsumeTicket(ctx context.Context, ticketID, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lead_ticket
		SET used_at = ?, session_id = ?
		WHERE id = ?
			AND used_at IS NULL`,
		time.Now().UTC(),
		sessionID,
		ticketID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n < 1 {
		return ErrTicketUsed
	}
	return nil
}

func marshalLeadData(leadData map[string]any) (string, error) {
	if leadData == nil {
		return "{}", nil
	}
	b, err := json.Marshal(leadData)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
