package model

import "time"

type Funnel struct {
	ID              string    `json:"id,omitempty"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	ProfileName     string    `json:"profile_name"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

type Block struct {
	ID          string    `json:"id,omitempty"`
	FunnelID    string    `json:"funnel_id,omitempty"`
	Type        BlockType `json:"type"`
	Content     Content   `json:"content"`
	PositionX   float64   `json:"position_x"`
	PositionY   float64   `json:"position_y"`
	OrderIndex  int       `json:"order_index"`
	NextBlockID string    `json:"next_block_id,omitempty"`
}

type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusCompleted ConversationStatus = "completed"
	StatusAbandoned ConversationStatus = "abandoned"
)

type Conversation struct {
	ID             string             `json:"id"`
	FunnelID       string             `json:"funnel_id"`
	Status         ConversationStatus `json:"status"`
	LeadData       map[string]any     `json:"lead_data,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	LastActivityAt time.Time          `json:"last_activity_at"`
}

type LeadResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	// BlockID is empty once the conversation reached its end and keeps
	// collecting free-form replies.
	BlockID        string    `json:"block_id,omitempty"`
	ResponseText   string    `json:"response_text"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	AttachmentType string    `json:"attachment_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type LeadTicket struct {
	ID         string         `json:"id"`
	TicketCode string         `json:"ticket_code"`
	FunnelID   string         `json:"funnel_id"`
	LeadData   map[string]any `json:"lead_data"`
	IPAddress  string         `json:"ip_address,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	UsedAt     *time.Time     `json:"used_at,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

// NextIndex resolves the block following blocks[i]: the explicit next
// pointer wins, a missing pointer falls through to the next order_index.
// Returns len(blocks) when blocks[i] is the last one.
func NextIndex(blocks []Block, i int) int {
	if i < 0 || i >= len(blocks) {
		return len(blocks)
	}
	if next := blocks[i].NextBlockID; next != "" {
		for j := range blocks {
			if blocks[j].ID == next {
				return j
			}
		}
	}
	return i + 1
}
