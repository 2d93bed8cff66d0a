package funnel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbolis/quick-funnel/log"
	"github.com/mbolis/quick-funnel/model"
)

// State of one interpreter run. Idle is the only state that accepts Start;
// Completed still accepts replies but never dispatches another block.
type State string

const (
	StateIdle            State = "idle"
	StateInitializing    State = "initializing"
	StateAgentHandoff    State = "agent_handoff"
	StateRunning         State = "running"
	StateWaitingForInput State = "waiting_for_input"
	StateCompleted       State = "completed"
)

// Indicator is the visual-only sub-state rendered while an effect block or
// the agent handoff runs. Delay blocks render nothing.
type Indicator string

const (
	IndicatorNone       Indicator = ""
	IndicatorTyping     Indicator = "typing"
	IndicatorRecording  Indicator = "recording"
	IndicatorSearching  Indicator = "searching_agent"
	IndicatorAgentFound Indicator = "agent_found"
)

type Author string

const (
	AuthorBot  Author = "bot"
	AuthorUser Author = "user"
)

// Message is one transcript entry. The transcript lives in engine memory
// for the lifetime of the run: it stays the local source of truth even when
// a durable write fails.
type Message struct {
	ID             string          `json:"id"`
	Author         Author          `json:"author"`
	BlockType      model.BlockType `json:"block_type,omitempty"`
	Content        model.Content   `json:"content"`
	AttachmentURL  string          `json:"attachment_url,omitempty"`
	AttachmentType string          `json:"attachment_type,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Store is the persistence the engine writes through. All writes are
// best-effort from the engine's point of view except conversation creation,
// without which there is no session to run.
type Store interface {
	CreateConversation(ctx context.Context, id, funnelID string, leadData map[string]any) (model.Conversation, error)
	MergeLeadData(ctx context.Context, conversationID string, patch map[string]any) error
	CompleteConversation(ctx context.Context, conversationID string) error
	InsertResponse(ctx context.Context, resp model.LeadResponse) error
	ConsumeTicket(ctx context.Context, ticketID, sessionID string) error
}

var (
	ErrStarted    = errors.New("conversation already started")
	ErrNotWaiting = errors.New("not waiting for input")
)

// UI pacing, same beats the original chat applied between dispatches.
const (
	messageBeat      = 500 * time.Millisecond
	textAdvanceBeat  = 800 * time.Millisecond
	mediaAdvanceBeat = 1000 * time.Millisecond
	replyResumeBeat  = 800 * time.Millisecond
	handoffSearch    = 2000 * time.Millisecond
	handoffFound     = 1500 * time.Millisecond
	introBeat        = 1000 * time.Millisecond
)

// Engine interprets one funnel script for one conversation. A single run
// goroutine walks the blocks; Start and Reply drive it. There is no
// parallelism inside a run: block n+1 never dispatches before block n's
// side effects were issued.
type Engine struct {
	funnelID   string
	blocks     []model.Block
	ticketCode string
	ticket     *model.LeadTicket
	store      Store
	clock      Clock

	mu             sync.Mutex
	state          State
	indicator      Indicator
	cursor         int
	vars           map[string]any
	messages       []Message
	conversationID string
	lastTouch      time.Time
}

// New prepares an engine for one conversation. ticketCode is the capture
// code the client presented, empty for a plain session; ticket is the
// matching record, nil when the code resolved to nothing.
func New(funnelID string, blocks []model.Block, ticketCode string, ticket *model.LeadTicket, store Store, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	return &Engine{
		funnelID:       funnelID,
		blocks:         blocks,
		ticketCode:     ticketCode,
		ticket:         ticket,
		store:          store,
		clock:          clock,
		state:          StateIdle,
		conversationID: uuid.NewString(),
		lastTouch:      clock.Now(),
	}
}

func (e *Engine) ConversationID() string { return e.conversationID }

// Start runs the interpreter until the first suspension point (a question,
// or completion). It is latched: only the Idle state accepts it, any later
// trigger is a no-op returning ErrStarted.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrStarted
	}
	e.state = StateInitializing
	e.mu.Unlock()

	var seed map[string]any
	var ticket *model.LeadTicket
	if e.ticketCode != "" {
		if err := ValidateTicket(e.ticket, e.clock.Now()); err != nil {
			// degrade to an un-seeded session, but tell the user
			e.appendBotText(TicketWarning(err))
		} else {
			ticket = e.ticket
			seed = map[string]any{"ticket_code": ticket.TicketCode}
			for k, v := range ticket.LeadData {
				seed[k] = v
			}
		}
	}

	if ticket != nil {
		e.setState(StateAgentHandoff)
		e.setIndicator(IndicatorSearching)
		if err := e.clock.Sleep(ctx, handoffSearch); err != nil {
			return err
		}
		e.setIndicator(IndicatorAgentFound)
		if err := e.clock.Sleep(ctx, handoffFound); err != nil {
			return err
		}
		e.setIndicator(IndicatorNone)
	}

	_, err := e.store.CreateConversation(ctx, e.conversationID, e.funnelID, seed)
	if err != nil {
		log.Errorf("funnel.start.create_conversation: %s", err)
		return err
	}

	if ticket != nil {
		e.mu.Lock()
		e.vars = LeadVars(seed, ticket.TicketCode)
		e.mu.Unlock()

		e.appendUser(FormatTicketIntro(ticket), "", "")

		// single-use redemption, before any block dispatch
		err = e.store.ConsumeTicket(ctx, ticket.ID, e.conversationID)
		if err != nil {
			log.Errorf("funnel.start.consume_ticket: %s", err)
		}

		if err := e.clock.Sleep(ctx, introBeat); err != nil {
			return err
		}
	}

	e.setState(StateRunning)
	return e.run(ctx)
}

// run dispatches blocks from the cursor until a question suspends the run
// or the script terminates.
func (e *Engine) run(ctx context.Context) error {
	for {
		e.mu.Lock()
		i := e.cursor
		e.mu.Unlock()

		if i >= len(e.blocks) {
			// past the last block: same side effects as an explicit end
			return e.complete(ctx)
		}
		block := e.blocks[i]

		switch block.Type {
		case model.BlockEnd:
			return e.complete(ctx)

		case model.BlockText:
			if err := e.clock.Sleep(ctx, messageBeat); err != nil {
				return err
			}
			e.appendBot(block)
			if err := e.clock.Sleep(ctx, textAdvanceBeat); err != nil {
				return err
			}
			e.advance(i)

		case model.BlockQuestion:
			if err := e.clock.Sleep(ctx, messageBeat); err != nil {
				return err
			}
			e.appendBot(block)
			e.setState(StateWaitingForInput)
			return nil

		case model.BlockImage, model.BlockVideo, model.BlockAudio:
			if err := e.clock.Sleep(ctx, messageBeat); err != nil {
				return err
			}
			e.appendBot(block)
			if err := e.clock.Sleep(ctx, mediaAdvanceBeat); err != nil {
				return err
			}
			e.advance(i)

		case model.BlockTypingEffect:
			if err := e.effect(ctx, IndicatorTyping, block); err != nil {
				return err
			}
			e.advance(i)

		case model.BlockRecordingEffect:
			if err := e.effect(ctx, IndicatorRecording, block); err != nil {
				return err
			}
			e.advance(i)

		case model.BlockDelay:
			// silent pause, no indicator, no transcript entry
			if err := e.clock.Sleep(ctx, block.Content.Duration(block.Type)); err != nil {
				return err
			}
			e.advance(i)

		default:
			// authoring validates the closed type set; don't wedge the run
			log.Warnf("funnel.run.unknown_block_type: %s", block.Type)
			e.advance(i)
		}
	}
}

func (e *Engine) effect(ctx context.Context, kind Indicator, block model.Block) error {
	e.setIndicator(kind)
	err := e.clock.Sleep(ctx, block.Content.Duration(block.Type))
	e.setIndicator(IndicatorNone)
	return err
}

// Reply feeds a user text answer into the engine. Valid while waiting for
// input, and after completion (terminal mode keeps collecting replies with
// no block attached and never advances).
func (e *Engine) Reply(ctx context.Context, text string) error {
	return e.reply(ctx, text, text, "", "")
}

// ReplyAttachment records an uploaded image as the answer.
func (e *Engine) ReplyAttachment(ctx context.Context, url, attachmentType string) error {
	return e.reply(ctx, "Enviou uma imagem", "Imagem enviada", url, attachmentType)
}

func (e *Engine) reply(ctx context.Context, text, lastResponse, attachmentURL, attachmentType string) error {
	e.mu.Lock()
	state := e.state
	var blockID string
	switch state {
	case StateWaitingForInput:
		blockID = e.blocks[e.cursor].ID
		// claim the advance before releasing the lock, so a concurrent
		// reply cannot re-answer the same question
		e.state = StateRunning
		e.cursor = model.NextIndex(e.blocks, e.cursor)
	case StateCompleted:
	default:
		e.mu.Unlock()
		return ErrNotWaiting
	}

	e.messages = append(e.messages, Message{
		ID:             uuid.NewString(),
		Author:         AuthorUser,
		Content:        model.Content{Text: text},
		AttachmentURL:  attachmentURL,
		AttachmentType: attachmentType,
		CreatedAt:      e.clock.Now(),
	})
	e.lastTouch = e.clock.Now()
	e.mu.Unlock()

	// best-effort writes: the optimistic transcript entry stays either way
	err := e.store.InsertResponse(ctx, model.LeadResponse{
		ConversationID: e.conversationID,
		BlockID:        blockID,
		ResponseText:   text,
		AttachmentURL:  attachmentURL,
		AttachmentType: attachmentType,
	})
	if err != nil {
		log.Errorf("funnel.reply.save_response: %s", err)
	}
	err = e.store.MergeLeadData(ctx, e.conversationID, map[string]any{"lastResponse": lastResponse})
	if err != nil {
		log.Errorf("funnel.reply.merge_lead_data: %s", err)
	}

	if state == StateCompleted {
		return nil
	}

	if err := e.clock.Sleep(ctx, replyResumeBeat); err != nil {
		return err
	}
	return e.run(ctx)
}

func (e *Engine) complete(ctx context.Context) error {
	err := e.store.CompleteConversation(ctx, e.conversationID)
	if err != nil {
		log.Errorf("funnel.complete: %s", err)
	}
	e.setState(StateCompleted)
	return nil
}

func (e *Engine) advance(from int) {
	e.mu.Lock()
	e.cursor = model.NextIndex(e.blocks, from)
	e.mu.Unlock()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) setIndicator(i Indicator) {
	e.mu.Lock()
	e.indicator = i
	e.mu.Unlock()
}

func (e *Engine) appendBot(block model.Block) {
	content := block.Content

	e.mu.Lock()
	content.Text = Substitute(content.Text, e.vars)
	e.messages = append(e.messages, Message{
		ID:        uuid.NewString(),
		Author:    AuthorBot,
		BlockType: block.Type,
		Content:   content,
		CreatedAt: e.clock.Now(),
	})
	e.lastTouch = e.clock.Now()
	e.mu.Unlock()
}

func (e *Engine) appendBotText(text string) {
	e.mu.Lock()
	e.messages = append(e.messages, Message{
		ID:        uuid.NewString(),
		Author:    AuthorBot,
		BlockType: model.BlockText,
		Content:   model.Content{Text: text},
		CreatedAt: e.clock.Now(),
	})
	e.mu.Unlock()
}

func (e *Engine) appendUser(text, attachmentURL, attachmentType string) {
	e.mu.Lock()
	e.messages = append(e.messages, Message{
		ID:             uuid.NewString(),
		Author:         AuthorUser,
		Content:        model.Content{Text: text},
		AttachmentURL:  attachmentURL,
		AttachmentType: attachmentType,
		CreatedAt:      e.clock.Now(),
	})
	e.mu.Unlock()
}

// Snapshot is the client's poll view of a run.
type Snapshot struct {
	ConversationID string    `json:"conversation_id"`
	State          State     `json:"state"`
	Indicator      Indicator `json:"indicator,omitempty"`
	CanReply       bool      `json:"can_reply"`
	Messages       []Message `json:"messages"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	msgs := make([]Message, len(e.messages))
	copy(msgs, e.messages)

	return Snapshot{
		ConversationID: e.conversationID,
		State:          e.state,
		Indicator:      e.indicator,
		CanReply:       e.state == StateWaitingForInput || e.state == StateCompleted,
		Messages:       msgs,
	}
}

func (e *Engine) lastActivity() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTouch
}
