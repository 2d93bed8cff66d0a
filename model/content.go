package model

import "time"

type BlockType string

const (
	BlockText            BlockType = "text"
	BlockQuestion        BlockType = "question"
	BlockImage           BlockType = "image"
	BlockVideo           BlockType = "video"
	BlockAudio           BlockType = "audio"
	BlockTypingEffect    BlockType = "typing_effect"
	BlockRecordingEffect BlockType = "recording_effect"
	BlockDelay           BlockType = "delay"
	BlockEnd             BlockType = "end"
)

func (t BlockType) Valid() bool {
	switch t {
	case BlockText, BlockQuestion, BlockImage, BlockVideo, BlockAudio,
		BlockTypingEffect, BlockRecordingEffect, BlockDelay, BlockEnd:
		return true
	}
	return false
}

// IsMedia reports whether the block displays a media attachment.
func (t BlockType) IsMedia() bool {
	return t == BlockImage || t == BlockVideo || t == BlockAudio
}

type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionEmail          QuestionType = "email"
	QuestionPhone          QuestionType = "phone"
	QuestionMultipleChoice QuestionType = "multiple_choice"
)

// Content is the per-type payload of a block, stored as a single JSON
// column. Which fields are meaningful depends on the block type; the
// accessors below apply the per-type defaults.
type Content struct {
	Text         string       `json:"text,omitempty"`
	MediaURL     string       `json:"mediaUrl,omitempty"`
	DurationMs   int          `json:"duration,omitempty"`
	QuestionType QuestionType `json:"questionType,omitempty"`
	Options      []string     `json:"options,omitempty"`
	Validation   *Validation  `json:"validation,omitempty"`
}

type Validation struct {
	Required bool   `json:"required,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
}

const (
	defaultEffectDuration = 2000 * time.Millisecond
	defaultDelayDuration  = 1000 * time.Millisecond
)

// Duration returns the pause length for effect and delay blocks, applying
// the authoring defaults when the editor left it unset.
func (c Content) Duration(t BlockType) time.Duration {
	if c.DurationMs > 0 {
		return time.Duration(c.DurationMs) * time.Millisecond
	}
	switch t {
	case BlockTypingEffect, BlockRecordingEffect:
		return defaultEffectDuration
	case BlockDelay:
		return defaultDelayDuration
	}
	return 0
}

// DefaultContent is what the editor seeds a freshly dropped block with.
func DefaultContent(t BlockType) Content {
	switch t {
	case BlockText:
		return Content{Text: "Nova mensagem de texto"}
	case BlockQuestion:
		return Content{Text: "Qual é a sua pergunta?", QuestionType: QuestionText}
	case BlockImage, BlockVideo:
		return Content{MediaURL: "", Text: ""}
	case BlockAudio:
		return Content{MediaURL: ""}
	case BlockTypingEffect, BlockRecordingEffect:
		return Content{DurationMs: 2000}
	case BlockDelay:
		return Content{DurationMs: 1000}
	}
	return Content{}
}
