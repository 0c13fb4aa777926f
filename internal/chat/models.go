package chat

import "github.com/bull/lecture-rag/internal/transcript"

// Message is a prior exchange supplied by the caller as conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat turn.
type Request struct {
	UserID   string    `json:"-"`
	Message  string    `json:"message"`
	History  []Message `json:"history,omitempty"`
	SourceID string    `json:"sourceId,omitempty"`
	ChatID   string    `json:"chatId,omitempty"`
}

// EventType names an event sent to the caller while a turn is processed.
type EventType string

const (
	EventSources EventType = "sources"
	EventToken   EventType = "token"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Error codes carried by error events.
const (
	CodeUnavailable = "llm_unavailable"
	CodeUpstream    = "llm_failed"
	CodeStorage     = "storage_failed"
)

// Sources lists the excerpts the reply is grounded on. No chunks means no
// relevant content was found.
type Sources struct {
	Mode   string             `json:"mode"`
	Title  string             `json:"title,omitempty"`
	Chunks []transcript.Match `json:"chunks"`
}

// Event is one step of a streamed turn.
type Event struct {
	Type      EventType `json:"type"`
	Text      string    `json:"text,omitempty"`
	Sources   *Sources  `json:"sources,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	Citations []int     `json:"citations,omitempty"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
}
