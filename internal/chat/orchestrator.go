// Package chat runs grounded chat turns: it retrieves transcript excerpts,
// streams a reply from the model with timestamp citations rewritten into
// links, and persists both sides of the conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/lecture-rag/internal/llm"
	"github.com/bull/lecture-rag/internal/retrieval"
	"github.com/bull/lecture-rag/internal/store"
)

// SearchLimit is the number of excerpts retrieved per turn.
const SearchLimit = 5

// Searcher finds transcript excerpts. It fails only when ctx is done.
type Searcher interface {
	Search(ctx context.Context, query, sourceID string, limit int) (*retrieval.SearchResult, error)
}

// TurnStore persists chat turns.
type TurnStore interface {
	SaveTurn(ctx context.Context, turn *store.Turn) error
}

// TitleResolver looks up a source video's title.
type TitleResolver interface {
	Title(ctx context.Context, sourceID string) (string, error)
}

// Streamer streams a model reply as text fragments.
type Streamer interface {
	Stream(ctx context.Context, req llm.Request, onText func(string)) error
}

// Orchestrator processes chat turns one at a time per call. It is the only
// writer of assistant turns.
type Orchestrator struct {
	search Searcher
	turns  TurnStore
	titles TitleResolver
	model  Streamer
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates an Orchestrator. titles may be nil.
func NewOrchestrator(search Searcher, turns TurnStore, titles TitleResolver, model Streamer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		search: search,
		turns:  turns,
		titles: titles,
		model:  model,
		logger: logger,
		now:    time.Now,
	}
}

// DeriveChatID names the thread of a user's conversations about one source
// (or "general") on one UTC day.
func DeriveChatID(userID, sourceID string, at time.Time) string {
	if userID == "" {
		userID = "anonymous"
	}
	scope := sourceID
	if scope == "" {
		scope = "general"
	}
	return fmt.Sprintf("%s_%s_%s", userID, scope, at.UTC().Format("2006-01-02"))
}

// Stream runs one turn and reports progress through emit: a sources event,
// token events, and finally either done or a single error event.
//
// The user turn is saved before the model is called. The assistant turn is
// saved once, after the model finishes; when ctx is cancelled mid-stream
// nothing is saved for the assistant and ctx.Err() is returned. A model
// failure is reported as an error event and also returned.
func (o *Orchestrator) Stream(ctx context.Context, req Request, emit func(Event)) error {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ErrEmptyMessage
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = DeriveChatID(req.UserID, req.SourceID, o.now())
	}
	log := o.logger.With("chat", chatID, "source", req.SourceID)

	title := o.resolveTitle(ctx, req.SourceID)

	result, err := o.search.Search(ctx, message, req.SourceID, SearchLimit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	emit(Event{Type: EventSources, Sources: &Sources{
		Mode:   string(result.Mode),
		Title:  title,
		Chunks: result.Matches,
	}})

	if err := o.turns.SaveTurn(ctx, &store.Turn{
		ChatID:   chatID,
		UserID:   req.UserID,
		Role:     store.RoleUser,
		Content:  message,
		SourceID: req.SourceID,
	}); err != nil {
		emit(Event{Type: EventError, ChatID: chatID, Code: CodeStorage, Error: "Your message could not be saved. Please try again."})
		return fmt.Errorf("save user turn: %w", err)
	}

	var reply strings.Builder
	rewriter := &CitationRewriter{}
	forward := func(text string) {
		if text == "" {
			return
		}
		reply.WriteString(text)
		emit(Event{Type: EventToken, Text: text})
	}

	err = o.model.Stream(ctx, llm.Request{
		System:   BuildSystemPrompt(title, result.Matches),
		Messages: BuildMessages(req.History, message),
	}, func(fragment string) {
		forward(rewriter.Write(fragment))
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Info("Chat turn cancelled, reply discarded")
		return ctxErr
	}
	if err != nil {
		log.Warn("Chat generation failed", "error", err)
		code, text := CodeUpstream, "The assistant could not generate a reply. Please try again."
		if errors.Is(err, llm.ErrUnavailable) {
			code, text = CodeUnavailable, "Chat is not configured on this server."
		}
		emit(Event{Type: EventError, ChatID: chatID, Code: code, Error: text})
		return fmt.Errorf("generate reply: %w", err)
	}
	forward(rewriter.Flush())

	content := reply.String()
	if err := o.turns.SaveTurn(ctx, &store.Turn{
		ChatID:   chatID,
		UserID:   req.UserID,
		Role:     store.RoleAssistant,
		Content:  content,
		SourceID: req.SourceID,
	}); err != nil {
		emit(Event{Type: EventError, ChatID: chatID, Code: CodeStorage, Error: "The reply could not be saved."})
		return fmt.Errorf("save assistant turn: %w", err)
	}

	log.Debug("Chat turn complete", "excerpts", len(result.Matches), "mode", result.Mode, "chars", len(content))
	emit(Event{Type: EventDone, ChatID: chatID, Citations: ResolveCitations(content)})
	return nil
}

func (o *Orchestrator) resolveTitle(ctx context.Context, sourceID string) string {
	if sourceID == "" || o.titles == nil {
		return ""
	}
	title, err := o.titles.Title(ctx, sourceID)
	if err != nil {
		o.logger.Debug("Could not resolve video title", "source", sourceID, "error", err)
		return ""
	}
	return title
}
