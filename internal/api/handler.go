// Package api is the HTTP action surface: transcript management, search,
// vector maintenance and the streaming chat endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/bull/lecture-rag/internal/chat"
	"github.com/bull/lecture-rag/internal/retrieval"
	"github.com/bull/lecture-rag/internal/store"
	"github.com/bull/lecture-rag/internal/transcript"
	"github.com/bull/lecture-rag/internal/vectorindex"
)

const maxBodyBytes = 4 << 20

// Retrieval is the transcript side of the service.
type Retrieval interface {
	EnsureTranscript(ctx context.Context, sourceID string) (*transcript.Transcript, error)
	ReplaceTranscript(ctx context.Context, sourceID, markdown string) (*transcript.Transcript, error)
	Search(ctx context.Context, query, sourceID string, limit int) (*retrieval.SearchResult, error)
	StoreChunks(ctx context.Context, sourceID string, chunks []transcript.Chunk) (int, error)
	DeleteVectors(ctx context.Context, sourceID string) error
}

// Chat runs one streamed chat turn.
type Chat interface {
	Stream(ctx context.Context, req chat.Request, emit func(chat.Event)) error
}

// History lists the turns of a chat.
type History interface {
	ListTurns(ctx context.Context, chatID string) ([]store.Turn, error)
}

// Config holds handler dependencies.
type Config struct {
	Retrieval Retrieval
	Chat      Chat
	History   History
	// UserHeader names the header carrying the authenticated user id.
	UserHeader string
	Logger     *slog.Logger
}

type handler struct {
	retrieval  Retrieval
	chat       Chat
	history    History
	userHeader string
	logger     *slog.Logger
}

// NewHandler registers the API routes on mux.
func NewHandler(mux *http.ServeMux, cfg Config) {
	h := &handler{
		retrieval:  cfg.Retrieval,
		chat:       cfg.Chat,
		history:    cfg.History,
		userHeader: cfg.UserHeader,
		logger:     cfg.Logger,
	}
	if h.userHeader == "" {
		h.userHeader = "X-User-ID"
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	mux.HandleFunc("POST /api/transcripts/{sourceID}", h.ensureTranscript)
	mux.HandleFunc("PUT /api/transcripts/{sourceID}", h.replaceTranscript)
	mux.HandleFunc("POST /api/chunks", h.storeChunks)
	mux.HandleFunc("GET /api/search", h.search)
	mux.HandleFunc("DELETE /api/vectors/{sourceID}", h.deleteVectors)
	mux.HandleFunc("POST /api/chat", h.streamChat)
	mux.HandleFunc("GET /api/chats/{chatID}", h.listTurns)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *handler) ensureTranscript(w http.ResponseWriter, r *http.Request) {
	t, err := h.retrieval.EnsureTranscript(r.Context(), r.PathValue("sourceID"))
	if err != nil {
		h.logger.Warn("Transcript extraction failed", "source", r.PathValue("sourceID"), "error", err)
		writeError(w, http.StatusBadGateway, "transcript extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type replaceRequest struct {
	Text string `json:"text"`
}

func (h *handler) replaceTranscript(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.retrieval.ReplaceTranscript(r.Context(), r.PathValue("sourceID"), req.Text)
	if errors.Is(err, retrieval.ErrEmptyTranscript) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("Transcript replacement failed", "source", r.PathValue("sourceID"), "error", err)
		writeError(w, http.StatusInternalServerError, "transcript replacement failed")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type storeChunksRequest struct {
	SourceID string             `json:"sourceId"`
	Chunks   []transcript.Chunk `json:"chunks"`
}

type storeChunksResponse struct {
	Stored int `json:"stored"`
}

func (h *handler) storeChunks(w http.ResponseWriter, r *http.Request) {
	var req storeChunksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SourceID == "" {
		writeError(w, http.StatusBadRequest, "sourceId is required")
		return
	}
	if msg := validateChunks(req.Chunks); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	stored, err := h.retrieval.StoreChunks(r.Context(), req.SourceID, req.Chunks)
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, storeChunksResponse{Stored: stored})
}

// validateChunks returns a message describing the first invalid chunk, or "".
// Record ids derive from chunk ids, so ids must be present and distinct.
func validateChunks(chunks []transcript.Chunk) string {
	seen := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		switch {
		case strings.TrimSpace(c.ID) == "":
			return fmt.Sprintf("chunks[%d]: chunkId is required", i)
		case strings.TrimSpace(c.Text) == "":
			return fmt.Sprintf("chunks[%d]: text is required", i)
		case c.StartTime < 0 || c.EndTime < c.StartTime:
			return fmt.Sprintf("chunks[%d]: invalid time range", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Sprintf("chunks[%d]: duplicate chunkId %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return ""
}

type searchResponse struct {
	Mode   string             `json:"mode"`
	Chunks []transcript.Match `json:"chunks"`
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := retrieval.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 50 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	result, err := h.retrieval.Search(r.Context(), query, q.Get("sourceId"), limit)
	if err != nil {
		// Search only fails when the client went away.
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Mode: string(result.Mode), Chunks: result.Matches})
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (h *handler) deleteVectors(w http.ResponseWriter, r *http.Request) {
	if err := h.retrieval.DeleteVectors(r.Context(), r.PathValue("sourceID")); err != nil {
		writeUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func writeUnavailable(w http.ResponseWriter, err error) {
	if errors.Is(err, vectorindex.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "vector index unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *handler) listTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := h.history.ListTurns(r.Context(), r.PathValue("chatID"))
	if err != nil {
		h.logger.Warn("Failed to list chat turns", "chat", r.PathValue("chatID"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}
