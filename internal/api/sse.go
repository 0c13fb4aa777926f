package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bull/lecture-rag/internal/chat"
)

// sseWriter writes chat events as server-sent events, one JSON object per
// event, flushing after each.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(ev chat.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (h *handler) streamChat(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(h.userHeader))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing "+h.userHeader+" header")
		return
	}

	var req chat.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	req.UserID = userID

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// A client disconnect cancels r.Context(), which stops the turn.
	err := h.chat.Stream(r.Context(), req, func(ev chat.Event) {
		if err := sse.send(ev); err != nil {
			h.logger.Debug("Failed to write chat event", "error", err)
		}
	})
	if err != nil {
		h.logger.Info("Chat turn ended early", "user", userID, "source", req.SourceID, "error", err)
	}
}
