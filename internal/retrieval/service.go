// Package retrieval owns source transcripts and their vectors. It extracts and
// indexes transcripts on demand and answers searches, falling back to a plain
// substring scan when the vector index cannot help.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bull/lecture-rag/internal/store"
	"github.com/bull/lecture-rag/internal/transcript"
	"github.com/bull/lecture-rag/internal/youtube"
)

const (
	// DefaultLimit is the number of matches returned when the caller passes zero.
	DefaultLimit = 5

	// ExtractTimeout bounds one shared extraction, indexing included.
	ExtractTimeout = 5 * time.Minute
)

// TranscriptStore persists transcripts. Get returns store.ErrNotFound for a
// source that was never attempted.
type TranscriptStore interface {
	Get(ctx context.Context, sourceID string) (*transcript.Transcript, error)
	Save(ctx context.Context, t *transcript.Transcript) error
	Delete(ctx context.Context, sourceID string) error
}

// CaptionSource extracts timed captions for a source video.
type CaptionSource interface {
	FetchCaptions(ctx context.Context, sourceID string) ([]transcript.CaptionItem, error)
}

// VectorIndex is the chunk vector index. Errors from it mean "unavailable".
type VectorIndex interface {
	Upsert(ctx context.Context, sourceID string, chunks []transcript.Chunk) (int, error)
	Query(ctx context.Context, text, sourceID string, topK int) ([]transcript.Match, error)
	DeleteBySource(ctx context.Context, sourceID string) error
}

// Mode says which path produced a SearchResult.
type Mode string

const (
	ModeVector    Mode = "vector"
	ModeSubstring Mode = "substring"
	ModeNone      Mode = "none"
)

// SearchResult is the outcome of Search. An empty result has ModeNone and is
// not an error.
type SearchResult struct {
	Mode    Mode               `json:"mode"`
	Matches []transcript.Match `json:"matches"`
}

// Service is the only writer of transcripts, chunks and vectors.
type Service struct {
	transcripts TranscriptStore
	captions    CaptionSource
	index       VectorIndex
	chunker     *transcript.Chunker
	logger      *slog.Logger

	extractions singleflight.Group
}

// NewService creates a retrieval Service.
func NewService(transcripts TranscriptStore, captions CaptionSource, index VectorIndex, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		transcripts: transcripts,
		captions:    captions,
		index:       index,
		chunker:     transcript.NewChunker(),
		logger:      logger,
	}
}

// EnsureTranscript returns the stored transcript of sourceID, extracting and
// indexing it first if it was never attempted. A stored transcript, including
// the unavailable marker, is returned unchanged without touching the caption
// source. Concurrent calls for one source share a single extraction.
func (s *Service) EnsureTranscript(ctx context.Context, sourceID string) (*transcript.Transcript, error) {
	t, err := s.transcripts.Get(ctx, sourceID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load transcript %s: %w", sourceID, err)
	}

	// The flight is shared by every waiting caller, so it runs detached from
	// the one that started it. A caller that gives up stops waiting only.
	ch := s.extractions.DoChan(sourceID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ExtractTimeout)
		defer cancel()
		return s.extract(fctx, sourceID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*transcript.Transcript), nil
	}
}

func (s *Service) extract(ctx context.Context, sourceID string) (*transcript.Transcript, error) {
	// A flight that finished just before this one started has already written it.
	if t, err := s.transcripts.Get(ctx, sourceID); err == nil {
		return t, nil
	}

	s.logger.Info("Extracting transcript", "source", sourceID)
	items, err := s.captions.FetchCaptions(ctx, sourceID)
	if err != nil {
		if errors.Is(err, youtube.ErrNoCaptions) || errors.Is(err, youtube.ErrVideoNotFound) {
			s.logger.Info("No transcript available, recording marker", "source", sourceID, "reason", err)
			return s.saveUnavailable(ctx, sourceID)
		}
		return nil, fmt.Errorf("extract captions for %s: %w", sourceID, err)
	}

	chunks := s.chunker.ChunkItems(items, sourceID)
	if len(chunks) == 0 {
		s.logger.Info("Captions were empty, recording marker", "source", sourceID)
		return s.saveUnavailable(ctx, sourceID)
	}

	t := &transcript.Transcript{
		SourceID: sourceID,
		Text:     transcript.JoinItems(items),
		Chunks:   chunks,
		Status:   transcript.StatusExtracted,
		Origin:   transcript.OriginCaptions,
	}
	if err := s.transcripts.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save transcript %s: %w", sourceID, err)
	}

	if err := s.indexTranscript(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) saveUnavailable(ctx context.Context, sourceID string) (*transcript.Transcript, error) {
	t := &transcript.Transcript{
		SourceID: sourceID,
		Chunks:   []transcript.Chunk{},
		Status:   transcript.StatusUnavailable,
	}
	if err := s.transcripts.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save unavailable marker %s: %w", sourceID, err)
	}
	return t, nil
}

// indexTranscript writes the chunks of t to the vector index and promotes t to
// indexed when every chunk was stored. An unavailable index leaves t extracted.
func (s *Service) indexTranscript(ctx context.Context, t *transcript.Transcript) error {
	stored, err := s.index.Upsert(ctx, t.SourceID, t.Chunks)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn("Vector index unavailable, transcript stays unindexed", "source", t.SourceID, "error", err)
		return nil
	}

	s.logger.Info("Indexed transcript", "source", t.SourceID, "chunks", len(t.Chunks), "stored", stored)
	return s.updateStatus(ctx, t, stored)
}

// updateStatus records whether every chunk of t is in the vector index.
func (s *Service) updateStatus(ctx context.Context, t *transcript.Transcript, stored int) error {
	status := transcript.StatusExtracted
	if stored == len(t.Chunks) {
		status = transcript.StatusIndexed
	}
	if t.Status == status {
		return nil
	}

	t.Status = status
	if err := s.transcripts.Save(ctx, t); err != nil {
		return fmt.Errorf("mark transcript %s %s: %w", t.SourceID, status, err)
	}
	return nil
}

// Reindex writes the stored chunks of sourceID to the vector index again and
// marks the transcript indexed only when every chunk was written. The
// unavailable marker is returned untouched. It reports the stored count.
func (s *Service) Reindex(ctx context.Context, sourceID string) (*transcript.Transcript, int, error) {
	t, err := s.transcripts.Get(ctx, sourceID)
	if err != nil {
		return nil, 0, fmt.Errorf("load transcript %s: %w", sourceID, err)
	}
	if !t.Available() {
		return t, 0, nil
	}

	stored, err := s.index.Upsert(ctx, sourceID, t.Chunks)
	if err != nil {
		return t, stored, err
	}
	if err := s.updateStatus(ctx, t, stored); err != nil {
		return t, stored, err
	}
	return t, stored, nil
}

// Search finds up to limit chunks relevant to query, scoped to sourceID when
// it is non-empty. It fails only when ctx is done.
func (s *Service) Search(ctx context.Context, query, sourceID string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	matches, err := s.index.Query(ctx, query, sourceID, limit)
	if err == nil && len(matches) > 0 {
		return &SearchResult{Mode: ModeVector, Matches: matches}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		s.logger.Debug("Vector search unavailable, falling back to substring search", "source", sourceID, "error", err)
	}

	matches = s.substringSearch(ctx, query, sourceID, limit)
	if len(matches) > 0 {
		return &SearchResult{Mode: ModeSubstring, Matches: matches}, nil
	}
	return &SearchResult{Mode: ModeNone, Matches: []transcript.Match{}}, nil
}

// substringSearch scans the stored chunks of one source in storage order.
func (s *Service) substringSearch(ctx context.Context, query, sourceID string, limit int) []transcript.Match {
	needle := strings.ToLower(strings.TrimSpace(query))
	if sourceID == "" || needle == "" {
		return nil
	}

	t, err := s.transcripts.Get(ctx, sourceID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to load transcript for substring search", "source", sourceID, "error", err)
		}
		return nil
	}

	var matches []transcript.Match
	for _, c := range t.Chunks {
		if strings.Contains(strings.ToLower(c.Text), needle) {
			matches = append(matches, c.ToMatch())
			if len(matches) == limit {
				break
			}
		}
	}
	return matches
}

// StoreChunks indexes chunks for sourceID and reports how many were stored.
func (s *Service) StoreChunks(ctx context.Context, sourceID string, chunks []transcript.Chunk) (int, error) {
	return s.index.Upsert(ctx, sourceID, chunks)
}

// DeleteVectors removes every vector of sourceID.
func (s *Service) DeleteVectors(ctx context.Context, sourceID string) error {
	return s.index.DeleteBySource(ctx, sourceID)
}

// ReplaceTranscript stores a manually supplied markdown transcript for
// sourceID in place of whatever was there, and re-indexes it. Chunk times are
// estimated from text position.
func (s *Service) ReplaceTranscript(ctx context.Context, sourceID, markdown string) (*transcript.Transcript, error) {
	text := strings.TrimSpace(transcript.PlainText([]byte(markdown)))
	chunks := s.chunker.ChunkText(text, sourceID)
	if len(chunks) == 0 {
		return nil, ErrEmptyTranscript
	}

	s.dropVectors(ctx, sourceID)

	t := &transcript.Transcript{
		SourceID: sourceID,
		Text:     text,
		Chunks:   chunks,
		Status:   transcript.StatusExtracted,
		Origin:   transcript.OriginManual,
	}
	if err := s.transcripts.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save transcript %s: %w", sourceID, err)
	}
	if err := s.indexTranscript(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Regenerate forgets the stored transcript of sourceID, including an
// unavailable marker, and extracts it again.
func (s *Service) Regenerate(ctx context.Context, sourceID string) (*transcript.Transcript, error) {
	if err := s.transcripts.Delete(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("delete transcript %s: %w", sourceID, err)
	}
	s.dropVectors(ctx, sourceID)
	return s.EnsureTranscript(ctx, sourceID)
}

func (s *Service) dropVectors(ctx context.Context, sourceID string) {
	if err := s.index.DeleteBySource(ctx, sourceID); err != nil {
		s.logger.Warn("Failed to delete previous vectors", "source", sourceID, "error", err)
	}
}
