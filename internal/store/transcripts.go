package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bull/lecture-rag/internal/transcript"
)

// TranscriptStore keeps one transcript per source id.
type TranscriptStore struct {
	db *DB
}

// NewTranscriptStore creates a TranscriptStore on db.
func NewTranscriptStore(db *DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Get returns the stored transcript, or ErrNotFound when extraction was never attempted.
func (s *TranscriptStore) Get(ctx context.Context, sourceID string) (*transcript.Transcript, error) {
	var t transcript.Transcript
	err := s.db.store.Get(sourceID, &t)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript %s: %w", sourceID, err)
	}
	return &t, nil
}

// Save inserts or replaces the transcript of t.SourceID and stamps UpdatedAt.
func (s *TranscriptStore) Save(ctx context.Context, t *transcript.Transcript) error {
	t.UpdatedAt = time.Now().UTC()
	if err := s.db.store.Upsert(t.SourceID, t); err != nil {
		return fmt.Errorf("failed to save transcript %s: %w", t.SourceID, err)
	}
	return nil
}

// Delete removes the transcript of sourceID. Deleting a missing transcript is not an error.
func (s *TranscriptStore) Delete(ctx context.Context, sourceID string) error {
	err := s.db.store.Delete(sourceID, transcript.Transcript{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete transcript %s: %w", sourceID, err)
	}
	return nil
}

// List returns stored transcripts ordered by source id. An empty status
// lists every transcript.
func (s *TranscriptStore) List(ctx context.Context, status transcript.Status) ([]transcript.Transcript, error) {
	query := badgerhold.Where("SourceID").Ne("")
	if status != "" {
		query = query.And("Status").Eq(status)
	}

	var out []transcript.Transcript
	if err := s.db.store.Find(&out, query.SortBy("SourceID")); err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	return out, nil
}
