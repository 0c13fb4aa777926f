// Package indexer runs bulk extraction and re-indexing over many sources.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/lecture-rag/internal/transcript"
)

// Result contains statistics about a bulk run.
type Result struct {
	TotalSources      int
	SuccessfulSources int
	Unavailable       int
	TotalChunks       int
	IndexedChunks     int
	FailedSources     []FailedSource
	Duration          time.Duration
}

// FailedSource is a source that could not be processed.
type FailedSource struct {
	SourceID string
	Reason   string
}

// Retrieval is the subset of retrieval.Service the pipeline drives. It is
// the only writer of transcripts and vectors.
type Retrieval interface {
	EnsureTranscript(ctx context.Context, sourceID string) (*transcript.Transcript, error)
	Reindex(ctx context.Context, sourceID string) (*transcript.Transcript, int, error)
}

// Transcripts lists stored transcripts.
type Transcripts interface {
	List(ctx context.Context, status transcript.Status) ([]transcript.Transcript, error)
}

// Pipeline processes sources one after another; a failing source is recorded
// and the run continues.
type Pipeline struct {
	retrieval   Retrieval
	transcripts Transcripts
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(retrieval Retrieval, transcripts Transcripts, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		retrieval:   retrieval,
		transcripts: transcripts,
		logger:      logger,
	}
}

// EnsureAll extracts and indexes each source that is not stored yet.
func (p *Pipeline) EnsureAll(ctx context.Context, sourceIDs []string) (*Result, error) {
	start := time.Now()
	result := &Result{TotalSources: len(sourceIDs)}
	p.logger.Info("Starting extraction", "sources", len(sourceIDs))

	for _, id := range sourceIDs {
		t, err := p.retrieval.EnsureTranscript(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.fail(result, id, err)
			continue
		}
		p.count(result, t)
	}

	p.finish(result, start)
	return result, nil
}

// Reindex writes the chunks of every stored transcript to the vector index
// again and marks fully written transcripts as indexed. It is used after the
// collection was cleared or the embedding model changed.
func (p *Pipeline) Reindex(ctx context.Context) (*Result, error) {
	start := time.Now()

	stored, err := p.transcripts.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	result := &Result{TotalSources: len(stored)}
	p.logger.Info("Starting reindex", "sources", len(stored))

	for _, listed := range stored {
		if !listed.Available() {
			result.Unavailable++
			continue
		}

		t, n, err := p.retrieval.Reindex(ctx, listed.SourceID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.fail(result, listed.SourceID, err)
			continue
		}

		result.SuccessfulSources++
		result.TotalChunks += len(t.Chunks)
		result.IndexedChunks += n
		p.logger.Info("Reindexed source", "source", t.SourceID, "chunks", n, "status", t.Status)
	}

	p.finish(result, start)
	return result, nil
}

func (p *Pipeline) count(result *Result, t *transcript.Transcript) {
	if !t.Available() {
		result.Unavailable++
		return
	}
	result.SuccessfulSources++
	result.TotalChunks += len(t.Chunks)
	if t.Status == transcript.StatusIndexed {
		result.IndexedChunks += len(t.Chunks)
	}
}

func (p *Pipeline) fail(result *Result, sourceID string, err error) {
	p.logger.Warn("Failed to process source", "source", sourceID, "error", err)
	reason := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timed out"
	}
	result.FailedSources = append(result.FailedSources, FailedSource{SourceID: sourceID, Reason: reason})
}

func (p *Pipeline) finish(result *Result, start time.Time) {
	result.Duration = time.Since(start)
	p.logger.Info("Run complete",
		"successful", result.SuccessfulSources,
		"unavailable", result.Unavailable,
		"failed", len(result.FailedSources),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
}
