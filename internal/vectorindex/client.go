// Package vectorindex embeds transcript chunks and reads and writes them in a
// vector store, turning every backend failure into ErrUnavailable.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/lecture-rag/internal/storage"
	"github.com/bull/lecture-rag/internal/transcript"
)

const (
	// DefaultBatchSize keeps embedding bursts within provider rate limits.
	DefaultBatchSize = 10

	// DefaultConcurrency is the number of batches processed at once.
	DefaultConcurrency = 10

	// DefaultTopK is the number of matches returned when topK is not positive.
	DefaultTopK = 5

	// DefaultTimeout bounds each backend call.
	DefaultTimeout = 10 * time.Second

	constructTimeout = 30 * time.Second
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector backend. storage.QdrantStorage implements it.
type Store interface {
	Upsert(ctx context.Context, records []storage.Record) error
	Query(ctx context.Context, vector []float32, limit int, sourceID string) ([]storage.ScoredRecord, error)
	DeleteBySource(ctx context.Context, sourceID string) error
}

// Factory builds the Store on first use.
type Factory func(ctx context.Context) (Store, error)

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
}

// Client writes chunk vectors and answers similarity queries.
//
// The backend is constructed lazily and only once. When construction fails the
// failure is remembered and every later call returns ErrUnavailable without
// another attempt.
type Client struct {
	embedder Embedder
	factory  Factory
	opts     Options
	logger   *slog.Logger

	once    sync.Once
	store   Store
	initErr error
}

// NewClient creates a Client. factory is not invoked until the first call.
func NewClient(embedder Embedder, factory Factory, opts Options, logger *slog.Logger) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		embedder: embedder,
		factory:  factory,
		opts:     opts,
		logger:   logger,
	}
}

// NewStaticClient wraps an already constructed Store.
func NewStaticClient(embedder Embedder, store Store, opts Options, logger *slog.Logger) *Client {
	return NewClient(embedder, func(context.Context) (Store, error) { return store, nil }, opts, logger)
}

// Available reports whether the backend could be constructed.
func (c *Client) Available(ctx context.Context) bool {
	_, err := c.backend(ctx)
	return err == nil
}

func (c *Client) backend(ctx context.Context) (Store, error) {
	c.once.Do(func() {
		if c.factory == nil {
			c.initErr = fmt.Errorf("%w: no backend configured", ErrUnavailable)
			return
		}
		// The outcome is cached, so construction ignores the caller's cancellation.
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constructTimeout)
		defer cancel()

		store, err := c.factory(buildCtx)
		if err != nil {
			c.initErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			c.logger.Warn("Vector index unavailable, searches will use transcript fallback", "error", err)
			return
		}
		c.store = store
	})
	return c.store, c.initErr
}

// Upsert embeds chunks and writes them under "<sourceID>_<chunkID>".
//
// Chunks are split into batches that run concurrently and independently. A
// chunk that cannot be embedded, or a batch that cannot be written, is logged
// and skipped. The returned count covers stored records only. Errors are
// ErrUnavailable when there is no backend at all, or ctx.Err() when the
// caller's context ended before every batch ran.
func (c *Client) Upsert(ctx context.Context, sourceID string, chunks []transcript.Chunk) (int, error) {
	store, err := c.backend(ctx)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	var stored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for start := 0; start < len(chunks); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(chunks))
		batch := chunks[start:end]

		g.Go(func() error {
			n := c.upsertBatch(gctx, store, sourceID, batch)
			stored.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()

	total := int(stored.Load())
	if err := ctx.Err(); err != nil {
		c.logger.Info("Chunk upsert interrupted", "source", sourceID, "chunks", len(chunks), "stored", total, "error", err)
		return total, err
	}
	c.logger.Info("Stored chunk vectors", "source", sourceID, "chunks", len(chunks), "stored", total)
	return total, nil
}

// upsertBatch embeds and writes one batch, returning the number of records written.
func (c *Client) upsertBatch(ctx context.Context, store Store, sourceID string, batch []transcript.Chunk) int {
	records := make([]storage.Record, 0, len(batch))
	for _, chunk := range batch {
		vec, err := c.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			c.logger.Warn("Skipping chunk, embedding failed", "source", sourceID, "chunk", chunk.ID, "error", err)
			continue
		}
		records = append(records, storage.Record{
			ID:        storage.RecordID(sourceID, chunk.ID),
			SourceID:  sourceID,
			ChunkID:   chunk.ID,
			Text:      chunk.Text,
			StartTime: chunk.StartTime,
			EndTime:   chunk.EndTime,
			Values:    vec,
		})
	}
	if len(records) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := store.Upsert(ctx, records); err != nil {
		c.logger.Warn("Skipping batch, upsert failed",
			"source", sourceID, "first_chunk", batch[0].ID, "size", len(records), "error", err)
		return 0
	}
	return len(records)
}

// Query embeds text and returns up to topK matches, restricted to sourceID when
// it is non-empty. Order is the backend's similarity order. Any failure is
// reported as ErrUnavailable.
func (c *Client) Query(ctx context.Context, text, sourceID string, topK int) ([]transcript.Match, error) {
	store, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	results, err := store.Query(ctx, vec, topK, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	matches := make([]transcript.Match, 0, min(len(results), topK))
	for _, r := range results {
		if len(matches) == topK {
			break
		}
		matches = append(matches, transcript.Match{
			Text:      r.Text,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		})
	}
	return matches, nil
}

// DeleteBySource removes every record of sourceID.
func (c *Client) DeleteBySource(ctx context.Context, sourceID string) error {
	store, err := c.backend(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := store.DeleteBySource(ctx, sourceID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.logger.Info("Deleted chunk vectors", "source", sourceID)
	return nil
}
