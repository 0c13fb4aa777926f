package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/lecture-rag/internal/embedding"
	"github.com/bull/lecture-rag/internal/storage"
	"github.com/bull/lecture-rag/internal/store"
	"github.com/bull/lecture-rag/internal/transcript"
	"github.com/bull/lecture-rag/internal/vectorindex"
	"github.com/bull/lecture-rag/internal/youtube"
)

const testDim = 64

type fakeCaptions struct {
	calls int32
	delay time.Duration
	items []transcript.CaptionItem
	err   error
}

func (f *fakeCaptions) FetchCaptions(ctx context.Context, sourceID string) ([]transcript.CaptionItem, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.items, f.err
}

func (f *fakeCaptions) count() int {
	return int(atomic.LoadInt32(&f.calls))
}

// memVectors is an in-memory vectorindex.Store ranking by dot product.
type memVectors struct {
	mu      sync.Mutex
	records map[string]storage.Record
}

func newMemVectors() *memVectors {
	return &memVectors{records: map[string]storage.Record{}}
}

func (m *memVectors) Upsert(ctx context.Context, records []storage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memVectors) Query(ctx context.Context, vector []float32, limit int, sourceID string) ([]storage.ScoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ScoredRecord
	for _, r := range m.records {
		if sourceID != "" && r.SourceID != sourceID {
			continue
		}
		var dot float64
		for i := range vector {
			dot += float64(vector[i]) * float64(r.Values[i])
		}
		out = append(out, storage.ScoredRecord{Record: r, Score: dot})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memVectors) DeleteBySource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.SourceID == sourceID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *memVectors) countSource(sourceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.SourceID == sourceID {
			n++
		}
	}
	return n
}

type fixture struct {
	svc         *Service
	transcripts *store.TranscriptStore
	captions    *fakeCaptions
	vectors     *memVectors
}

func newFixture(t *testing.T, configured bool) *fixture {
	t.Helper()
	db, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	embedder := embedding.NewProvider(embedding.Config{Dimension: testDim}, nil)
	f := &fixture{
		transcripts: store.NewTranscriptStore(db),
		captions:    &fakeCaptions{items: twelveMinuteCaptions()},
	}

	var index *vectorindex.Client
	if configured {
		f.vectors = newMemVectors()
		index = vectorindex.NewStaticClient(embedder, f.vectors, vectorindex.Options{}, nil)
	} else {
		index = vectorindex.NewClient(embedder, func(ctx context.Context) (vectorindex.Store, error) {
			return nil, storage.ErrNotConfigured
		}, vectorindex.Options{}, nil)
	}

	f.svc = NewService(f.transcripts, f.captions, index, nil)
	return f
}

func twelveMinuteCaptions() []transcript.CaptionItem {
	items := make([]transcript.CaptionItem, 50)
	for i := range items {
		items[i] = transcript.CaptionItem{
			Text:     fmt.Sprintf("In part %d we discuss how firms set prices and why demand matters so much.", i),
			Start:    float64(i) * 14.4,
			Duration: 14.4,
		}
	}
	return items
}

func TestEnsureTranscript_ExtractsAndIndexes(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	tr, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.NoError(t, err)
	require.NotEmpty(t, tr.Chunks)
	for _, c := range tr.Chunks {
		assert.LessOrEqual(t, c.EndTime, 720.0+1e-6)
		assert.GreaterOrEqual(t, c.EndTime, c.StartTime)
	}
	assert.Equal(t, transcript.StatusIndexed, tr.Status)
	assert.Equal(t, transcript.OriginCaptions, tr.Origin)
	assert.Equal(t, len(tr.Chunks), f.vectors.countSource("vid123"))

	stored, err := f.svc.StoreChunks(ctx, "vid123", tr.Chunks)
	require.NoError(t, err)
	assert.Equal(t, len(tr.Chunks), stored)

	persisted, err := f.transcripts.Get(ctx, "vid123")
	require.NoError(t, err)
	assert.Equal(t, transcript.StatusIndexed, persisted.Status)
}

func TestEnsureTranscript_Idempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.NoError(t, err)
	require.Equal(t, 1, f.captions.count())

	second, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.NoError(t, err)
	third, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.NoError(t, err)

	assert.Equal(t, 1, f.captions.count(), "stored transcripts are never re-extracted")
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, second, third)
}

func TestEnsureTranscript_UnavailableMarker(t *testing.T) {
	for _, cause := range []error{youtube.ErrNoCaptions, youtube.ErrVideoNotFound} {
		f := newFixture(t, true)
		f.captions.items = nil
		f.captions.err = fmt.Errorf("fetch: %w", cause)
		ctx := context.Background()

		tr, err := f.svc.EnsureTranscript(ctx, "vid404")
		require.NoError(t, err, "missing captions are a state, not an error")
		assert.Equal(t, transcript.StatusUnavailable, tr.Status)
		assert.False(t, tr.Available())

		_, err = f.svc.EnsureTranscript(ctx, "vid404")
		require.NoError(t, err)
		assert.Equal(t, 1, f.captions.count(), "marker stops repeat attempts")
	}
}

func TestEnsureTranscript_TransientFailureIsRetried(t *testing.T) {
	f := newFixture(t, true)
	f.captions.err = errors.New("connection reset")
	ctx := context.Background()

	_, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.Error(t, err)

	_, err = f.transcripts.Get(ctx, "vid123")
	assert.ErrorIs(t, err, store.ErrNotFound, "no marker for transient errors")

	f.captions.err = nil
	tr, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.NoError(t, err)
	assert.NotEmpty(t, tr.Chunks)
	assert.Equal(t, 2, f.captions.count())
}

func TestEnsureTranscript_ConcurrentCallsShareExtraction(t *testing.T) {
	f := newFixture(t, true)
	f.captions.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]*transcript.Transcript, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr, err := f.svc.EnsureTranscript(context.Background(), "vid123")
			assert.NoError(t, err)
			results[i] = tr
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.captions.count())
	for _, tr := range results {
		require.NotNil(t, tr)
		assert.Equal(t, results[0].Chunks, tr.Chunks)
	}
}

func TestEnsureTranscript_FirstCallerCancels(t *testing.T) {
	f := newFixture(t, true)
	f.captions.delay = 200 * time.Millisecond

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.EnsureTranscript(first, "vid123")
		firstErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	second := make(chan *transcript.Transcript, 1)
	go func() {
		tr, err := f.svc.EnsureTranscript(context.Background(), "vid123")
		assert.NoError(t, err)
		second <- tr
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	tr := <-second
	require.NotNil(t, tr)
	assert.Equal(t, transcript.StatusIndexed, tr.Status)
	assert.Equal(t, len(tr.Chunks), f.vectors.countSource("vid123"))
	assert.Equal(t, 1, f.captions.count())

	persisted, err := f.transcripts.Get(context.Background(), "vid123")
	require.NoError(t, err)
	assert.Equal(t, transcript.StatusIndexed, persisted.Status)
}

func TestEnsureTranscript_IndexUnavailable(t *testing.T) {
	f := newFixture(t, false)

	tr, err := f.svc.EnsureTranscript(context.Background(), "vid123")
	require.NoError(t, err)
	assert.Equal(t, transcript.StatusExtracted, tr.Status)
	assert.NotEmpty(t, tr.Chunks)
}

func TestSearch_SubstringFallback(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.transcripts.Save(ctx, &transcript.Transcript{
		SourceID: "vid123",
		Chunks: []transcript.Chunk{
			{ID: "vid123_chunk_0", Text: "Welcome to week three.", StartTime: 0, EndTime: 30},
			{ID: "vid123_chunk_1", Text: "A good Pricing Strategy starts with the customer.", StartTime: 30, EndTime: 60},
			{ID: "vid123_chunk_2", Text: "Costs come later.", StartTime: 60, EndTime: 90},
		},
		Status: transcript.StatusExtracted,
	}))
	require.NoError(t, f.transcripts.Save(ctx, &transcript.Transcript{
		SourceID: "vid456",
		Chunks: []transcript.Chunk{
			{ID: "vid456_chunk_0", Text: "Supply curves slope upward.", StartTime: 0, EndTime: 30},
		},
		Status: transcript.StatusExtracted,
	}))

	res, err := f.svc.Search(ctx, "pricing strategy", "vid123", 5)
	require.NoError(t, err)
	assert.Equal(t, ModeSubstring, res.Mode)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, 30.0, res.Matches[0].StartTime)

	res, err = f.svc.Search(ctx, "pricing strategy", "vid456", 5)
	require.NoError(t, err)
	assert.Equal(t, ModeNone, res.Mode)
	assert.Empty(t, res.Matches)
	assert.NotNil(t, res.Matches)

	res, err = f.svc.Search(ctx, "pricing strategy", "", 5)
	require.NoError(t, err)
	assert.Equal(t, ModeNone, res.Mode)

	res, err = f.svc.Search(ctx, "pricing strategy", "never-seen", 5)
	require.NoError(t, err)
	assert.Equal(t, ModeNone, res.Mode)
}

func TestSearch_SubstringRespectsLimitAndOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var chunks []transcript.Chunk
	for i := 0; i < 6; i++ {
		chunks = append(chunks, transcript.Chunk{
			ID:        fmt.Sprintf("vid_chunk_%d", i),
			Text:      fmt.Sprintf("demand example %d", i),
			StartTime: float64(i * 10),
			EndTime:   float64(i*10 + 10),
		})
	}
	require.NoError(t, f.transcripts.Save(ctx, &transcript.Transcript{SourceID: "vid", Chunks: chunks}))

	res, err := f.svc.Search(ctx, "DEMAND", "vid", 3)
	require.NoError(t, err)
	require.Len(t, res.Matches, 3)
	for i, m := range res.Matches {
		assert.Equal(t, fmt.Sprintf("demand example %d", i), m.Text)
	}
}

func TestSearch_Vector(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	tr, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.NoError(t, err)

	res, err := f.svc.Search(ctx, tr.Chunks[1].Text, "vid123", 2)
	require.NoError(t, err)
	assert.Equal(t, ModeVector, res.Mode)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, tr.Chunks[1].Text, res.Matches[0].Text)
}

func TestSearch_CancelledContext(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Search(ctx, "anything", "vid123", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplaceTranscript(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.NoError(t, err)
	before := f.vectors.countSource("vid123")
	require.Greater(t, before, 1)

	tr, err := f.svc.ReplaceTranscript(ctx, "vid123", "# Corrected\n\nWe **really** talk about pricing strategy here.")
	require.NoError(t, err)
	assert.Equal(t, transcript.OriginManual, tr.Origin)
	assert.Equal(t, transcript.StatusIndexed, tr.Status)
	require.Len(t, tr.Chunks, 1)
	assert.Contains(t, tr.Chunks[0].Text, "We really talk about pricing strategy here.")
	assert.Equal(t, 1, f.vectors.countSource("vid123"), "previous vectors are removed")

	_, err = f.svc.ReplaceTranscript(ctx, "vid123", "   ")
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t, true)
	f.captions.err = youtube.ErrNoCaptions
	ctx := context.Background()

	tr, err := f.svc.EnsureTranscript(ctx, "vid123")
	require.NoError(t, err)
	require.Equal(t, transcript.StatusUnavailable, tr.Status)

	f.captions.err = nil
	tr, err = f.svc.Regenerate(ctx, "vid123")
	require.NoError(t, err)
	assert.Equal(t, transcript.StatusIndexed, tr.Status)
	assert.Equal(t, 2, f.captions.count())

	require.NoError(t, f.svc.DeleteVectors(ctx, "vid123"))
	assert.Zero(t, f.vectors.countSource("vid123"))
}

func TestReindex(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	chunks := transcript.NewChunker().ChunkItems(twelveMinuteCaptions(), "vid123")
	require.NoError(t, f.transcripts.Save(ctx, &transcript.Transcript{
		SourceID: "vid123",
		Chunks:   chunks,
		Status:   transcript.StatusExtracted,
		Origin:   transcript.OriginCaptions,
	}))
	before, err := f.transcripts.Get(ctx, "vid123")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	tr, stored, err := f.svc.Reindex(ctx, "vid123")
	require.NoError(t, err)
	assert.Equal(t, len(chunks), stored)
	assert.Equal(t, transcript.StatusIndexed, tr.Status)
	assert.Equal(t, len(chunks), f.vectors.countSource("vid123"))

	after, err := f.transcripts.Get(ctx, "vid123")
	require.NoError(t, err)
	assert.Equal(t, transcript.StatusIndexed, after.Status)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestReindex_MarkerAndMissing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.captions.err = youtube.ErrNoCaptions
	_, err := f.svc.EnsureTranscript(ctx, "vid404")
	require.NoError(t, err)

	tr, stored, err := f.svc.Reindex(ctx, "vid404")
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Equal(t, transcript.StatusUnavailable, tr.Status)

	_, _, err = f.svc.Reindex(ctx, "never-seen")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
