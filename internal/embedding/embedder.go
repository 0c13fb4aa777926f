package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension requested from the API.
	DefaultDimension = 1536

	// DefaultTimeout bounds a single embedding request, retries included.
	DefaultTimeout = 15 * time.Second
)

// Config configures a Provider. Zero values select the defaults.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration

	// RequestsPerSecond throttles calls to the API. Zero means unlimited.
	RequestsPerSecond float64
}

// Provider turns text into unit-length vectors of a fixed dimension.
// It prefers the OpenAI embeddings API and falls back to FallbackEmbedding
// whenever the API is unconfigured, failing, or returns a malformed vector.
//
// The OpenAI client is built on first use and reused. A missing API key is
// recorded once; later calls go straight to the fallback.
type Provider struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	once    sync.Once
	client  *Client
	initErr error
}

// NewProvider creates a Provider. The API client is not constructed until the
// first call to Embed.
func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Provider{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 10),
	}
}

// Dimension returns the length of every vector this provider produces.
func (p *Provider) Dimension() int {
	return p.cfg.Dimension
}

// Available reports whether the remote embedding API is configured.
func (p *Provider) Available() bool {
	_, err := p.getClient()
	return err == nil
}

// Embed returns the embedding of text. Upstream failures never surface: the
// deterministic fallback is returned instead. The only error is the caller's
// own context cancellation.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec, err := p.embedRemote(ctx, text)
	if err == nil {
		return vec, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !errors.Is(err, ErrUnavailable) {
		p.logger.Warn("Embedding API failed, using fallback embedding", "error", err)
	}

	return FallbackEmbedding(text, p.cfg.Dimension), nil
}

// EmbedBatch embeds each text independently, with the same fallback rules as Embed.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *Provider) getClient() (*Client, error) {
	p.once.Do(func() {
		p.client, p.initErr = NewClient(p.cfg.APIKey, p.cfg.BaseURL)
		if p.initErr != nil {
			p.logger.Warn("Embedding API not configured, all embeddings use the fallback generator",
				"error", p.initErr)
		}
	})
	return p.client, p.initErr
}

// embedRemote calls the embeddings API with a bounded timeout.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (p *Provider) embedRemote(ctx context.Context, text string) ([]float32, error) {
	client, err := p.getClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var embedding []float64
	operation := func() error {
		resp, err := client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfString: openai.String(text),
			},
			Model:      openai.EmbeddingModel(p.cfg.Model),
			Dimensions: openai.Int(int64(p.cfg.Dimension)),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: empty data", ErrMalformedVector))
		}
		embedding = resp.Data[0].Embedding
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = p.cfg.Timeout

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	if len(embedding) != p.cfg.Dimension {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(embedding), p.cfg.Dimension)
	}
	if !finite(embedding) {
		return nil, ErrMalformedVector
	}

	return normalize(toFloat32(embedding)), nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
