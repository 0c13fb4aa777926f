// Package app wires configuration into the service components shared by the
// server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/bull/lecture-rag/internal/chat"
	"github.com/bull/lecture-rag/internal/config"
	"github.com/bull/lecture-rag/internal/embedding"
	"github.com/bull/lecture-rag/internal/llm"
	"github.com/bull/lecture-rag/internal/retrieval"
	"github.com/bull/lecture-rag/internal/storage"
	"github.com/bull/lecture-rag/internal/store"
	"github.com/bull/lecture-rag/internal/vectorindex"
	"github.com/bull/lecture-rag/internal/youtube"
)

// App holds the process-wide components. External clients are built lazily
// on first use; nothing here dials out during New.
type App struct {
	Config      *config.Config
	DB          *store.DB
	Transcripts *store.TranscriptStore
	Chats       *store.ChatStore
	Embedder    *embedding.Provider
	Index       *vectorindex.Client
	Captions    *youtube.CaptionSource
	Titles      *youtube.MetadataClient
	LLM         *llm.Claude
	Retrieval   *retrieval.Service
	Chat        *chat.Orchestrator

	logger *slog.Logger

	mu     sync.Mutex
	qdrant *storage.QdrantStorage
}

// New builds an App from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:      cfg,
		DB:          db,
		Transcripts: store.NewTranscriptStore(db),
		Chats:       store.NewChatStore(db),
		logger:      logger,
	}

	a.Embedder = embedding.NewProvider(embedding.Config{
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		Dimension:         cfg.Embedding.Dimension,
		Timeout:           cfg.EmbeddingTimeout(),
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, logger)

	a.Index = vectorindex.NewClient(a.Embedder, a.openQdrant, vectorindex.Options{
		BatchSize: cfg.Qdrant.BatchSize,
		Timeout:   cfg.VectorTimeout(),
	}, logger)

	a.Captions = youtube.NewCaptionSource(youtube.CaptionConfig{
		Language: cfg.YouTube.Language,
		Timeout:  cfg.CaptionsTimeout(),
	}, logger)
	a.Titles = youtube.NewMetadataClient(cfg.YouTube.APIKey, "")

	temperature := cfg.Anthropic.Temperature
	a.LLM = llm.NewClaude(llm.Config{
		APIKey:      cfg.Anthropic.APIKey,
		BaseURL:     cfg.Anthropic.BaseURL,
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		Temperature: &temperature,
		Timeout:     cfg.LLMTimeout(),
		MaxRetries:  cfg.Anthropic.MaxRetries,
	}, logger)

	a.Retrieval = retrieval.NewService(a.Transcripts, a.Captions, a.Index, logger)
	a.Chat = chat.NewOrchestrator(a.Retrieval, a.Chats, a.Titles, a.LLM, logger)
	return a, nil
}

// openQdrant is the vector index factory. It connects, checks health and
// makes sure the collection exists.
func (a *App) openQdrant(ctx context.Context) (vectorindex.Store, error) {
	cfg := a.Config.Qdrant
	qs, err := storage.NewQdrantStorage(ctx, storage.Config{
		Host:       cfg.Host,
		Port:       cfg.Port,
		APIKey:     cfg.APIKey,
		UseTLS:     cfg.UseTLS,
		Collection: cfg.Collection,
		Dimension:  a.Config.Embedding.Dimension,
	})
	if err != nil {
		return nil, err
	}
	if err := qs.EnsureCollection(ctx); err != nil {
		qs.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	a.mu.Lock()
	a.qdrant = qs
	a.mu.Unlock()

	a.logger.Info("Connected to Qdrant", "host", cfg.Host, "port", cfg.Port, "collection", cfg.Collection)
	return qs, nil
}

// Qdrant returns the Qdrant backend if it has been built.
func (a *App) Qdrant() *storage.QdrantStorage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.qdrant
}

// Close releases the vector index connection and the database.
func (a *App) Close() error {
	var errs []error
	if qs := a.Qdrant(); qs != nil {
		errs = append(errs, qs.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the logging config.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
