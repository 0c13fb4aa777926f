// Package youtube fetches caption tracks and video metadata from YouTube.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ytdl "github.com/kkdai/youtube/v2"

	"github.com/bull/lecture-rag/internal/transcript"
)

const (
	DefaultLanguage = "en"
	DefaultTimeout  = 15 * time.Second
)

// CaptionConfig configures a CaptionSource. Zero values select the defaults.
type CaptionConfig struct {
	Language string
	Timeout  time.Duration
}

// videoClient is the subset of the kkdai client used for caption extraction.
type videoClient interface {
	GetVideoContext(ctx context.Context, id string) (*ytdl.Video, error)
	GetTranscriptCtx(ctx context.Context, video *ytdl.Video, lang string) (ytdl.VideoTranscript, error)
}

// CaptionSource resolves a video's caption tracks and downloads the
// preferred one.
type CaptionSource struct {
	language string
	client   videoClient
	logger   *slog.Logger
}

// NewCaptionSource creates a CaptionSource.
func NewCaptionSource(cfg CaptionConfig, logger *slog.Logger) *CaptionSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := &ytdl.Client{HTTPClient: &http.Client{Timeout: cfg.Timeout}}
	return newCaptionSource(cfg, client, logger)
}

func newCaptionSource(cfg CaptionConfig, client videoClient, logger *slog.Logger) *CaptionSource {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptionSource{
		language: cfg.Language,
		client:   client,
		logger:   logger,
	}
}

// FetchCaptions returns the caption items of videoID in playback order, with
// times converted from milliseconds to seconds. It returns ErrVideoNotFound or
// ErrNoCaptions when there is nothing to extract.
func (s *CaptionSource) FetchCaptions(ctx context.Context, videoID string) ([]transcript.CaptionItem, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, mapVideoError("resolve video", err)
	}

	track := s.pickTrack(video.CaptionTracks)
	if track == nil {
		return nil, ErrNoCaptions
	}

	segments, err := s.client.GetTranscriptCtx(ctx, video, track.LanguageCode)
	if err != nil {
		return nil, mapVideoError("download captions", err)
	}

	items := make([]transcript.CaptionItem, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		items = append(items, transcript.CaptionItem{
			Text:     seg.Text,
			Start:    float64(seg.StartMs) / 1000,
			Duration: float64(seg.Duration) / 1000,
		})
	}
	if len(items) == 0 {
		return nil, ErrNoCaptions
	}

	s.logger.Debug("Fetched captions", "video", videoID, "language", track.LanguageCode, "items", len(items))
	return items, nil
}

// pickTrack prefers a manual track in the configured language, then an
// auto-generated one, then whatever comes first.
func (s *CaptionSource) pickTrack(tracks []ytdl.CaptionTrack) *ytdl.CaptionTrack {
	var auto, first *ytdl.CaptionTrack
	for i := range tracks {
		t := &tracks[i]
		if t.LanguageCode == "" {
			continue
		}
		if first == nil {
			first = t
		}
		if !strings.HasPrefix(t.LanguageCode, s.language) {
			continue
		}
		if t.Kind != "asr" {
			return t
		}
		if auto == nil {
			auto = t
		}
	}
	if auto != nil {
		return auto
	}
	return first
}

// mapVideoError folds the library's unavailable and disabled errors onto
// ErrVideoNotFound and ErrNoCaptions.
func mapVideoError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ytdl.ErrTranscriptDisabled):
		return ErrNoCaptions
	case errors.Is(err, ytdl.ErrVideoPrivate),
		errors.Is(err, ytdl.ErrLoginRequired),
		errors.Is(err, ytdl.ErrInvalidCharactersInVideoID),
		errors.Is(err, ytdl.ErrVideoIDMinLength):
		return ErrVideoNotFound
	}

	var status ytdl.ErrPlayabiltyStatus
	if errors.As(err, &status) {
		return ErrVideoNotFound
	}
	var statusPtr *ytdl.ErrPlayabiltyStatus
	if errors.As(err, &statusPtr) {
		return ErrVideoNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
