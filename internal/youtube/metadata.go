package youtube

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// MetadataClient looks up video titles through the YouTube Data API.
// The service is built on first use; a missing key is remembered.
type MetadataClient struct {
	apiKey   string
	endpoint string

	once    sync.Once
	svc     *yt.Service
	initErr error

	mu     sync.Mutex
	titles map[string]string
}

// NewMetadataClient creates a MetadataClient. endpoint may be empty.
func NewMetadataClient(apiKey, endpoint string) *MetadataClient {
	return &MetadataClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		titles:   make(map[string]string),
	}
}

func (c *MetadataClient) service(ctx context.Context) (*yt.Service, error) {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.initErr = ErrUnavailable
			return
		}
		opts := []option.ClientOption{option.WithAPIKey(c.apiKey)}
		if c.endpoint != "" {
			opts = append(opts, option.WithEndpoint(c.endpoint))
		}
		c.svc, c.initErr = yt.NewService(ctx, opts...)
	})
	return c.svc, c.initErr
}

// Title returns the title of videoID. Titles are cached for the life of the client.
func (c *MetadataClient) Title(ctx context.Context, videoID string) (string, error) {
	c.mu.Lock()
	title, ok := c.titles[videoID]
	c.mu.Unlock()
	if ok {
		return title, nil
	}

	svc, err := c.service(ctx)
	if err != nil {
		return "", err
	}

	resp, err := svc.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("videos.list %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return "", ErrVideoNotFound
	}

	title = resp.Items[0].Snippet.Title
	c.mu.Lock()
	c.titles[videoID] = title
	c.mu.Unlock()
	return title, nil
}
