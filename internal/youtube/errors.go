package youtube

import "errors"

var (
	// ErrNoCaptions means the video exists but has no usable caption track,
	// including when captions are disabled by the owner.
	ErrNoCaptions = errors.New("no captions available")

	ErrVideoNotFound = errors.New("video not found")

	// ErrUnavailable means the Data API key is not configured.
	ErrUnavailable = errors.New("youtube data api unavailable")
)
