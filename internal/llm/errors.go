package llm

import "errors"

var (
	// ErrUnavailable means no API key is configured.
	ErrUnavailable = errors.New("llm unavailable")

	// ErrUpstream covers non-2xx responses, network failures and error events
	// received on the stream.
	ErrUpstream = errors.New("llm request failed")
)
