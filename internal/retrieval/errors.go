package retrieval

import "errors"

// ErrEmptyTranscript is returned when a manually supplied transcript has no text.
var ErrEmptyTranscript = errors.New("transcript has no text")
