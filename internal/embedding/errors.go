package embedding

import "errors"

var (
	// ErrUnavailable means the embedding API is not configured.
	ErrUnavailable = errors.New("embedding service unavailable")

	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMalformedVector   = errors.New("malformed embedding vector")
)
