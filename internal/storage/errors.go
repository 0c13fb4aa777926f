package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrNotConfigured     = errors.New("qdrant host not configured")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
