package vectorindex

import "errors"

// ErrUnavailable signals that the vector index cannot serve the call, either
// because it is not configured or because the backend failed. Callers fall
// back to their own strategy when they see it.
var ErrUnavailable = errors.New("vector index unavailable")
