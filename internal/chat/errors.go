package chat

import "errors"

// ErrEmptyMessage is returned for a turn without text.
var ErrEmptyMessage = errors.New("message is empty")
