package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
)

// ChatStore appends and lists chat turns.
type ChatStore struct {
	db *DB
}

// NewChatStore creates a ChatStore on db.
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

// SaveTurn appends a turn, assigning an id and timestamp when missing.
func (s *ChatStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if err := s.db.store.Insert(turn.ID, turn); err != nil {
		return fmt.Errorf("failed to save %s turn for chat %s: %w", turn.Role, turn.ChatID, err)
	}
	return nil
}

// ListTurns returns the turns of chatID in creation order.
func (s *ChatStore) ListTurns(ctx context.Context, chatID string) ([]Turn, error) {
	var turns []Turn
	if err := s.db.store.Find(&turns, badgerhold.Where("ChatID").Eq(chatID)); err != nil {
		return nil, fmt.Errorf("failed to list turns for chat %s: %w", chatID, err)
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})
	return turns, nil
}
