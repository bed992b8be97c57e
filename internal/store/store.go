// Package store holds the durable per-topic message log.
package store

import (
	"context"

	"stock-chat/backend/internal/models"
)

// Store is the append-only message log. Appends to the same topic are
// serialized by every implementation; distinct topics proceed in parallel.
type Store interface {
	// Append validates, sequences and persists a message. The returned
	// message is durable when Append returns.
	Append(ctx context.Context, topic, author, content string) (models.Message, error)
	// History returns messages oldest first. When limit > 0 only the most
	// recent limit messages are returned.
	History(ctx context.Context, topic string, limit int) ([]models.Message, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// reverse flips a newest-first page into history order
func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
