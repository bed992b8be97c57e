package store

import (
	"context"
	"sync"
	"time"

	"stock-chat/backend/internal/models"
	apperrors "stock-chat/backend/pkg/errors"
)

// MemoryStore keeps the log in process. It backs DB_DRIVER=memory and tests.
type MemoryStore struct {
	validator Validator
	seq       *sequencer

	mu     sync.RWMutex
	topics map[string][]models.Message
}

// NewMemoryStore creates an empty in-memory log
func NewMemoryStore(v Validator) *MemoryStore {
	return &MemoryStore{
		validator: v,
		seq:       newSequencer(),
		topics:    make(map[string][]models.Message),
	}
}

func (s *MemoryStore) Append(ctx context.Context, topic, author, content string) (models.Message, error) {
	in, err := s.validator.Message(topic, author, content)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := s.seq.append(ctx, in, s.tail, s.insert)
	if err != nil {
		return models.Message{}, apperrors.NewUnavailableError("message store unavailable", err)
	}
	return msg, nil
}

func (s *MemoryStore) tail(_ context.Context, topic string) (int64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.topics[topic]
	if len(msgs) == 0 {
		return 0, time.Time{}, nil
	}
	last := msgs[len(msgs)-1]
	return last.Seq, last.CreatedAt, nil
}

func (s *MemoryStore) insert(ctx context.Context, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.topics[msg.Topic] = append(s.topics[msg.Topic], msg)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) History(_ context.Context, topic string, limit int) ([]models.Message, error) {
	topic, err := s.validator.Topic(topic)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.topics[topic]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }
