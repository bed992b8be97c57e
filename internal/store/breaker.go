package store

import (
	"context"
	"errors"

	"stock-chat/backend/internal/models"
	apperrors "stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/resilience"
)

// BreakerStore fails fast with Unavailable while the backend keeps failing
type BreakerStore struct {
	Store
	cb *resilience.CircuitBreaker
}

// WithBreaker wraps s so backend outages trip cb. Only Unavailable errors count as failures.
func WithBreaker(s Store, cb *resilience.CircuitBreaker) *BreakerStore {
	return &BreakerStore{Store: s, cb: cb}
}

// NewBreakerConfig returns a breaker config that ignores caller errors such as validation
func NewBreakerConfig(name string) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.IsFailure = apperrors.IsUnavailable
	return cfg
}

func (s *BreakerStore) Append(ctx context.Context, topic, author, content string) (models.Message, error) {
	var msg models.Message
	err := s.cb.Execute(func() error {
		var err error
		msg, err = s.Store.Append(ctx, topic, author, content)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return models.Message{}, apperrors.NewUnavailableError("message store unavailable", err)
	}
	return msg, err
}

func (s *BreakerStore) History(ctx context.Context, topic string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.cb.Execute(func() error {
		var err error
		msgs, err = s.Store.History(ctx, topic, limit)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, apperrors.NewUnavailableError("message store unavailable", err)
	}
	return msgs, err
}
