package store

import (
	"context"
	"errors"
	"testing"

	"stock-chat/backend/internal/models"
	apperrors "stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/logger"
	"stock-chat/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
)

type failingStore struct {
	*MemoryStore
	calls int
}

func (f *failingStore) Append(ctx context.Context, topic, author, content string) (models.Message, error) {
	f.calls++
	return models.Message{}, apperrors.NewUnavailableError("message store unavailable", errors.New("db down"))
}

func TestBreakerStoreFailsFast(t *testing.T) {
	inner := &failingStore{MemoryStore: NewMemoryStore(NewValidator(0))}
	cfg := NewBreakerConfig("store")
	cfg.FailureThreshold = 2
	s := WithBreaker(inner, resilience.NewCircuitBreaker(cfg, logger.NewNop()))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Append(ctx, "AAPL", "alice", "hi")
		assert.True(t, apperrors.IsUnavailable(err))
	}
	assert.Equal(t, 2, inner.calls)

	_, err := s.Append(ctx, "AAPL", "alice", "hi")
	assert.True(t, apperrors.IsUnavailable(err))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerStoreIgnoresValidationErrors(t *testing.T) {
	cfg := NewBreakerConfig("store")
	cfg.FailureThreshold = 1
	cb := resilience.NewCircuitBreaker(cfg, logger.NewNop())
	s := WithBreaker(NewMemoryStore(NewValidator(0)), cb)

	_, err := s.Append(context.Background(), "AAPL", "alice", "")
	assert.True(t, apperrors.IsInvalidArgument(err))
	assert.Equal(t, resilience.StateClosed, cb.GetState())

	_, err = s.Append(context.Background(), "AAPL", "alice", "ok")
	assert.NoError(t, err)
}
