package resilience

import (
	"errors"
	"testing"
	"time"

	"stock-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
)

var errBackend = errors.New("backend down")

func newTestBreaker(isFailure func(error) bool) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RetryTimeout:     time.Minute,
		IsFailure:        isFailure,
	}, logger.NewNop())
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb, now := newTestBreaker(nil)
	fail := func() error { return errBackend }

	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	*now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	errValidation := errors.New("bad input")
	cb, _ := newTestBreaker(func(err error) bool { return errors.Is(err, errBackend) })

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errValidation }), errValidation)
	}
	assert.Equal(t, StateClosed, cb.GetState())
	assert.EqualValues(t, 5, cb.GetMetrics()["total_requests"])
}
