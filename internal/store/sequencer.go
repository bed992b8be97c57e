package store

import (
	"context"
	"sync"
	"time"

	"stock-chat/backend/internal/models"

	"github.com/google/uuid"
)

// tailFunc loads the last persisted seq and timestamp of a topic
type tailFunc func(ctx context.Context, topic string) (int64, time.Time, error)

// insertFunc persists one fully formed message
type insertFunc func(ctx context.Context, msg models.Message) error

// defaultIdleTopics is how many idle topics keep their tail in memory
const defaultIdleTopics = 1024

type topicState struct {
	mu     sync.Mutex
	refs   int
	loaded bool
	seq    int64
	last   time.Time
}

// sequencer assigns per-topic seq numbers and non-decreasing timestamps.
// Holding a topic's state mutex serializes appends to that topic. Once more
// than maxIdle topics are tracked, a topic nobody is appending to is dropped
// and its tail reloaded from the backend on the next append.
type sequencer struct {
	mu      sync.Mutex
	topics  map[string]*topicState
	maxIdle int
	now     func() time.Time
}

func newSequencer() *sequencer {
	return &sequencer{
		topics:  make(map[string]*topicState),
		maxIdle: defaultIdleTopics,
		now:     time.Now,
	}
}

// acquire locks the state of topic and returns it with its release func
func (s *sequencer) acquire(topic string) (*topicState, func()) {
	s.mu.Lock()
	st, ok := s.topics[topic]
	if !ok {
		st = &topicState{}
		s.topics[topic] = st
	}
	st.refs++
	s.mu.Unlock()

	st.mu.Lock()

	return st, func() {
		loaded := st.loaded
		st.mu.Unlock()

		s.mu.Lock()
		st.refs--
		if st.refs == 0 && (!loaded || len(s.topics) > s.maxIdle) {
			delete(s.topics, topic)
		}
		s.mu.Unlock()
	}
}

func (s *sequencer) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topics)
}

// append builds the next message for topic and persists it with insert.
// State only advances after a successful insert.
func (s *sequencer) append(ctx context.Context, in messageInput, tail tailFunc, insert insertFunc) (models.Message, error) {
	st, release := s.acquire(in.Topic)
	defer release()

	if !st.loaded {
		seq, last, err := tail(ctx, in.Topic)
		if err != nil {
			return models.Message{}, err
		}
		st.seq, st.last, st.loaded = seq, last, true
	}

	// millisecond precision survives every backend round trip
	at := s.now().UTC().Truncate(time.Millisecond)
	if at.Before(st.last) {
		at = st.last
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		Topic:     in.Topic,
		Seq:       st.seq + 1,
		Author:    in.Author,
		Content:   in.Content,
		CreatedAt: at,
	}
	if err := insert(ctx, msg); err != nil {
		// the backend may have partially applied; reload from it next time
		st.loaded = false
		return models.Message{}, err
	}

	st.seq, st.last = msg.Seq, msg.CreatedAt
	return msg, nil
}
