package chat

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"stock-chat/backend/internal/models"
	"stock-chat/backend/internal/store"
	apperrors "stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config bounds the session layer
type Config struct {
	// MaxSessions caps live sessions; 0 means unlimited
	MaxSessions int
	// IdleTimeout disconnects sessions without transport activity; 0 disables reaping
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	// ReplayLimit is how many recent messages a Join replays; 0 sends an empty replay
	ReplayLimit int
}

// DefaultConfig returns the limits used when nothing is configured
func DefaultConfig() Config {
	return Config{
		MaxSessions:  10000,
		IdleTimeout:  5 * time.Minute,
		ReapInterval: 30 * time.Second,
		ReplayLimit:  50,
	}
}

// Session is one transport connection bound to an identity
type Session struct {
	ID       string
	Identity string

	mu       sync.Mutex
	topics   map[string]struct{}
	closed   bool
	lastSeen atomic.Int64
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the time of the last recorded transport activity
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// SessionManager owns session lifecycles and their topic subscriptions.
// Lock order is session mutex, then topic lock, then registry.
type SessionManager struct {
	cfg       Config
	store     store.Store
	validator store.Validator
	registry  *Registry
	locks     *topicLocks
	out       Outbound
	log       *logger.Logger
	metrics   *metrics
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager wires a manager to its store, registry and transport
func NewSessionManager(cfg Config, st store.Store, v store.Validator, registry *Registry, out Outbound, log *logger.Logger) *SessionManager {
	if out == nil {
		out = DiscardOutbound{}
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &SessionManager{
		cfg:       cfg,
		store:     st,
		validator: v,
		registry:  registry,
		locks:     newTopicLocks(),
		out:       out,
		log:       log.WithComponent("sessions"),
		metrics:   newMetrics(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Connect registers a new session for an already authenticated identity
func (m *SessionManager) Connect(identity string) (string, error) {
	if identity == "" {
		return "", apperrors.NewInvalidArgumentError("identity is required")
	}

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return "", apperrors.NewResourceExhaustedError("session limit reached")
	}
	s := &Session{
		ID:       uuid.New().String(),
		Identity: identity,
		topics:   make(map[string]struct{}),
	}
	s.touch(m.now())
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.sessions.Add(context.Background(), 1)
	m.log.Debug("Session connected", "session_id", s.ID, "identity", identity)
	return s.ID, nil
}

// Disconnect removes the session from every topic and releases its transport.
// Unknown or already disconnected ids are ignored.
func (m *SessionManager) Disconnect(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.closed = true
	for topic := range s.topics {
		m.registry.RemoveSubscriber(topic, sessionID)
	}
	s.topics = nil
	s.mu.Unlock()

	m.out.Release(sessionID)
	m.metrics.sessions.Add(context.Background(), -1)
	m.log.Debug("Session disconnected", "session_id", sessionID)
}

func (m *SessionManager) session(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("unknown session")
	}
	return s, nil
}

// Join subscribes the session to topic and replays recent history before any
// live message of that topic can reach it. Joining a topic twice only acks.
func (m *SessionManager) Join(ctx context.Context, sessionID, topic string) error {
	return m.JoinWithRef(ctx, sessionID, topic, "")
}

// JoinWithRef is Join with a request ref echoed on the joined ack
func (m *SessionManager) JoinWithRef(ctx context.Context, sessionID, topic, ref string) error {
	ctx, span := tracer.Start(ctx, "chat.Join", trace.WithAttributes(attribute.String("chat.topic", topic)))
	defer span.End()

	topic, err := m.validator.Topic(topic)
	if err != nil {
		return err
	}
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.NewNotFoundError("unknown session")
	}
	if _, joined := s.topics[topic]; joined {
		m.ack(sessionID, topic, ref)
		return nil
	}

	// Holding the topic lock keeps publishers out between the history read
	// and the subscription, so replay and live stream neither gap nor overlap.
	unlock := m.locks.Lock(topic)
	defer unlock()

	var history []models.Message
	if m.cfg.ReplayLimit > 0 {
		history, err = m.store.History(ctx, topic, m.cfg.ReplayLimit)
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	m.registry.AddSubscriber(topic, sessionID)
	s.topics[topic] = struct{}{}

	if err := m.out.Replay(sessionID, topic, history); err != nil {
		m.log.Debug("History replay not delivered", "session_id", sessionID, "topic", topic, "error", err.Error())
	}
	m.ack(sessionID, topic, ref)
	m.metrics.add(ctx, m.metrics.joins, 1, topicAttr(topic))
	return nil
}

func (m *SessionManager) ack(sessionID, topic, ref string) {
	if err := m.out.Joined(sessionID, topic, ref); err != nil {
		m.log.Debug("Join ack not delivered", "session_id", sessionID, "topic", topic, "error", err.Error())
	}
}

// Leave unsubscribes the session from topic. Leaving a topic not joined is a no-op.
func (m *SessionManager) Leave(sessionID, topic string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	topic = store.NormalizeTopic(topic)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, joined := s.topics[topic]; !joined {
		return nil
	}
	delete(s.topics, topic)
	m.registry.RemoveSubscriber(topic, sessionID)
	return nil
}

// Touch records transport activity for the idle reaper
func (m *SessionManager) Touch(sessionID string) {
	if s, err := m.session(sessionID); err == nil {
		s.touch(m.now())
	}
}

// Identity returns the identity bound to sessionID
func (m *SessionManager) Identity(sessionID string) (string, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return "", err
	}
	return s.Identity, nil
}

// Subscriptions returns the sorted topics the session has joined
func (m *SessionManager) Subscriptions(sessionID string) ([]string, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of live sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap disconnects every session idle for longer than the configured timeout
func (m *SessionManager) Reap(now time.Time) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.cfg.IdleTimeout)

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		m.log.Info("Reaping idle session", "session_id", id)
		m.Disconnect(id)
	}
	if len(idle) > 0 {
		m.metrics.add(context.Background(), m.metrics.reaped, int64(len(idle)))
	}
	return len(idle)
}

// Run reaps idle sessions every ReapInterval until ctx is cancelled
func (m *SessionManager) Run(ctx context.Context) {
	if m.cfg.IdleTimeout <= 0 || m.cfg.ReapInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(m.now())
		}
	}
}

// Close disconnects every session
func (m *SessionManager) Close() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Disconnect(id)
	}
}
