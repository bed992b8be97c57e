package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"stock-chat/backend/internal/models"
	"stock-chat/backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the history cache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient builds a go-redis client from cfg
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// CachedStore keeps the most recent messages of each topic in a Redis list
// in front of a durable Store. Redis failures degrade to the inner store.
//
// A topic whose cached list may have missed a write is marked dirty. Dirty
// topics are never read from Redis; the next History call rebuilds the list
// from the inner store and clears the mark only once that rebuild succeeds.
type CachedStore struct {
	inner Store
	rdb   redis.UniversalClient
	size  int
	ttl   time.Duration
	log   *logger.Logger

	mu    sync.Mutex
	locks map[string]*cacheLock
	dirty map[string]struct{}
}

type cacheLock struct {
	mu   sync.Mutex
	refs int
}

// NewCachedStore caches up to size recent messages per topic for ttl
func NewCachedStore(inner Store, rdb redis.UniversalClient, size int, ttl time.Duration, log *logger.Logger) *CachedStore {
	if size <= 0 {
		size = 200
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CachedStore{
		inner: inner,
		rdb:   rdb,
		size:  size,
		ttl:   ttl,
		log:   log.WithComponent("history_cache"),
		locks: make(map[string]*cacheLock),
		dirty: make(map[string]struct{}),
	}
}

func historyKey(topic string) string {
	return fmt.Sprintf("chat:history:%s", topic)
}

// lockTopic serializes cache writes for topic and returns the unlock func.
// The mutex is forgotten once nobody holds or waits on it.
func (s *CachedStore) lockTopic(topic string) func() {
	s.mu.Lock()
	l, ok := s.locks[topic]
	if !ok {
		l = &cacheLock{}
		s.locks[topic] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, topic)
		}
		s.mu.Unlock()
	}
}

func (s *CachedStore) markDirty(topic string) {
	s.mu.Lock()
	s.dirty[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *CachedStore) isDirty(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dirty[topic]
	return ok
}

func (s *CachedStore) clearDirty(topic string) {
	s.mu.Lock()
	delete(s.dirty, topic)
	s.mu.Unlock()
}

// Append writes through to the inner store, then extends the cached list if it is warm
func (s *CachedStore) Append(ctx context.Context, topic, author, content string) (models.Message, error) {
	unlock := s.lockTopic(NormalizeTopic(topic))
	defer unlock()

	msg, err := s.inner.Append(ctx, topic, author, content)
	if err != nil {
		return models.Message{}, err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.markDirty(msg.Topic)
		s.invalidate(ctx, msg.Topic)
		return msg, nil
	}

	key := historyKey(msg.Topic)
	pipe := s.rdb.TxPipeline()
	pipe.RPushX(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.size), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("Failed to extend cached history", "topic", msg.Topic, "error", err.Error())
		// the list may now lack msg even if the delete below fails too
		s.markDirty(msg.Topic)
		s.invalidate(ctx, msg.Topic)
	}
	return msg, nil
}

// History serves limits up to the cache size from Redis, filling it on a miss
func (s *CachedStore) History(ctx context.Context, topic string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > s.size {
		return s.inner.History(ctx, topic, limit)
	}

	normalized := NormalizeTopic(topic)
	if !s.isDirty(normalized) {
		if msgs, ok := s.cached(ctx, normalized, limit); ok {
			return msgs, nil
		}
	}

	unlock := s.lockTopic(normalized)
	defer unlock()

	recent, err := s.inner.History(ctx, topic, s.size)
	if err != nil {
		return nil, err
	}
	if err := s.fill(ctx, normalized, recent); err != nil {
		s.log.Debug("History cache fill failed", "topic", normalized, "error", err.Error())
	} else {
		s.clearDirty(normalized)
	}

	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	return recent, nil
}

func (s *CachedStore) cached(ctx context.Context, topic string, limit int) ([]models.Message, bool) {
	raw, err := s.rdb.LRange(ctx, historyKey(topic), int64(-limit), -1).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Debug("History cache read failed", "topic", topic, "error", err.Error())
		}
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}

	msgs := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			s.markDirty(topic)
			return nil, false
		}
		msgs = append(msgs, m)
	}
	return msgs, true
}

// fill replaces the cached list of topic with msgs in one transaction.
// An empty msgs only clears the list.
func (s *CachedStore) fill(ctx context.Context, topic string, msgs []models.Message) error {
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message %d: %w", m.Seq, err)
		}
		values = append(values, data)
	}

	key := historyKey(topic)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.RPush(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *CachedStore) invalidate(ctx context.Context, topic string) {
	if err := s.rdb.Del(ctx, historyKey(topic)).Err(); err != nil {
		s.log.Warn("Failed to invalidate cached history", "topic", topic, "error", err.Error())
	}
}

func (s *CachedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the inner store. The Redis client is owned by the caller.
func (s *CachedStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}
