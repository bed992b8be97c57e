// Package chat implements topic-scoped fan-out: sessions, subscriptions and
// the persist-then-broadcast path.
package chat

import (
	"sort"
	"sync"
)

// Registry maps topics to the sessions currently subscribed to them.
// It is ephemeral and rebuilt from live sessions after a restart.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]map[string]struct{})}
}

// AddSubscriber adds sessionID to topic. Adding twice is a no-op.
func (r *Registry) AddSubscriber(topic, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[string]struct{})
		r.topics[topic] = subs
	}
	subs[sessionID] = struct{}{}
}

// RemoveSubscriber removes sessionID from topic and drops the topic once empty
func (r *Registry) RemoveSubscriber(topic, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[topic]
	if !ok {
		return
	}
	delete(subs, sessionID)
	if len(subs) == 0 {
		delete(r.topics, topic)
	}
}

// Subscribers returns a snapshot of the sessions subscribed to topic
func (r *Registry) Subscribers(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.topics[topic]
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// Topics returns the topics that currently have at least one subscriber
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.topics))
	for t := range r.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
