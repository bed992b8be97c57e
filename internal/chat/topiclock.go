package chat

import "sync"

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// topicLocks hands out one mutex per topic and forgets it when nobody holds or waits on it
type topicLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newTopicLocks() *topicLocks {
	return &topicLocks{locks: make(map[string]*refMutex)}
}

// Lock blocks until topic is held and returns the matching unlock func
func (l *topicLocks) Lock(topic string) func() {
	l.mu.Lock()
	m, ok := l.locks[topic]
	if !ok {
		m = &refMutex{}
		l.locks[topic] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()

	return func() {
		m.mu.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, topic)
		}
		l.mu.Unlock()
	}
}

func (l *topicLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
