package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"stock-chat/backend/internal/models"
	"stock-chat/backend/internal/store"
	apperrors "stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	replay bool
	ack    string
	topic  string
	msgs   []models.Message
}

// recorder is an Outbound that keeps every frame per session
type recorder struct {
	mu       sync.Mutex
	frames   map[string][]frame
	released map[string]int
}

func newRecorder() *recorder {
	return &recorder{frames: make(map[string][]frame), released: make(map[string]int)}
}

func (r *recorder) Deliver(sessionID string, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released[sessionID] > 0 {
		return errors.New("session gone")
	}
	r.frames[sessionID] = append(r.frames[sessionID], frame{topic: msg.Topic, msgs: []models.Message{msg}})
	return nil
}

func (r *recorder) Replay(sessionID, topic string, msgs []models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[sessionID] = append(r.frames[sessionID], frame{replay: true, topic: topic, msgs: msgs})
	return nil
}

func (r *recorder) Joined(sessionID, topic, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[sessionID] = append(r.frames[sessionID], frame{ack: "joined:" + ref, topic: topic})
	return nil
}

func (r *recorder) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released[sessionID]++
}

// live returns the live messages a session received for topic
func (r *recorder) live(sessionID, topic string) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, f := range r.frames[sessionID] {
		if !f.replay && f.topic == topic {
			out = append(out, f.msgs...)
		}
	}
	return out
}

// stream returns replayed then live messages for topic, in arrival order
func (r *recorder) stream(sessionID, topic string) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, f := range r.frames[sessionID] {
		if f.topic == topic {
			out = append(out, f.msgs...)
		}
	}
	return out
}

// kinds lists the frames a session got for topic as history, ack or message
func (r *recorder) kinds(sessionID, topic string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.frames[sessionID] {
		if f.topic != topic {
			continue
		}
		switch {
		case f.replay:
			out = append(out, "history")
		case f.ack != "":
			out = append(out, f.ack)
		default:
			out = append(out, "message")
		}
	}
	return out
}

func (r *recorder) replays(sessionID string) []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []frame
	for _, f := range r.frames[sessionID] {
		if f.replay {
			out = append(out, f)
		}
	}
	return out
}

type harness struct {
	store      store.Store
	registry   *Registry
	out        *recorder
	sessions   *SessionManager
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, cfg Config, st store.Store) *harness {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore(store.NewValidator(0))
	}
	h := &harness{store: st, registry: NewRegistry(), out: newRecorder()}
	h.sessions = NewSessionManager(cfg, st, store.NewValidator(0), h.registry, h.out, logger.NewNop())
	h.dispatcher = NewDispatcher(h.sessions)
	return h
}

func (h *harness) connect(t *testing.T, identity string, topics ...string) string {
	t.Helper()
	id, err := h.sessions.Connect(identity)
	require.NoError(t, err)
	for _, topic := range topics {
		require.NoError(t, h.sessions.Join(context.Background(), id, topic))
	}
	return id
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// outageStore fails every Append
type outageStore struct {
	store.Store
}

func (outageStore) Append(context.Context, string, string, string) (models.Message, error) {
	return models.Message{}, apperrors.NewUnavailableError("message store unavailable", errors.New("connection refused"))
}

func TestPublishReachesOnlyTopicSubscribers(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	ctx := context.Background()
	alice := h.connect(t, "alice", "AAPL")
	bob := h.connect(t, "bob", "AAPL", "TSLA")

	msg, err := h.dispatcher.Publish(ctx, alice, "AAPL", "buy")
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.Author)

	assert.Equal(t, []string{"buy"}, contents(h.out.live(alice, "AAPL")))
	assert.Equal(t, []string{"buy"}, contents(h.out.live(bob, "AAPL")))

	_, err = h.dispatcher.Publish(ctx, bob, "TSLA", "sell")
	require.NoError(t, err)
	assert.Equal(t, []string{"sell"}, contents(h.out.live(bob, "TSLA")))
	assert.Empty(t, h.out.live(alice, "TSLA"))
}

func TestJoinReplaysHistoryBeforeLive(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	ctx := context.Background()
	alice := h.connect(t, "alice", "AAPL")
	for _, c := range []string{"one", "two"} {
		_, err := h.dispatcher.Publish(ctx, alice, "AAPL", c)
		require.NoError(t, err)
	}

	bob := h.connect(t, "bob", "aapl")
	_, err := h.dispatcher.Publish(ctx, alice, "AAPL", "three")
	require.NoError(t, err)

	replays := h.out.replays(bob)
	require.Len(t, replays, 1)
	assert.Equal(t, "AAPL", replays[0].topic)
	assert.Equal(t, []string{"one", "two"}, contents(replays[0].msgs))
	assert.Equal(t, []string{"one", "two", "three"}, contents(h.out.stream(bob, "AAPL")))

	// joining again only acks
	require.NoError(t, h.sessions.JoinWithRef(ctx, bob, "AAPL", "again"))
	assert.Len(t, h.out.replays(bob), 1)
	assert.Equal(t, []string{"history", "joined:", "message", "joined:again"}, h.out.kinds(bob, "AAPL"))
}

func TestReplayLimitKeepsMostRecent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplayLimit = 2
	h := newHarness(t, cfg, nil)
	ctx := context.Background()
	alice := h.connect(t, "alice")
	for i := 1; i <= 4; i++ {
		_, err := h.dispatcher.Publish(ctx, alice, "AAPL", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	bob := h.connect(t, "bob", "AAPL")
	replays := h.out.replays(bob)
	require.Len(t, replays, 1)
	assert.Equal(t, []string{"m3", "m4"}, contents(replays[0].msgs))
}

func TestPublisherReceivesEchoWithoutJoining(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob", "AAPL")

	_, err := h.dispatcher.Publish(context.Background(), alice, "AAPL", "hello")
	require.NoError(t, err)

	assert.Equal(t, []string{"hello"}, contents(h.out.live(alice, "AAPL")))
	assert.Equal(t, []string{"hello"}, contents(h.out.live(bob, "AAPL")))
}

func TestFailedAppendNeverBroadcasts(t *testing.T) {
	mem := store.NewMemoryStore(store.NewValidator(0))
	h := newHarness(t, DefaultConfig(), outageStore{Store: mem})
	alice := h.connect(t, "alice", "AAPL")
	bob := h.connect(t, "bob", "AAPL")

	_, err := h.dispatcher.Publish(context.Background(), alice, "AAPL", "lost")
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Empty(t, h.out.live(alice, "AAPL"))
	assert.Empty(t, h.out.live(bob, "AAPL"))
}

func TestPublishValidationAndUnknownSession(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	ctx := context.Background()
	alice := h.connect(t, "alice", "AAPL")

	_, err := h.dispatcher.Publish(ctx, alice, "AAPL", "   ")
	assert.True(t, apperrors.IsInvalidArgument(err))
	_, err = h.dispatcher.Publish(ctx, alice, "", "hi")
	assert.True(t, apperrors.IsInvalidArgument(err))
	assert.Empty(t, h.out.live(alice, "AAPL"))

	_, err = h.dispatcher.Publish(ctx, "nope", "AAPL", "hi")
	assert.True(t, apperrors.IsNotFound(err))

	history, err := h.dispatcher.History(ctx, "AAPL", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLeaveStopsDeliveryAndIsIdempotent(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	ctx := context.Background()
	alice := h.connect(t, "alice", "AAPL")
	bob := h.connect(t, "bob", "AAPL")

	require.NoError(t, h.sessions.Leave(bob, "aapl"))
	require.NoError(t, h.sessions.Leave(bob, "AAPL"))
	require.NoError(t, h.sessions.Leave(bob, "MSFT"))

	_, err := h.dispatcher.Publish(ctx, alice, "AAPL", "hi")
	require.NoError(t, err)
	assert.Empty(t, h.out.live(bob, "AAPL"))

	subs, err := h.sessions.Subscriptions(bob)
	require.NoError(t, err)
	assert.Empty(t, subs)

	assert.True(t, apperrors.IsNotFound(h.sessions.Leave("nope", "AAPL")))
	assert.True(t, apperrors.IsNotFound(h.sessions.Join(ctx, "nope", "AAPL")))
}

func TestDisconnectRemovesFromAllTopics(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	ctx := context.Background()
	alice := h.connect(t, "alice", "AAPL")
	bob := h.connect(t, "bob", "AAPL", "TSLA", "MSFT")

	h.sessions.Disconnect(bob)
	h.sessions.Disconnect(bob)

	assert.Equal(t, 1, h.out.released[bob])
	assert.Equal(t, []string{"AAPL"}, h.registry.Topics())
	assert.Equal(t, []string{alice}, h.registry.Subscribers("AAPL"))
	assert.Equal(t, 1, h.sessions.Count())

	_, err := h.sessions.Identity(bob)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = h.dispatcher.Publish(ctx, bob, "AAPL", "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestConnectLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 2
	h := newHarness(t, cfg, nil)

	_, err := h.sessions.Connect("")
	assert.True(t, apperrors.IsInvalidArgument(err))

	first := h.connect(t, "a")
	h.connect(t, "b")
	_, err = h.sessions.Connect("c")
	assert.True(t, apperrors.IsResourceExhausted(err))

	h.sessions.Disconnect(first)
	_, err = h.sessions.Connect("c")
	assert.NoError(t, err)
}

func TestConcurrentPublishersShareOneOrder(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	ctx := context.Background()

	const publishers, perPublisher = 6, 20
	sessions := make([]string, publishers)
	for i := range sessions {
		sessions[i] = h.connect(t, fmt.Sprintf("user%d", i), "AAPL")
	}
	watcher := h.connect(t, "watcher", "AAPL")

	var wg sync.WaitGroup
	for _, sid := range sessions {
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				_, err := h.dispatcher.Publish(ctx, sid, "AAPL", fmt.Sprintf("%s-%d", sid, i))
				assert.NoError(t, err)
			}
		}(sid)
	}
	wg.Wait()

	history, err := h.store.History(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, history, publishers*perPublisher)

	want := ids(history)
	for _, sid := range append(sessions, watcher) {
		assert.Equal(t, want, ids(h.out.live(sid, "AAPL")), sid)
	}
}

func TestJoinDuringPublishingHasNoGapsOrDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplayLimit = 1000
	h := newHarness(t, cfg, nil)
	ctx := context.Background()
	alice := h.connect(t, "alice", "AAPL")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, err := h.dispatcher.Publish(ctx, alice, "AAPL", fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}
	}()

	var joiners []string
	for i := 0; i < 5; i++ {
		joiners = append(joiners, h.connect(t, fmt.Sprintf("late%d", i), "AAPL"))
		time.Sleep(time.Millisecond)
	}
	<-done

	history, err := h.store.History(ctx, "AAPL", 0)
	require.NoError(t, err)
	for _, sid := range joiners {
		assert.Equal(t, ids(history), ids(h.out.stream(sid, "AAPL")), sid)
	}
}

func TestReapDisconnectsIdleSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = time.Minute
	h := newHarness(t, cfg, nil)

	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	h.sessions.now = func() time.Time { return now }

	idle := h.connect(t, "idle", "AAPL")
	active := h.connect(t, "active", "AAPL")

	now = now.Add(45 * time.Second)
	h.sessions.Touch(active)
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, h.sessions.Reap(now))
	assert.Equal(t, []string{active}, h.registry.Subscribers("AAPL"))
	assert.Equal(t, 1, h.out.released[idle])
}

func TestCloseDrainsSessions(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	h.connect(t, "a", "AAPL")
	h.connect(t, "b", "TSLA")

	h.sessions.Close()
	assert.Zero(t, h.sessions.Count())
	assert.Empty(t, h.registry.Topics())
}

func TestTopicLocksAreReleased(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	alice := h.connect(t, "alice", "AAPL")
	_, err := h.dispatcher.Publish(context.Background(), alice, "AAPL", "hi")
	require.NoError(t, err)
	assert.Zero(t, h.sessions.locks.size())
}

func TestJoinAckPrecedesLiveMessages(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	ctx := context.Background()
	alice := h.connect(t, "alice", "AAPL")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, err := h.dispatcher.Publish(ctx, alice, "AAPL", "tick")
			assert.NoError(t, err)
		}
	}()

	var joiners []string
	for i := 0; i < 20; i++ {
		id, err := h.sessions.Connect(fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		require.NoError(t, h.sessions.JoinWithRef(ctx, id, "AAPL", "r1"))
		joiners = append(joiners, id)
	}
	close(stop)
	wg.Wait()

	for _, id := range joiners {
		kinds := h.out.kinds(id, "AAPL")
		require.GreaterOrEqual(t, len(kinds), 2)
		assert.Equal(t, []string{"history", "joined:r1"}, kinds[:2])
		for _, k := range kinds[2:] {
			assert.Equal(t, "message", k)
		}
	}
}

func TestDisconnectsDuringPublishes(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	ctx := context.Background()
	publisher := h.connect(t, "publisher", "AAPL")

	subscribers := make([]string, 50)
	for i := range subscribers {
		subscribers[i] = h.connect(t, fmt.Sprintf("sub-%d", i), "AAPL")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := h.dispatcher.Publish(ctx, publisher, "AAPL", fmt.Sprintf("m%d", i)); err != nil {
				errs <- err
			}
		}
	}()
	for _, id := range subscribers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.sessions.Disconnect(id)
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{publisher}, h.registry.Subscribers("AAPL"))
	assert.Equal(t, 1, h.sessions.Count())
	assert.Len(t, h.out.live(publisher, "AAPL"), 200)
	assert.Zero(t, h.sessions.locks.size())

	history, err := h.store.History(ctx, "AAPL", 0)
	require.NoError(t, err)
	assert.Len(t, history, 200)
}
