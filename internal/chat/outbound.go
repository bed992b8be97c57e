package chat

import "stock-chat/backend/internal/models"

// Outbound is the transport side of a session. Implementations must not block:
// a session that cannot keep up should be dropped rather than stall a topic.
type Outbound interface {
	// Deliver queues a live message. It returns an error when the session is gone.
	Deliver(sessionID string, msg models.Message) error
	// Replay queues the history batch sent on Join, ahead of any live message
	Replay(sessionID, topic string, msgs []models.Message) error
	// Joined queues the join acknowledgement. On a first join it follows the
	// replay and precedes any live message of topic. ref echoes the request.
	Joined(sessionID, topic, ref string) error
	// Release tears down the transport binding of a disconnected session
	Release(sessionID string)
}

// DiscardOutbound drops everything. It is useful for sessions without a transport.
type DiscardOutbound struct{}

func (DiscardOutbound) Deliver(string, models.Message) error          { return nil }
func (DiscardOutbound) Replay(string, string, []models.Message) error { return nil }
func (DiscardOutbound) Joined(string, string, string) error           { return nil }
func (DiscardOutbound) Release(string)                                {}
