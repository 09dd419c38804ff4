package presence

import "context"

// MessageType tags a replication message.
type MessageType string

const (
	// MessageHeartbeat carries the sender's complete entry set.
	MessageHeartbeat MessageType = "heartbeat"
	// MessageDelta carries entries the sender tracked, updated or untracked.
	MessageDelta MessageType = "delta"
	// MessageLeaveNode announces a node shutting down.
	MessageLeaveNode MessageType = "leave-node"
)

// Message is exchanged between registry nodes.
type Message struct {
	Type   MessageType `json:"type"`
	NodeID string      `json:"node_id"`
	Clock  int64       `json:"clock"`
	Joins  []Entry     `json:"joins,omitempty"`
	Leaves []Entry     `json:"leaves,omitempty"`
}

// Transport moves messages between nodes. Delivery is best effort;
// heartbeats repair anything lost.
type Transport interface {
	Broadcast(ctx context.Context, msg Message) error
	// Receive starts delivery of messages from all nodes, including the
	// caller's own. The channel closes when ctx ends or the transport fails.
	Receive(ctx context.Context) (<-chan Message, error)
}
