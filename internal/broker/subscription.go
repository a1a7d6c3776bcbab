package broker

import "github.com/odin-msg/broker/internal/protocol"

// Subscription is owned by exactly one worker. The (ConnectionID, Sid)
// pair identifies it globally; Sid alone is unique only within its
// connection.
type Subscription struct {
	WorkerID     WorkerID
	ConnectionID ConnectionID
	Sid          SubscriptionID
	Pattern      protocol.Pattern
	QueueGroup   string // empty when this is a plain subscription
}

// Key identifies a subscription globally.
type Key struct {
	ConnectionID ConnectionID
	Sid          SubscriptionID
}

func (s Subscription) Key() Key {
	return Key{ConnectionID: s.ConnectionID, Sid: s.Sid}
}

// Publication is the transient unit of a single publish: it lives only
// during one dispatch step.
type Publication struct {
	Subject string
	Payload []byte
	Headers []byte
	ReplyTo string
}
