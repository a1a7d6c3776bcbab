package broker

// TickContext accumulates the side effects of one Connection's Tick
// call: new subscriptions, unsubscriptions, and publications. The
// Worker drains it after the tick and turns each entry into an
// Instruction, keeping Connection from ever referencing its Worker.
type TickContext struct {
	Subscriptions   []Subscription
	Unsubscriptions []SubscriptionID
	Publications    []Publication
}

func NewTickContext() *TickContext {
	return &TickContext{}
}
