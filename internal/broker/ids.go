package broker

// ConnectionID is assigned by the Listener and is unique for the
// broker's lifetime.
type ConnectionID uint64

// WorkerID is a 0-based index into the fixed worker array.
type WorkerID int

// SubscriptionID is opaque text chosen by the client ("sid" on the
// wire); unique only within a connection.
type SubscriptionID string
