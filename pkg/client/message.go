// Package client is the companion library for connecting to an odin
// broker, grounded in the original messaging-client's Cliente: a
// background goroutine owns the socket, the rest of the API talks to
// it over channels.
package client

// Message is a delivered publication: either a normal message
// received on a subscription, or a reply to a Request.
type Message struct {
	Subject string
	ReplyTo string
	Headers []byte
	Data    []byte
}
