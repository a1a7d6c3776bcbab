package client

import "time"

// Subscription is a live subscription handle, grounded in
// suscripcion.rs's Suscripcion: a receive channel for delivered
// messages plus an Unsubscribe that tells the loop to stop delivering.
// Read/TryRead/ReadWithTimeout mirror Suscripcion's leer/intentar_leer/
// leer_con_limite_de_tiempo.
type Subscription struct {
	sid  string
	C    <-chan Message
	loop *loop
}

// Unsubscribe stops delivery and releases the subscription's sid.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	select {
	case s.loop.instructions <- instruction{kind: instrUnsubscribe, sid: s.sid}:
	case <-s.loop.closed:
	}
}

// Read blocks for the next message, returning ok=false once the
// subscription or the client has been closed, grounded in leer.
func (s *Subscription) Read() (Message, bool) {
	msg, ok := <-s.C
	return msg, ok
}

// TryRead returns immediately, reporting ok=false if no message is
// currently queued, grounded in intentar_leer.
func (s *Subscription) TryRead() (Message, bool) {
	select {
	case msg, ok := <-s.C:
		return msg, ok
	default:
		return Message{}, false
	}
}

// ReadWithTimeout blocks until a message arrives or d elapses,
// grounded in leer_con_limite_de_tiempo.
func (s *Subscription) ReadWithTimeout(d time.Duration) (Message, bool) {
	select {
	case msg, ok := <-s.C:
		return msg, ok
	case <-time.After(d):
		return Message{}, false
	}
}
