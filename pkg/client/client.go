package client

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/nats-io/nuid"
)

// ErrDisconnected is returned by calls made after the connection to
// the broker has ended.
var ErrDisconnected = errors.New("client: disconnected")

// ErrTimeout is returned by Request when no reply arrives within the
// deadline.
var ErrTimeout = errors.New("client: request timed out")

// Client is a connection to an odin broker. Every public method sends
// an instruction to the background loop goroutine, which owns the
// socket exclusively, mirroring Cliente/HiloCliente's split between
// the public handle and its dedicated thread.
type Client struct {
	loop    *loop
	nextSid uint64
}

// Connect dials addr and starts the background loop, grounded in
// Cliente::conectar_con_user_y_pass.
func Connect(addr string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	l := newLoop(conn, o)
	go l.run()

	return &Client{loop: l}, nil
}

// Close disconnects from the broker and stops the background loop.
func (c *Client) Close() {
	select {
	case c.loop.instructions <- instruction{kind: instrDisconnect}:
	case <-c.loop.closed:
	}
	<-c.loop.closed
}

// Publish sends a plain publication with no reply-to or headers.
func (c *Client) Publish(subject string, data []byte) error {
	return c.publish(subject, "", nil, data)
}

// PublishRequest publishes data on subject with replyTo set, the
// low-level primitive Request is built on.
func (c *Client) PublishRequest(subject, replyTo string, data []byte) error {
	return c.publish(subject, replyTo, nil, data)
}

// PublishWithHeaders publishes data on subject carrying headers, the
// Go equivalent of publicar_con_header.
func (c *Client) PublishWithHeaders(subject string, headers, data []byte) error {
	return c.publish(subject, "", headers, data)
}

func (c *Client) publish(subject, replyTo string, headers, data []byte) error {
	select {
	case c.loop.instructions <- instruction{
		kind:    instrPublish,
		subject: subject,
		replyTo: replyTo,
		headers: headers,
		payload: data,
	}:
		return nil
	case <-c.loop.closed:
		return ErrDisconnected
	}
}

// Subscribe creates a subscription on subject. An empty queueGroup
// subscribes as a plain subscriber.
func (c *Client) Subscribe(subject, queueGroup string) (*Subscription, error) {
	sid := fmt.Sprintf("%d", atomic.AddUint64(&c.nextSid, 1))
	deliver := make(chan Message, 64)

	select {
	case c.loop.instructions <- instruction{
		kind:       instrSubscribe,
		subject:    subject,
		sid:        sid,
		queueGroup: queueGroup,
		deliver:    deliver,
	}:
	case <-c.loop.closed:
		return nil, ErrDisconnected
	}

	return &Subscription{sid: sid, C: deliver, loop: c.loop}, nil
}

// Inbox generates a unique reply subject, grounded in
// Cliente::nuevo_inbox (format!("_INBOX.{}", nuid::next())).
func (c *Client) Inbox() string {
	return "_INBOX." + nuid.Next()
}

// Request publishes data on subject and waits up to timeout for a
// single reply, grounded in peticion_con_tiempo_limite_o_header.
func (c *Client) Request(subject string, data []byte, timeout time.Duration) (*Message, error) {
	return c.request(subject, nil, data, timeout)
}

// RequestWithHeaders is Request carrying outbound headers.
func (c *Client) RequestWithHeaders(subject string, headers, data []byte, timeout time.Duration) (*Message, error) {
	return c.request(subject, headers, data, timeout)
}

func (c *Client) request(subject string, headers, data []byte, timeout time.Duration) (*Message, error) {
	inbox := c.Inbox()
	sub, err := c.Subscribe(inbox, "")
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := c.publish(subject, inbox, headers, data); err != nil {
		return nil, err
	}

	select {
	case msg, ok := <-sub.C:
		if !ok {
			return nil, ErrDisconnected
		}
		return &msg, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}
