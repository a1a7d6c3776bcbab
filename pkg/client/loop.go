package client

import (
	"errors"
	"net"
	"time"

	"github.com/odin-msg/broker/internal/protocol"
)

// readBufferSize matches the background thread's read buffer in the
// original client (proximo_mensaje's 1024-byte buffer).
const readBufferSize = 1024

// readDeadline bounds each read attempt so the loop can interleave
// draining queued instructions between reads, the Go equivalent of the
// original's non-blocking socket plus WouldBlock handling.
const readDeadline = 5 * time.Millisecond

// loop owns the socket exclusively: all reads, writes, and the
// sid->delivery-channel map live only on this goroutine, reached by
// every other API only via the instructions channel.
type loop struct {
	conn   net.Conn
	parser *protocol.Parser
	opts   options

	instructions chan instruction
	closed       chan struct{}

	authenticated bool
	subs          map[string]chan Message

	disconnectErr error
}

func newLoop(conn net.Conn, opts options) *loop {
	return &loop{
		conn:         conn,
		parser:       protocol.NewParser(),
		opts:         opts,
		instructions: make(chan instruction, 256),
		closed:       make(chan struct{}),
		subs:         make(map[string]chan Message),
	}
}

// run is the background goroutine's body, mirroring ejecutar/ciclo:
// drain every parsed frame first, then — only once authenticated —
// drain queued instructions.
func (l *loop) run() {
	defer close(l.closed)
	defer l.conn.Close()

	buf := make([]byte, readBufferSize)

	for {
		_ = l.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, err := l.conn.Read(buf)
		if n > 0 {
			l.parser.Feed(buf[:n])
		}
		if err != nil {
			if !isTimeout(err) {
				l.disconnectErr = err
				l.closeSubs()
				return
			}
		}

		for {
			frame, ferr := l.parser.Next()
			if ferr != nil || frame == nil {
				break
			}
			if !l.handleFrame(frame) {
				l.closeSubs()
				return
			}
		}

		if !l.authenticated {
			continue
		}

		if !l.drainInstructions() {
			l.closeSubs()
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// handleFrame applies gestionar_nuevo_mensaje's dispatch. Returns
// false if the connection should end.
func (l *loop) handleFrame(f *protocol.Frame) bool {
	switch f.Kind {
	case protocol.KindMsg, protocol.KindHMsg:
		if ch, ok := l.subs[f.Sid]; ok {
			select {
			case ch <- Message{Subject: f.Subject, ReplyTo: f.ReplyTo, Headers: f.Headers, Data: f.Payload}:
			default:
			}
		}
	case protocol.KindInfo:
		if !f.Info.RequiereAuth {
			l.write(protocol.SerializeConnect(nil, nil))
		} else {
			user, pass := l.opts.user, l.opts.pass
			l.write(protocol.SerializeConnect(&user, &pass))
		}
	case protocol.KindOK:
		if f.Text == "connect" {
			l.authenticated = true
		}
	case protocol.KindPing:
		l.write(protocol.SerializePong())
	case protocol.KindErr:
		// A pre-auth -ERR (bad credentials, missing CONNECT) is fatal:
		// the server closes its side right after. A post-auth -ERR
		// (e.g. a malformed SUB pattern) is a recoverable per-request
		// error and must not tear down the whole connection.
		if !l.authenticated {
			l.disconnectErr = errors.New(f.Text)
			return false
		}
	}
	return true
}

func (l *loop) drainInstructions() bool {
	for {
		select {
		case instr := <-l.instructions:
			if !l.applyInstruction(instr) {
				return false
			}
		default:
			return true
		}
	}
}

func (l *loop) applyInstruction(instr instruction) bool {
	switch instr.kind {
	case instrSubscribe:
		l.subs[instr.sid] = instr.deliver
		l.write(protocol.SerializeSub(instr.subject, instr.queueGroup, instr.sid))
	case instrUnsubscribe:
		delete(l.subs, instr.sid)
		l.write(protocol.SerializeUnsub(instr.sid, nil))
	case instrPublish:
		if instr.headers != nil {
			l.write(protocol.SerializeHPub(instr.subject, instr.replyTo, instr.headers, instr.payload))
		} else {
			l.write(protocol.SerializePub(instr.subject, instr.replyTo, instr.payload))
		}
	case instrDisconnect:
		return false
	}
	return true
}

func (l *loop) write(b []byte) {
	if _, err := l.conn.Write(b); err != nil {
		l.disconnectErr = err
	}
}

func (l *loop) closeSubs() {
	for _, ch := range l.subs {
		close(ch)
	}
}
