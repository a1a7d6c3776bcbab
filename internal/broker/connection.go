package broker

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/odin-msg/broker/internal/protocol"
	"github.com/rs/zerolog"
)

// pingInterval is how long a Connection waits since its last PING
// before sending another liveness probe.
const pingInterval = 20 * time.Second

// readDeadline bounds each socket read so a Connection never blocks a
// Worker's tick; a deadline-exceeded read is treated exactly like the
// source broker's WouldBlock no-op.
const readDeadline = 200 * time.Microsecond

const readBufferSize = 1024

// ErrWouldBlock lets the mock stream used in tests signal "no data
// available right now" without implementing net.Error.
var ErrWouldBlock = errors.New("broker: would block")

// socket is the minimal surface Connection needs from a transport: a
// real *net.TCPConn in production, an in-memory mock in tests.
type socket interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
}

// Connection is a per-client state machine: auth handshake, ping
// scheduler, parser feed, response writer. It never holds a reference
// back to its owning Worker — side effects flow out through the
// TickContext passed to Tick.
type Connection struct {
	ID     ConnectionID
	sock   socket
	parser *protocol.Parser
	log    zerolog.Logger

	lastPing time.Time

	Disconnected     bool
	Authenticated    bool
	DisconnectReason string

	connectedAt time.Time
	accounts    []Account // nil means auth is disabled
}

// NewConnection constructs a Connection and immediately queues its
// INFO frame, matching the source broker's Conexion::new.
func NewConnection(id ConnectionID, sock socket, accounts []Account, log zerolog.Logger) *Connection {
	c := &Connection{
		ID:          id,
		sock:        sock,
		parser:      protocol.NewParser(),
		log:         log.With().Uint64("conn_id", uint64(id)).Logger(),
		lastPing:    time.Now(),
		connectedAt: time.Now(),
		accounts:    accounts,
	}
	c.sendInfo()
	return c
}

// Lifetime returns how long the connection has been open.
func (c *Connection) Lifetime() time.Duration { return time.Since(c.connectedAt) }

func (c *Connection) disconnect(reason string) {
	c.Disconnected = true
	c.DisconnectReason = reason
}

func (c *Connection) sendInfo() {
	c.writeBytes(protocol.SerializeInfo(c.accounts != nil))
}

// Tick performs, in order: ping scheduling, a single non-blocking
// socket read, and draining every frame the parser can now produce.
// It short-circuits the moment a pre-auth violation is seen, even if
// more frames were already parsed out of the same read.
func (c *Connection) Tick(ctx *TickContext) {
	if c.Disconnected {
		return
	}

	if c.shouldPing() {
		c.writeBytes(protocol.SerializePing())
	}

	c.readOnce()
	c.drainFrames(ctx)
}

func (c *Connection) shouldPing() bool {
	if time.Since(c.lastPing) < pingInterval {
		return false
	}
	c.lastPing = time.Now()
	return true
}

func (c *Connection) readOnce() {
	buf := make([]byte, readBufferSize)

	_ = c.sock.SetReadDeadline(time.Now().Add(readDeadline))
	n, err := c.sock.Read(buf)
	if n > 0 {
		c.parser.Feed(buf[:n])
	}
	if err == nil {
		return
	}
	if err == io.EOF {
		c.disconnect("eof")
		return
	}
	if isWouldBlock(err) {
		return
	}
	c.log.Warn().Err(err).Msg("socket read failed")
	c.disconnect("read_error")
}

func isWouldBlock(err error) bool {
	if errors.Is(err, ErrWouldBlock) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

func (c *Connection) writeBytes(b []byte) {
	if _, err := c.sock.Write(b); err != nil {
		c.log.Warn().Err(err).Msg("socket write failed")
		c.disconnect("write_error")
	}
}

func (c *Connection) drainFrames(ctx *TickContext) {
	for {
		frame, err := c.parser.Next()
		if err != nil {
			// The parser itself never returns a hard error; malformed
			// input surfaces as a ParseError frame instead.
			break
		}
		if frame == nil {
			return
		}
		if c.dispatch(frame, ctx) == shortCircuit {
			return
		}
	}
}

type dispatchResult int

const (
	keepGoing dispatchResult = iota
	shortCircuit
)

func (c *Connection) dispatch(f *protocol.Frame, ctx *TickContext) dispatchResult {
	if !c.Authenticated {
		return c.dispatchPreAuth(f)
	}
	return c.dispatchPostAuth(f, ctx)
}

func (c *Connection) dispatchPreAuth(f *protocol.Frame) dispatchResult {
	if f.Kind != protocol.KindConnect {
		c.writeBytes(protocol.SerializeErr("Primero debe enviar un mensaje de conexión"))
		c.disconnect("no_connect")
		return shortCircuit
	}

	user, pass := connectCredentials(f.Connect)

	if c.accounts == nil {
		c.Authenticated = true
		c.writeBytes(protocol.SerializeOK("connect"))
		return keepGoing
	}

	if _, ok := MatchAccount(c.accounts, user, pass); ok {
		c.Authenticated = true
		c.writeBytes(protocol.SerializeOK("connect"))
		return keepGoing
	}

	c.writeBytes(protocol.SerializeErr("Usuario o contraseña incorrectos"))
	c.disconnect("bad_auth")
	return shortCircuit
}

func connectCredentials(p protocol.ConnectParams) (user, pass string) {
	if p.User != nil {
		user = *p.User
	}
	if p.Pass != nil {
		pass = *p.Pass
	}
	return user, pass
}

func (c *Connection) dispatchPostAuth(f *protocol.Frame, ctx *TickContext) dispatchResult {
	switch f.Kind {
	case protocol.KindPub:
		ctx.Publications = append(ctx.Publications, Publication{Subject: f.Subject, Payload: f.Payload, ReplyTo: f.ReplyTo})
		c.writeBytes(protocol.SerializeOK("pub"))

	case protocol.KindHPub:
		ctx.Publications = append(ctx.Publications, Publication{Subject: f.Subject, Payload: f.Payload, Headers: f.Headers, ReplyTo: f.ReplyTo})
		c.writeBytes(protocol.SerializeOK("hpub"))

	case protocol.KindSub:
		pattern, err := protocol.CompilePattern(f.Subject)
		if err != nil {
			c.writeBytes(protocol.SerializeErr("Tópico de subscripción incorrecto"))
			return keepGoing
		}
		ctx.Subscriptions = append(ctx.Subscriptions, Subscription{
			ConnectionID: c.ID,
			Sid:          SubscriptionID(f.Sid),
			Pattern:      pattern,
			QueueGroup:   f.QueueGroup,
		})
		c.writeBytes(protocol.SerializeOK("sub"))

	case protocol.KindUnsub:
		ctx.Unsubscriptions = append(ctx.Unsubscriptions, SubscriptionID(f.Sid))
		c.writeBytes(protocol.SerializeOK("unsub"))

	case protocol.KindPing:
		c.writeBytes(protocol.SerializePong())

	case protocol.KindConnect:
		c.writeBytes(protocol.SerializeErr("Ya se recibió un mensaje de conexión"))

	case protocol.KindParseError:
		c.writeBytes(protocol.SerializeErr("Mensaje incorrecto"))

	default:
		c.writeBytes(protocol.SerializeErr("Mensaje no reconocido"))
	}

	return keepGoing
}

// WriteMessage serializes and writes a MSG/HMSG frame bound for sid.
func (c *Connection) WriteMessage(sid SubscriptionID, p Publication) {
	if p.Headers == nil {
		c.writeBytes(protocol.SerializeMsg(p.Subject, string(sid), p.ReplyTo, p.Payload))
		return
	}
	c.writeBytes(protocol.SerializeHMsg(p.Subject, string(sid), p.ReplyTo, p.Headers, p.Payload))
}

func (c *Connection) String() string {
	return fmt.Sprintf("Connection{id=%d auth=%v disconnected=%v}", c.ID, c.Authenticated, c.Disconnected)
}
