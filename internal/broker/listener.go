package broker

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/odin-msg/broker/internal/metrics"
	"github.com/odin-msg/broker/internal/ratelimit"
	"github.com/rs/zerolog"
)

// acceptPollInterval is how often the listener checks for a new
// connection when Accept would otherwise block, mirroring the
// original's 500-microsecond sleep between non-blocking accept polls.
const acceptPollInterval = 500 * time.Microsecond

// Listener accepts TCP connections and round-robins each one to a
// worker's NewConns channel, grounded in servidor.rs's inicio(): bind,
// accept in a loop, assign an ID, hand the connection off.
type Listener struct {
	ln       net.Listener
	workers  []*Worker
	accounts []Account
	limiter  *ratelimit.AcceptLimiter
	met      *metrics.Registry
	log      zerolog.Logger

	nextID     ConnectionID
	nextWorker int
}

// NewListener binds addr and constructs a Listener that will hand
// accepted connections to workers in round-robin order. limiter may be
// nil to accept unconditionally.
func NewListener(addr string, workers []*Worker, accounts []Account, limiter *ratelimit.AcceptLimiter, met *metrics.Registry, log zerolog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		ln:       ln,
		workers:  workers,
		accounts: accounts,
		limiter:  limiter,
		met:      met,
		log:      log,
	}, nil
}

// Addr returns the bound address, useful when addr was "host:0".
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Run accepts connections until ctx is canceled or the listener is
// closed.
func (l *Listener) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	type tcpDeadline interface {
		SetDeadline(time.Time) error
	}

	for {
		if dl, ok := l.ln.(tcpDeadline); ok {
			_ = dl.SetDeadline(time.Now().Add(acceptPollInterval))
		}

		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			l.log.Error().Err(err).Msg("accept failed")
			continue
		}

		l.handleAccept(conn)
	}
}

func (l *Listener) handleAccept(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	if l.limiter != nil && !l.limiter.Allow(host) {
		conn.Close()
		return
	}

	l.nextID++
	id := l.nextID

	c := NewConnection(id, conn, l.accounts, l.log.With().Uint64("conn", uint64(id)).Logger())
	if l.met != nil {
		l.met.ConnectionOpened()
	}

	worker := l.workers[l.nextWorker]
	l.nextWorker = (l.nextWorker + 1) % len(l.workers)

	select {
	case worker.NewConns() <- c:
	default:
		l.log.Error().Uint64("conn", uint64(id)).Msg("worker connection queue full, dropping new connection")
		conn.Close()
	}
}
