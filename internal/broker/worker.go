package broker

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/odin-msg/broker/internal/metrics"
	"github.com/rs/zerolog"
)

// tickInterval is the worker's event-loop period.
const tickInterval = 500 * time.Microsecond

// instructionQueueSize bounds each worker's inbound instruction
// channel; a full channel causes the sender to drop and log, never to
// block (see the Error Handling Design's inter-worker send policy).
const instructionQueueSize = 4096
const newConnQueueSize = 256

// Worker owns a shard of connections and its own replica of the
// subscription table. It never shares mutable state with another
// worker directly — all cross-worker coordination flows through typed
// instruction channels.
type Worker struct {
	id WorkerID

	connections map[ConnectionID]*Connection
	table       *Table

	newConns     chan *Connection
	instructions chan Instruction
	peers        map[WorkerID]chan Instruction // includes a channel to self

	rng *rand.Rand
	log zerolog.Logger
	met *metrics.Registry
}

// NewWorker constructs a Worker. peers must contain an entry for id
// itself (self-addressed instructions are how a tick's new
// subscriptions and publications get applied on the next tick).
func NewWorker(id WorkerID, peers map[WorkerID]chan Instruction, met *metrics.Registry, log zerolog.Logger) *Worker {
	return &Worker{
		id:           id,
		connections:  make(map[ConnectionID]*Connection),
		table:        NewTable(),
		newConns:     make(chan *Connection, newConnQueueSize),
		instructions: make(chan Instruction, instructionQueueSize),
		peers:        peers,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		log:          log.With().Int("worker", int(id)).Logger(),
		met:          met,
	}
}

// Instructions returns this worker's inbound channel, so peers (and
// the Listener, for NewConns) can address it.
func (w *Worker) Instructions() chan<- Instruction { return w.instructions }

// NewConns returns the channel the Listener sends freshly accepted
// connections to.
func (w *Worker) NewConns() chan<- *Connection { return w.newConns }

// Run executes the tick loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Worker) tick() {
	w.drainNewConnections()
	w.drainInstructions()
	w.tickConnections()
	w.reapDisconnected()

	if w.met != nil {
		w.met.WorkerQueueDepth(fmt.Sprintf("%d", w.id), len(w.instructions))
	}
}

func (w *Worker) drainNewConnections() {
	for {
		select {
		case conn := <-w.newConns:
			w.connections[conn.ID] = conn
		default:
			return
		}
	}
}

func (w *Worker) drainInstructions() {
	for {
		select {
		case instr := <-w.instructions:
			w.apply(instr)
		default:
			return
		}
	}
}

func (w *Worker) apply(instr Instruction) {
	switch instr.Kind {
	case InstructionSubscribe:
		_, existed := w.table.plain[instr.Subscription.Key()]
		w.table.Subscribe(instr.Subscription)
		if w.met != nil && !existed && instr.Subscription.WorkerID == w.id {
			w.met.SubscriptionCreated()
		}
	case InstructionUnsubscribe:
		s, existed := w.table.plain[Key{ConnectionID: instr.ConnectionID, Sid: instr.Sid}]
		w.table.Unsubscribe(instr.ConnectionID, instr.Sid)
		if w.met != nil && existed && s.WorkerID == w.id {
			w.met.SubscriptionRemoved()
		}
	case InstructionPublish:
		w.deliverPlain(instr.Publication)
	case InstructionPublishExact:
		w.deliverExact(instr.Target, instr.Publication)
	case InstructionNewPublication:
		w.routeNewPublication(instr.Publication)
	}
}

func (w *Worker) deliverPlain(p Publication) {
	for _, sub := range w.table.SubscriptionsFor(p.Subject) {
		if sub.WorkerID != w.id {
			continue
		}
		if conn, ok := w.connections[sub.ConnectionID]; ok {
			conn.WriteMessage(sub.Sid, p)
			if w.met != nil {
				w.met.MessageDelivered()
			}
		}
	}
}

func (w *Worker) deliverExact(target Subscription, p Publication) {
	if conn, ok := w.connections[target.ConnectionID]; ok {
		conn.WriteMessage(target.Sid, p)
		if w.met != nil {
			w.met.MessageDelivered()
		}
	}
}

// routeNewPublication implements §4.4's routing step: every worker
// owning a matching plain subscription gets Publish exactly once, and
// every matching queue group sends PublishExact to one randomly
// chosen member's owning worker.
func (w *Worker) routeNewPublication(p Publication) {
	for workerID := range w.table.WorkersSubscribedTo(p.Subject) {
		w.send(workerID, Instruction{Kind: InstructionPublish, Publication: p})
	}

	for _, g := range w.table.GroupsFor(p.Subject) {
		member, ok := g.randomMember(w.rng)
		if !ok {
			continue
		}
		w.send(member.WorkerID, Instruction{Kind: InstructionPublishExact, Target: member, Publication: p})
	}
}

func (w *Worker) tickConnections() {
	for _, conn := range w.connections {
		ctx := NewTickContext()
		conn.Tick(ctx)

		for _, sub := range ctx.Subscriptions {
			sub.WorkerID = w.id
			w.broadcast(Instruction{Kind: InstructionSubscribe, Subscription: sub})
		}
		for _, sid := range ctx.Unsubscriptions {
			w.broadcast(Instruction{Kind: InstructionUnsubscribe, ConnectionID: conn.ID, Sid: sid})
		}
		for _, p := range ctx.Publications {
			if w.met != nil {
				w.met.PublicationReceived()
			}
			w.send(w.id, Instruction{Kind: InstructionNewPublication, Publication: p})
		}
	}
}

func (w *Worker) reapDisconnected() {
	for id, conn := range w.connections {
		if !conn.Disconnected {
			continue
		}
		for _, sub := range w.table.SubscriptionsOf(id) {
			w.broadcast(Instruction{Kind: InstructionUnsubscribe, ConnectionID: id, Sid: sub.Sid})
		}

		reason := conn.DisconnectReason
		if reason == "" {
			reason = "unknown"
		}
		w.log.Warn().Uint64("conn_id", uint64(id)).Int("worker", int(w.id)).Str("reason", reason).Msg("connection closed")
		if w.met != nil {
			w.met.ConnectionClosed(reason, conn.Lifetime())
		}

		if cl, ok := conn.sock.(io.Closer); ok {
			_ = cl.Close()
		}
		delete(w.connections, id)
	}
}

// broadcast sends instr to every worker, including self, so every
// worker's subscription table replica eventually converges.
func (w *Worker) broadcast(instr Instruction) {
	for id := range w.peers {
		w.send(id, instr)
	}
}

// send is a non-blocking enqueue. A full peer channel is treated as a
// broker bug, not a user-visible error: it's logged and dropped, never
// retried.
func (w *Worker) send(to WorkerID, instr Instruction) {
	ch, ok := w.peers[to]
	if !ok {
		return
	}
	select {
	case ch <- instr:
	default:
		w.log.Error().Int("to", int(to)).Int("kind", int(instr.Kind)).Msg("instruction channel full, dropping")
		if w.met != nil {
			w.met.InstructionDropped(fmt.Sprintf("%d", instr.Kind))
		}
	}
}
