package broker

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestWorkers(n int) []*Worker {
	peers := make(map[WorkerID]chan Instruction, n)
	workers := make([]*Worker, n)
	for i := 0; i < n; i++ {
		w := NewWorker(WorkerID(i), nil, nil, zerolog.Nop())
		workers[i] = w
		peers[WorkerID(i)] = w.instructions
	}
	for _, w := range workers {
		w.peers = peers
	}
	return workers
}

// TestWorkerCrossWorkerDelivery subscribes on one worker and publishes
// on another, confirming the publication is routed across the
// instruction-channel mesh and delivered to the subscriber.
func TestWorkerCrossWorkerDelivery(t *testing.T) {
	workers := newTestWorkers(2)
	w0, w1 := workers[0], workers[1]

	control0, sock0 := newMockSocket()
	conn0 := NewConnection(1, sock0, nil, zerolog.Nop())
	w0.connections[conn0.ID] = conn0

	control1, sock1 := newMockSocket()
	conn1 := NewConnection(2, sock1, nil, zerolog.Nop())
	w1.connections[conn1.ID] = conn1

	control0.Write([]byte("CONNECT {}\r\n"))
	control1.Write([]byte("CONNECT {}\r\n"))
	w0.tick()
	w1.tick()

	control0.Write([]byte("SUB foo 1\r\n"))
	w0.tick() // parses SUB, broadcasts Subscribe to both peers' channels
	w1.tick() // drains the Subscribe instruction, replicates into its own table

	control0.TakeWritten() // discard the +OK connect / +OK sub acks
	control1.TakeWritten()

	control1.Write([]byte("PUB foo 5\r\nhello\r\n"))
	w1.tick() // parses PUB, self-addresses a NewPublication instruction
	w1.tick() // drains NewPublication, routes Publish to w0
	w0.tick() // drains Publish, delivers MSG to conn0

	control1.TakeWritten() // discard conn1's +OK pub ack
	written := control0.TakeWritten()
	if written == nil {
		t.Fatal("expected conn0 to receive a delivered message")
	}
	if !strings.HasPrefix(string(written), "MSG foo 1 5\r\nhello") {
		t.Fatalf("unexpected delivery: %q", written)
	}
}

// TestWorkerQueueGroupDeliversToOneMember confirms a publication
// matching a queue group is delivered to exactly one of its members,
// even when the members are owned by different workers.
func TestWorkerQueueGroupDeliversToOneMember(t *testing.T) {
	workers := newTestWorkers(2)
	w0, w1 := workers[0], workers[1]

	control0, sock0 := newMockSocket()
	conn0 := NewConnection(1, sock0, nil, zerolog.Nop())
	w0.connections[conn0.ID] = conn0

	control1, sock1 := newMockSocket()
	conn1 := NewConnection(2, sock1, nil, zerolog.Nop())
	w1.connections[conn1.ID] = conn1

	control0.Write([]byte("CONNECT {}\r\n"))
	control1.Write([]byte("CONNECT {}\r\n"))
	w0.tick()
	w1.tick()

	control0.Write([]byte("SUB jobs workers 1\r\n"))
	control1.Write([]byte("SUB jobs workers 1\r\n"))
	w0.tick()
	w1.tick()
	w0.tick()
	w1.tick()

	control0.TakeWritten() // discard +OK connect / +OK sub acks
	control1.TakeWritten()

	control0.Write([]byte("PUB jobs 2\r\nhi\r\n"))
	w0.tick()
	w0.tick()
	w1.tick()

	// control0's outbox now holds its own +OK pub ack plus, if it won
	// queue-group selection, a trailing MSG frame; control1's outbox
	// holds a MSG frame only if it won instead.
	got0 := strings.Contains(string(control0.TakeWritten()), "MSG jobs")
	got1 := strings.Contains(string(control1.TakeWritten()), "MSG jobs")

	if got0 == got1 {
		t.Fatalf("expected exactly one member to be delivered to, got0=%v got1=%v", got0, got1)
	}
}
