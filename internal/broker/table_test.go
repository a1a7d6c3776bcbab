package broker

import (
	"math/rand"
	"testing"

	"github.com/odin-msg/broker/internal/protocol"
)

func mustPattern(t *testing.T, raw string) protocol.Pattern {
	t.Helper()
	p, err := protocol.CompilePattern(raw)
	if err != nil {
		t.Fatalf("compile %q: %v", raw, err)
	}
	return p
}

func TestTableSubscribeAndMatch(t *testing.T) {
	tbl := NewTable()
	tbl.Subscribe(Subscription{WorkerID: 0, ConnectionID: 1, Sid: "1", Pattern: mustPattern(t, "foo")})

	matches := tbl.SubscriptionsFor("foo")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestTableUnsubscribeIsIdempotent(t *testing.T) {
	tbl := NewTable()
	tbl.Unsubscribe(1, "nonexistent") // must not panic
	if len(tbl.SubscriptionsFor("foo")) != 0 {
		t.Fatal("expected no subscriptions")
	}
}

func TestTableQueueGroupExclusiveFromPlain(t *testing.T) {
	tbl := NewTable()
	tbl.Subscribe(Subscription{WorkerID: 0, ConnectionID: 1, Sid: "1", Pattern: mustPattern(t, "jobs"), QueueGroup: "workers"})
	tbl.Subscribe(Subscription{WorkerID: 0, ConnectionID: 2, Sid: "1", Pattern: mustPattern(t, "jobs"), QueueGroup: "workers"})

	if len(tbl.SubscriptionsFor("jobs")) != 0 {
		t.Fatal("queue-group members must not appear in plain subscriptions")
	}
	groups := tbl.GroupsFor("jobs")
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].members) != 2 {
		t.Fatalf("expected 2 group members, got %d", len(groups[0].members))
	}
}

func TestTableRandomMemberDistributesAcrossBoth(t *testing.T) {
	tbl := NewTable()
	tbl.Subscribe(Subscription{WorkerID: 0, ConnectionID: 1, Sid: "1", Pattern: mustPattern(t, "jobs"), QueueGroup: "workers"})
	tbl.Subscribe(Subscription{WorkerID: 0, ConnectionID: 2, Sid: "1", Pattern: mustPattern(t, "jobs"), QueueGroup: "workers"})

	g := tbl.GroupsFor("jobs")[0]
	r := rand.New(rand.NewSource(1))
	seen := map[ConnectionID]int{}
	for i := 0; i < 200; i++ {
		s, ok := g.randomMember(r)
		if !ok {
			t.Fatal("expected a member")
		}
		seen[s.ConnectionID]++
	}
	if len(seen) != 2 {
		t.Fatalf("expected both members to be chosen at least once across 200 draws, got %v", seen)
	}
}

func TestTableUnsubscribeRemovesFromGroup(t *testing.T) {
	tbl := NewTable()
	tbl.Subscribe(Subscription{WorkerID: 0, ConnectionID: 1, Sid: "1", Pattern: mustPattern(t, "jobs"), QueueGroup: "workers"})
	tbl.Unsubscribe(1, "1")

	if len(tbl.GroupsFor("jobs")[0].members) != 0 {
		t.Fatal("expected group to be empty after unsubscribe")
	}
}
