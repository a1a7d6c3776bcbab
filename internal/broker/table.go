package broker

import "github.com/odin-msg/broker/internal/protocol"

// group is a named set of subscriptions sharing a pattern; one member
// is chosen uniformly at random per matching publication. The pattern
// is fixed by whichever subscription first creates the group and
// outlives its members, so an empty group still matches.
type group struct {
	name    string
	pattern protocol.Pattern
	members map[Key]Subscription
}

// Table is a pattern-indexed registry of active subscriptions and
// queue-group buckets. Each Worker owns its own Table and the broker
// keeps every worker's Table eventually consistent by broadcasting
// Subscribe/Unsubscribe instructions rather than sharing one locked
// structure.
type Table struct {
	plain  map[Key]Subscription
	groups map[string]*group
}

func NewTable() *Table {
	return &Table{
		plain:  make(map[Key]Subscription),
		groups: make(map[string]*group),
	}
}

func (t *Table) Subscribe(s Subscription) {
	t.plain[s.Key()] = s

	if s.QueueGroup != "" {
		g, ok := t.groups[s.QueueGroup]
		if !ok {
			g = &group{name: s.QueueGroup, pattern: s.Pattern, members: make(map[Key]Subscription)}
			t.groups[s.QueueGroup] = g
		}
		g.members[s.Key()] = s
	}
}

func (t *Table) Unsubscribe(connID ConnectionID, sid SubscriptionID) {
	key := Key{ConnectionID: connID, Sid: sid}
	s, ok := t.plain[key]
	if !ok {
		return // idempotent: unsubscribing an unknown sid is a no-op
	}
	delete(t.plain, key)

	if s.QueueGroup != "" {
		if g, ok := t.groups[s.QueueGroup]; ok {
			delete(g.members, key)
		}
	}
}

// SubscriptionsFor returns every plain (non-group) subscription whose
// pattern matches subject.
func (t *Table) SubscriptionsFor(subject string) []Subscription {
	var out []Subscription
	for _, s := range t.plain {
		if s.QueueGroup == "" && s.Pattern.Matches(subject) {
			out = append(out, s)
		}
	}
	return out
}

// GroupsFor returns every queue group whose pattern matches subject.
// The pattern stored on a group is the one carried by whichever
// subscription created it.
func (t *Table) GroupsFor(subject string) []*group {
	var out []*group
	for _, g := range t.groups {
		if g.pattern.Matches(subject) {
			out = append(out, g)
		}
	}
	return out
}

// WorkersSubscribedTo returns the distinct set of WorkerIDs owning a
// plain subscription matching subject.
func (t *Table) WorkersSubscribedTo(subject string) map[WorkerID]struct{} {
	out := make(map[WorkerID]struct{})
	for _, s := range t.SubscriptionsFor(subject) {
		out[s.WorkerID] = struct{}{}
	}
	return out
}

// SubscriptionsOf returns every subscription (plain or group) owned by
// the given connection.
func (t *Table) SubscriptionsOf(connID ConnectionID) []Subscription {
	var out []Subscription
	for _, s := range t.plain {
		if s.ConnectionID == connID {
			out = append(out, s)
		}
	}
	return out
}

// randomMember picks one member of g uniformly at random using r.
func (g *group) randomMember(r randSource) (Subscription, bool) {
	n := len(g.members)
	if n == 0 {
		return Subscription{}, false
	}
	idx := r.Intn(n)
	i := 0
	for _, s := range g.members {
		if i == idx {
			return s, true
		}
		i++
	}
	return Subscription{}, false
}

func (g *group) Name() string { return g.name }

// randSource is the minimal interface Worker injects for queue-group
// selection: *rand.Rand in production, a fixed-seed one in tests.
type randSource interface {
	Intn(n int) int
}
