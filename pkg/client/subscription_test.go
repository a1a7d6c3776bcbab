package client

import (
	"testing"
	"time"
)

func TestSubscriptionTryReadEmpty(t *testing.T) {
	ch := make(chan Message, 1)
	sub := &Subscription{C: ch}

	if _, ok := sub.TryRead(); ok {
		t.Fatal("expected no message queued")
	}

	ch <- Message{Subject: "foo"}
	msg, ok := sub.TryRead()
	if !ok || msg.Subject != "foo" {
		t.Fatalf("expected queued message, got %+v ok=%v", msg, ok)
	}
}

func TestSubscriptionReadWithTimeoutExpires(t *testing.T) {
	ch := make(chan Message)
	sub := &Subscription{C: ch}

	start := time.Now()
	_, ok := sub.ReadWithTimeout(20 * time.Millisecond)
	if ok {
		t.Fatal("expected timeout, got a message")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestSubscriptionReadWithTimeoutDelivers(t *testing.T) {
	ch := make(chan Message, 1)
	sub := &Subscription{C: ch}
	ch <- Message{Subject: "bar"}

	msg, ok := sub.ReadWithTimeout(time.Second)
	if !ok || msg.Subject != "bar" {
		t.Fatalf("expected delivered message, got %+v ok=%v", msg, ok)
	}
}
