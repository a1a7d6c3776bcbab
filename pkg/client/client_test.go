package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/odin-msg/broker/internal/broker"
	"github.com/odin-msg/broker/pkg/client"
	"github.com/rs/zerolog"
)

func startTestBroker(t *testing.T) (addr string, stop func()) {
	t.Helper()

	srv, err := broker.NewServer(broker.ServerConfig{Addr: "127.0.0.1:0", Workers: 2}, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to start test broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	return srv.Addr(), func() {
		cancel()
		<-done
	}
}

func TestClientPublishSubscribe(t *testing.T) {
	addr, stop := startTestBroker(t)
	defer stop()

	sub, err := client.Connect(addr)
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer sub.Close()

	subscription, err := sub.Subscribe("greetings", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub, err := client.Connect(addr)
	if err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	defer pub.Close()

	// give both background loops time to complete CONNECT handshakes
	// and the subscription to reach the broker
	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish("greetings", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg, ok := <-subscription.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		if msg.Subject != "greetings" || string(msg.Data) != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestClientRequestReply(t *testing.T) {
	addr, stop := startTestBroker(t)
	defer stop()

	responder, err := client.Connect(addr)
	if err != nil {
		t.Fatalf("responder connect: %v", err)
	}
	defer responder.Close()

	sub, err := responder.Subscribe("echo", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	go func() {
		msg, ok := sub.Read()
		if !ok {
			return
		}
		_ = responder.PublishRequest(msg.ReplyTo, "", msg.Data)
	}()

	requester, err := client.Connect(addr)
	if err != nil {
		t.Fatalf("requester connect: %v", err)
	}
	defer requester.Close()

	time.Sleep(100 * time.Millisecond)

	reply, err := requester.Request("echo", []byte("ping"), 2*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(reply.Data) != "ping" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}
