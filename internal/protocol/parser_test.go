package protocol

import (
	"bytes"
	"fmt"
	"testing"
)

func TestParserSimplePub(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("PUB foo 5\r\nhello\r\n"))

	f, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f == nil {
		t.Fatal("expected a frame")
	}
	if f.Kind != KindPub || f.Subject != "foo" || !bytes.Equal(f.Payload, []byte("hello")) {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParserPartialDelivery(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("PUB foo 5\r\nhel"))

	f, err := p.Next()
	if err != nil || f != nil {
		t.Fatalf("expected no frame yet, got %+v err=%v", f, err)
	}

	p.Feed([]byte("lo\r\n"))
	f, err = p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f == nil || f.Kind != KindPub {
		t.Fatalf("expected PUB frame once body completes, got %+v", f)
	}
}

func TestParserHPub(t *testing.T) {
	p := NewParser()
	headers := "k:v"
	payload := "hola"
	ntotal := len(headers) + len(payload)
	p.Feed([]byte(fmt.Sprintf("HPUB foo %d %d\r\n%s\r\n%s\r\n", len(headers), ntotal, headers, payload)))

	f, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f == nil || f.Kind != KindHPub {
		t.Fatalf("expected HPUB frame, got %+v", f)
	}
	if !bytes.Equal(f.Headers, []byte(headers)) {
		t.Errorf("headers = %q, want %q", f.Headers, headers)
	}
	if !bytes.Equal(f.Payload, []byte(payload)) {
		t.Errorf("payload = %q, want %q", f.Payload, payload)
	}
}

func TestParserSubWithQueueGroup(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("SUB jobs workers 1\r\n"))

	f, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindSub || f.Subject != "jobs" || f.QueueGroup != "workers" || f.Sid != "1" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParserUnsubWithMaxMsgs(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("UNSUB 7 3\r\n"))

	f, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindUnsub || f.Sid != "7" || f.MaxMsgs == nil || *f.MaxMsgs != 3 {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParserMalformedLine(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("PUB onlyonearg\r\n"))

	f, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindParseError {
		t.Fatalf("expected ParseError, got %+v", f)
	}
}

func TestParserTolerantOfInfoDoubleTerminator(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("INFO {\"requiere_auth\":true}\r\n\r\nPING\r\n"))

	f, err := p.Next()
	if err != nil || f.Kind != KindInfo || !f.Info.RequiereAuth {
		t.Fatalf("unexpected first frame: %+v err=%v", f, err)
	}

	f, err = p.Next()
	if err != nil || f.Kind != KindPing {
		t.Fatalf("expected PING after blank line, got %+v err=%v", f, err)
	}
}

func TestParserUnknownVerb(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("FROBNICATE x\r\n"))

	f, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != KindUnknown {
		t.Fatalf("expected Unknown, got %+v", f)
	}
}
