// Package protocol implements the broker's line-oriented wire framing:
// an incremental parser, the MSG/HMSG/INFO/... serializers, and the
// subject-pattern matcher shared by the broker and the client library.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which wire frame a parsed Frame represents.
type Kind int

const (
	KindUnknown Kind = iota
	KindParseError
	KindConnect
	KindInfo
	KindPing
	KindPong
	KindOK
	KindErr
	KindSub
	KindUnsub
	KindPub
	KindHPub
	KindMsg
	KindHMsg
)

// ConnectParams is the JSON body of a CONNECT frame.
type ConnectParams struct {
	User *string `json:"user,omitempty"`
	Pass *string `json:"pass,omitempty"`
}

// InfoParams is the JSON body of an INFO frame.
type InfoParams struct {
	RequiereAuth bool `json:"requiere_auth"`
}

// Frame is one decoded protocol unit, either read from the wire by the
// Parser or about to be serialized for it.
type Frame struct {
	Kind Kind

	Subject    string
	Sid        string
	ReplyTo    string
	QueueGroup string
	MaxMsgs    *int

	Headers []byte
	Payload []byte

	Connect ConnectParams
	Info    InfoParams

	Text string // +OK / -ERR trailing text
}

// ErrMalformed is the parse failure NATS-style brokers call "Mensaje
// incorrecto": a structurally invalid control line.
var ErrMalformed = fmt.Errorf("malformed frame")

func marshalConnect(p ConnectParams) []byte {
	b, _ := json.Marshal(p)
	return b
}

func marshalInfo(p InfoParams) []byte {
	b, _ := json.Marshal(p)
	return b
}

// --- Serializers, one per outbound frame shape. All emit the trailing
// \r\n the parser expects; SerializeInfo additionally emits the source
// broker's extra blank line for bug-for-bug wire compatibility.

func SerializeInfo(requiereAuth bool) []byte {
	body := marshalInfo(InfoParams{RequiereAuth: requiereAuth})
	out := make([]byte, 0, len(body)+8)
	out = append(out, "INFO "...)
	out = append(out, body...)
	out = append(out, "\r\n\r\n"...)
	return out
}

func SerializeConnect(user, pass *string) []byte {
	body := marshalConnect(ConnectParams{User: user, Pass: pass})
	out := make([]byte, 0, len(body)+10)
	out = append(out, "CONNECT "...)
	out = append(out, body...)
	out = append(out, "\r\n"...)
	return out
}

func SerializeOK(tag string) []byte {
	if tag == "" {
		return []byte("+OK\r\n")
	}
	return []byte("+OK " + tag + "\r\n")
}

func SerializeErr(reason string) []byte {
	if reason == "" {
		return []byte("-ERR\r\n")
	}
	return []byte("-ERR " + reason + "\r\n")
}

func SerializePing() []byte { return []byte("PING\r\n") }
func SerializePong() []byte { return []byte("PONG\r\n") }

func SerializeSub(subject, queueGroup, sid string) []byte {
	if queueGroup == "" {
		return []byte(fmt.Sprintf("SUB %s %s\r\n", subject, sid))
	}
	return []byte(fmt.Sprintf("SUB %s %s %s\r\n", subject, queueGroup, sid))
}

func SerializeUnsub(sid string, maxMsgs *int) []byte {
	if maxMsgs == nil {
		return []byte(fmt.Sprintf("UNSUB %s\r\n", sid))
	}
	return []byte(fmt.Sprintf("UNSUB %s %d\r\n", sid, *maxMsgs))
}

func SerializePub(subject, replyTo string, payload []byte) []byte {
	var head string
	if replyTo == "" {
		head = fmt.Sprintf("PUB %s %d\r\n", subject, len(payload))
	} else {
		head = fmt.Sprintf("PUB %s %s %d\r\n", subject, replyTo, len(payload))
	}
	return appendBody([]byte(head), nil, payload)
}

func SerializeHPub(subject, replyTo string, headers, payload []byte) []byte {
	ntotal := len(headers) + len(payload)
	var head string
	if replyTo == "" {
		head = fmt.Sprintf("HPUB %s %d %d\r\n", subject, len(headers), ntotal)
	} else {
		head = fmt.Sprintf("HPUB %s %s %d %d\r\n", subject, replyTo, len(headers), ntotal)
	}
	return appendBody([]byte(head), headers, payload)
}

func SerializeMsg(subject, sid, replyTo string, payload []byte) []byte {
	var head string
	if replyTo == "" {
		head = fmt.Sprintf("MSG %s %s %d\r\n", subject, sid, len(payload))
	} else {
		head = fmt.Sprintf("MSG %s %s %s %d\r\n", subject, sid, replyTo, len(payload))
	}
	return appendBody([]byte(head), nil, payload)
}

func SerializeHMsg(subject, sid, replyTo string, headers, payload []byte) []byte {
	ntotal := len(headers) + len(payload)
	var head string
	if replyTo == "" {
		head = fmt.Sprintf("HMSG %s %s %d %d\r\n", subject, sid, len(headers), ntotal)
	} else {
		head = fmt.Sprintf("HMSG %s %s %s %d %d\r\n", subject, sid, replyTo, len(headers), ntotal)
	}
	return appendBody([]byte(head), headers, payload)
}

// appendBody lays out <head><headers>\r\n<payload>\r\n, omitting the
// interior separator when there are no headers (PUB/MSG framing).
func appendBody(head, headers, payload []byte) []byte {
	size := len(head) + len(payload) + 2
	if headers != nil {
		size += len(headers) + 2
	}
	out := make([]byte, 0, size)
	out = append(out, head...)
	if headers != nil {
		out = append(out, headers...)
		out = append(out, "\r\n"...)
	}
	out = append(out, payload...)
	out = append(out, "\r\n"...)
	return out
}
