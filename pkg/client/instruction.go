package client

// instruction is the union of requests the public API sends to the
// background loop, grounded in instruccion.rs's Instruccion enum.
type instruction struct {
	kind instructionKind

	subject    string
	sid        string
	queueGroup string
	deliver    chan Message

	headers []byte
	payload []byte
	replyTo string
}

type instructionKind int

const (
	instrSubscribe instructionKind = iota
	instrUnsubscribe
	instrPublish
	instrDisconnect
)
