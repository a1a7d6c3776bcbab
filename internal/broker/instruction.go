package broker

// Instruction is the typed message every Worker can receive on its
// instruction channel, whether sent by another worker, itself, or the
// broadcast step of its own tick.
type Instruction struct {
	Kind InstructionKind

	// Subscribe
	Subscription Subscription

	// Unsubscribe
	ConnectionID ConnectionID
	Sid          SubscriptionID

	// Publish / PublishExact / NewPublication
	Publication Publication

	// PublishExact only: the specific subscription that won queue-group
	// selection.
	Target Subscription
}

type InstructionKind int

const (
	InstructionSubscribe InstructionKind = iota
	InstructionUnsubscribe
	InstructionPublish
	InstructionPublishExact
	InstructionNewPublication
)
