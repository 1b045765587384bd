package types

import (
	"time"
)

// ConsumedMessage is a single message as delivered by a stream consumer.
type ConsumedMessage struct {
	// ID is the unique identifier for the message from the source broker.
	ID string
	// Payload is the raw byte content of the message.
	Payload []byte
	// PublishTime is the timestamp when the message was originally published.
	PublishTime time.Time
	// Attributes carries any broker-level metadata sent with the message.
	Attributes map[string]string
	// Ack is a function to call to acknowledge that the message has been
	// successfully processed.
	Ack func()
	// Nack is a function to call to signal that processing has failed and the
	// message should be redelivered.
	Nack func()
}
