package loadgen

import (
	"context"
	"fmt"
)

// EventBatch is a transport batch under construction.
type EventBatch interface {
	// TryAdd appends the event if the batch still has room for it and
	// reports whether it was accepted. A rejected event is not retained.
	TryAdd(event []byte) bool
	// Count is the number of events accepted so far.
	Count() int
}

// Transport is the stream-send primitive the publisher drives
// (e.g., Pub/Sub, Kafka, SQS).
type Transport interface {
	// CreateBatch returns an empty batch sized to the transport's limits.
	CreateBatch(ctx context.Context) (EventBatch, error)
	// Send delivers every event in the batch as one operation.
	Send(ctx context.Context, batch EventBatch) error
	// Destination names the stream being written to.
	Destination() string
}

// PayloadGenerator defines the interface for generating event payloads.
// Sequence numbers start at 1 and are unique within a run.
type PayloadGenerator interface {
	GeneratePayload(sequence int) ([]byte, error)
}

// SequencePayloadGenerator produces "<Prefix> <sequence>" payloads.
type SequencePayloadGenerator struct {
	Prefix string
}

func (g SequencePayloadGenerator) GeneratePayload(sequence int) ([]byte, error) {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "Event"
	}
	return []byte(fmt.Sprintf("%s %d", prefix, sequence)), nil
}
