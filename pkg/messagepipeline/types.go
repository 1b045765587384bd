package messagepipeline

import (
	"context"

	"github.com/illmade-knight/eventhub-processor/pkg/types"
)

// ====================================================================================
// This file defines the interfaces that connect a stream consumer to the
// batch handler that persists what it delivers.
// ====================================================================================

// MessageConsumer defines the interface for a message source (e.g., Pub/Sub).
// It is responsible for fetching raw messages from the broker.
type MessageConsumer interface {
	// Messages returns a read-only channel from which raw messages can be consumed.
	// The channel is closed once the consumer has stopped.
	Messages() <-chan types.ConsumedMessage
	// Start initiates the consumption of messages.
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption.
	Stop() error
	// Done returns a channel that is closed when the consumer has fully stopped.
	Done() <-chan struct{}
}

// BatchHandler processes one trigger batch. It owns acking and nacking the
// messages it is given; a returned error is only logged by the caller.
type BatchHandler func(ctx context.Context, msgs []types.ConsumedMessage) error
