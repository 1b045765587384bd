package messagepipeline_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/eventhub-processor/pkg/messagepipeline"
	"github.com/illmade-knight/eventhub-processor/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGooglePubSubConsumer_ReceivesMessages(t *testing.T) {
	t.Setenv("PUBSUB_EMULATOR_HOST", "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const projectID, topicID, subID = "test-project", "eventhub-topic", "eventhub-sub"
	opts := setupTestPubsub(t, projectID, topicID, subID)

	consumer, err := messagepipeline.NewGooglePubSubConsumer(ctx, &messagepipeline.GooglePubSubConsumerConfig{
		ProjectID:      projectID,
		SubscriptionID: subID,
	}, zerolog.Nop(), opts...)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))

	pubClient, err := pubsub.NewClient(ctx, projectID, opts...)
	require.NoError(t, err)
	defer pubClient.Close()
	topic := pubClient.Topic(topicID)
	defer topic.Stop()

	res := topic.Publish(ctx, &pubsub.Message{Data: []byte("Event 0"), Attributes: map[string]string{"batch_id": "b1"}})
	_, err = res.Get(ctx)
	require.NoError(t, err)

	var received types.ConsumedMessage
	select {
	case received = <-consumer.Messages():
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
	assert.Equal(t, "Event 0", string(received.Payload))
	assert.Equal(t, "b1", received.Attributes["batch_id"])
	require.NotNil(t, received.Ack)
	received.Ack()

	require.NoError(t, consumer.Stop())
	select {
	case <-consumer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	_, open := <-consumer.Messages()
	assert.False(t, open, "messages channel should be closed after Stop")
}

func TestGooglePubSubConsumer_MissingSubscription(t *testing.T) {
	t.Setenv("PUBSUB_EMULATOR_HOST", "")
	ctx := context.Background()
	opts := setupTestPubsub(t, "test-project", "some-topic", "some-sub")

	_, err := messagepipeline.NewGooglePubSubConsumer(ctx, &messagepipeline.GooglePubSubConsumerConfig{
		ProjectID:      "test-project",
		SubscriptionID: "does-not-exist",
	}, zerolog.Nop(), opts...)
	assert.ErrorContains(t, err, "does not exist")
}

func TestBatchTrigger_StopAcksFinalPartialBatch(t *testing.T) {
	t.Setenv("PUBSUB_EMULATOR_HOST", "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const projectID, topicID, subID = "test-project", "eventhub-topic", "eventhub-sub"
	srv, opts := setupTestPubsubServer(t, projectID, topicID, subID)

	consumer, err := messagepipeline.NewGooglePubSubConsumer(ctx, &messagepipeline.GooglePubSubConsumerConfig{
		ProjectID:      projectID,
		SubscriptionID: subID,
	}, zerolog.Nop(), opts...)
	require.NoError(t, err)

	var handled atomic.Int64
	handler := func(_ context.Context, msgs []types.ConsumedMessage) error {
		for _, m := range msgs {
			m.Ack()
		}
		handled.Add(int64(len(msgs)))
		return nil
	}
	// The batch can never fill and never flushes on its own, so only Stop
	// can hand it to the handler.
	trigger, err := messagepipeline.NewBatchTrigger(messagepipeline.BatchTriggerConfig{
		BatchSize:    10,
		FlushTimeout: time.Hour,
	}, consumer, handler, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, trigger.Start())

	pubClient, err := pubsub.NewClient(ctx, projectID, opts...)
	require.NoError(t, err)
	defer pubClient.Close()
	topic := pubClient.Topic(topicID)
	defer topic.Stop()

	for i := 1; i <= 3; i++ {
		_, err := topic.Publish(ctx, &pubsub.Message{Data: []byte(fmt.Sprintf("Event %d", i))}).Get(ctx)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		delivered := 0
		for _, m := range srv.Messages() {
			if m.Deliveries > 0 {
				delivered++
			}
		}
		return delivered == 3
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	stopped := make(chan struct{})
	start := time.Now()
	go func() {
		trigger.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("trigger did not stop")
	}
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.EqualValues(t, 3, handled.Load())

	require.Eventually(t, func() bool {
		for _, m := range srv.Messages() {
			if m.Acks == 0 {
				return false
			}
		}
		return len(srv.Messages()) == 3
	}, 2*time.Second, 20*time.Millisecond, "every handled message should be acked at the server")
}
