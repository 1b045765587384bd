package messagepipeline_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/illmade-knight/eventhub-processor/pkg/messagepipeline"
	"github.com/illmade-knight/eventhub-processor/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrigger(t *testing.T, cfg messagepipeline.BatchTriggerConfig) (*messagepipeline.BatchTrigger, *MockMessageConsumer, *recordingHandler) {
	t.Helper()
	consumer := NewMockMessageConsumer(100)
	handler := &recordingHandler{}
	trigger, err := messagepipeline.NewBatchTrigger(cfg, consumer, handler.Handle, zerolog.Nop())
	require.NoError(t, err)
	return trigger, consumer, handler
}

func msg(payload string) types.ConsumedMessage {
	return types.ConsumedMessage{ID: payload, Payload: []byte(payload)}
}

func TestBatchTrigger_BatchSizeTrigger(t *testing.T) {
	trigger, consumer, handler := newTestTrigger(t, messagepipeline.BatchTriggerConfig{
		BatchSize:    3,
		FlushTimeout: time.Hour,
	})
	require.NoError(t, trigger.Start())
	defer trigger.Stop()

	for i := 0; i < 3; i++ {
		consumer.Push(msg(fmt.Sprintf("m%d", i)))
	}

	require.Eventually(t, func() bool { return len(handler.Batches()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"m0", "m1", "m2"}, handler.Batches()[0])
}

func TestBatchTrigger_FlushTimeoutTrigger(t *testing.T) {
	trigger, consumer, handler := newTestTrigger(t, messagepipeline.BatchTriggerConfig{
		BatchSize:    10,
		FlushTimeout: 50 * time.Millisecond,
	})
	consumer.Push(msg("a"))
	consumer.Push(msg("b"))
	require.NoError(t, trigger.Start())
	defer trigger.Stop()

	require.Eventually(t, func() bool { return len(handler.Batches()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, handler.Batches()[0])
}

func TestBatchTrigger_StopFlushesFinalBatch(t *testing.T) {
	trigger, consumer, handler := newTestTrigger(t, messagepipeline.BatchTriggerConfig{
		BatchSize:    10,
		FlushTimeout: time.Hour,
	})
	require.NoError(t, trigger.Start())

	for i := 0; i < 4; i++ {
		consumer.Push(msg(fmt.Sprintf("m%d", i)))
	}
	trigger.Stop()

	batches := handler.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 4)
}

func TestBatchTrigger_HandlerErrorDoesNotStopTrigger(t *testing.T) {
	consumer := NewMockMessageConsumer(10)
	handler := &recordingHandler{err: errors.New("store down")}
	trigger, err := messagepipeline.NewBatchTrigger(messagepipeline.BatchTriggerConfig{
		BatchSize:    1,
		FlushTimeout: time.Hour,
	}, consumer, handler.Handle, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, trigger.Start())

	consumer.Push(msg("x"))
	consumer.Push(msg("y"))
	trigger.Stop()

	assert.Len(t, handler.Batches(), 2)
}

func TestBatchTrigger_StartFailure(t *testing.T) {
	consumer := NewMockMessageConsumer(1)
	consumer.startErr = errors.New("subscription missing")
	handler := &recordingHandler{}
	trigger, err := messagepipeline.NewBatchTrigger(messagepipeline.BatchTriggerConfig{}, consumer, handler.Handle, zerolog.Nop())
	require.NoError(t, err)

	err = trigger.Start()
	assert.ErrorIs(t, err, consumer.startErr)
}

func TestNewBatchTrigger_Validation(t *testing.T) {
	handler := &recordingHandler{}
	_, err := messagepipeline.NewBatchTrigger(messagepipeline.BatchTriggerConfig{}, nil, handler.Handle, zerolog.Nop())
	assert.Error(t, err)
	_, err = messagepipeline.NewBatchTrigger(messagepipeline.BatchTriggerConfig{}, NewMockMessageConsumer(1), nil, zerolog.Nop())
	assert.Error(t, err)
}
