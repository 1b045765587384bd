package messagepipeline_test

import (
	"context"
	"sync"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/eventhub-processor/pkg/types"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
//  Test Helpers
// =============================================================================

// setupTestPubsub starts a pstest server with one topic and one
// subscription and returns client options pointing at it.
func setupTestPubsub(t *testing.T, projectID, topicID, subID string) []option.ClientOption {
	t.Helper()
	_, opts := setupTestPubsubServer(t, projectID, topicID, subID)
	return opts
}

// setupTestPubsubServer is setupTestPubsub that also hands back the server
// so tests can inspect deliveries and acks.
func setupTestPubsubServer(t *testing.T, projectID, topicID, subID string) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	opts := []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		option.WithoutAuthentication(),
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, client.Close())
		require.NoError(t, srv.Close())
	})
	return srv, opts
}

// --- MockMessageConsumer ---

// MockMessageConsumer feeds messages pushed with Push to whoever reads
// Messages(). Stop closes the channel like a real consumer does.
type MockMessageConsumer struct {
	msgChan  chan types.ConsumedMessage
	doneChan chan struct{}
	stopOnce sync.Once
	startErr error
}

func NewMockMessageConsumer(bufferSize int) *MockMessageConsumer {
	return &MockMessageConsumer{
		msgChan:  make(chan types.ConsumedMessage, bufferSize),
		doneChan: make(chan struct{}),
	}
}

func (m *MockMessageConsumer) Messages() <-chan types.ConsumedMessage { return m.msgChan }

// Start closes the channel once ctx is cancelled, the way Receive returns
// when its context ends.
func (m *MockMessageConsumer) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()
	return nil
}

func (m *MockMessageConsumer) Stop() error {
	m.stopOnce.Do(func() {
		close(m.msgChan)
		close(m.doneChan)
	})
	return nil
}

func (m *MockMessageConsumer) Done() <-chan struct{} { return m.doneChan }

func (m *MockMessageConsumer) Push(msg types.ConsumedMessage) { m.msgChan <- msg }

// --- recordingHandler ---

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (h *recordingHandler) Handle(_ context.Context, msgs []types.ConsumedMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	batch := make([]string, len(msgs))
	for i, m := range msgs {
		batch[i] = string(m.Payload)
	}
	h.batches = append(h.batches, batch)
	return h.err
}

func (h *recordingHandler) Batches() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]string, len(h.batches))
	copy(out, h.batches)
	return out
}
