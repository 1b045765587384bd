package ingest_test

import (
	"context"
	"sync"

	"github.com/illmade-knight/eventhub-processor/pkg/ingest"
	"github.com/illmade-knight/eventhub-processor/pkg/types"
)

// ====================================================================================
// Test Mocks & Helpers
// ====================================================================================

// MockStore is an in-memory ingest.Store. InsertFn lets a test decide, per
// record, whether the write fails.
type MockStore struct {
	mu          sync.Mutex
	destination string
	records     []types.ProcessedRecord
	openCount   int
	closeCount  int
	OpenErr     error
	InsertFn    func(record *types.ProcessedRecord) error
}

func NewMockStore() *MockStore {
	return &MockStore{destination: "mock://ProcessedData"}
}

func (m *MockStore) Destination() string { return m.destination }

func (m *MockStore) Open(_ context.Context) (ingest.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.openCount++
	return &mockSession{store: m}, nil
}

func (m *MockStore) Records() []types.ProcessedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ProcessedRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *MockStore) Contents() []string {
	var contents []string
	for _, r := range m.Records() {
		contents = append(contents, r.MessageContent)
	}
	return contents
}

func (m *MockStore) Counts() (opened, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount, m.closeCount
}

type mockSession struct {
	store *MockStore
}

func (s *mockSession) Insert(_ context.Context, record *types.ProcessedRecord) error {
	s.store.mu.Lock()
	fn := s.store.InsertFn
	s.store.mu.Unlock()
	if fn != nil {
		if err := fn(record); err != nil {
			return err
		}
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.records = append(s.store.records, *record)
	return nil
}

func (s *mockSession) Close(_ context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.closeCount++
	return nil
}

// failOn returns an InsertFn that fails for the listed contents.
func failOn(err error, contents ...string) func(*types.ProcessedRecord) error {
	set := make(map[string]bool, len(contents))
	for _, c := range contents {
		set[c] = true
	}
	return func(r *types.ProcessedRecord) error {
		if set[r.MessageContent] {
			return err
		}
		return nil
	}
}

// namedStore is an unconfigured store that names its missing setting.
type namedStore struct {
	MockStore
	field, description string
}

func (s *namedStore) DestinationSetting() (string, string) { return s.field, s.description }
