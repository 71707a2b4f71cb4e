package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/provider"
)

// --- Mocks ---

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type MockPollLease struct {
	mock.Mock
}

func (m *MockPollLease) Acquire(ctx context.Context, id uuid.UUID, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, id, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockPollLease) Release(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// fakeProvider serves allocations and inbox pages from test-controlled functions.
type fakeProvider struct {
	mu       sync.Mutex
	allocate func(rangeSpec string) (*provider.AllocationResult, error)
	inbox    func(q provider.InboxQuery) ([]provider.Record, error)
	queries  []provider.InboxQuery
}

func (f *fakeProvider) Allocate(ctx context.Context, rangeSpec string) (*provider.AllocationResult, error) {
	f.mu.Lock()
	fn := f.allocate
	f.mu.Unlock()
	if fn == nil {
		return &provider.AllocationResult{Succeeded: true, PhoneNumber: "261347435123", Country: "MG"}, nil
	}
	return fn(rangeSpec)
}

func (f *fakeProvider) FetchInbox(ctx context.Context, q provider.InboxQuery) ([]provider.Record, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	fn := f.inbox
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(q)
}

func (f *fakeProvider) GetName() string { return "fake" }

func (f *fakeProvider) setInbox(fn func(q provider.InboxQuery) ([]provider.Record, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = fn
}

func (f *fakeProvider) recordedQueries() []provider.InboxQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.InboxQuery(nil), f.queries...)
}

// pageOne returns records on page 1 of every query and nothing after it.
func pageOne(records ...provider.Record) func(q provider.InboxQuery) ([]provider.Record, error) {
	return func(q provider.InboxQuery) ([]provider.Record, error) {
		if q.Page == 1 {
			return records, nil
		}
		return nil, nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func notificationOf(kind domain.NotificationKind, destination string, broadcast bool) interface{} {
	return mock.MatchedBy(func(n domain.Notification) bool {
		return n.Kind == kind && n.Destination == destination && n.Broadcast == broadcast
	})
}
