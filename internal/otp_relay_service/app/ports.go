package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

// Notifier delivers one notification to its destination.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// EventPublisher publishes lifecycle events. *messagebroker.NATSClient satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PollLease guards a poll pass so only one replica polls an allocation at a time.
type PollLease interface {
	Acquire(ctx context.Context, allocationID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, allocationID uuid.UUID) error
}

// LocalLease always grants; used when the service runs as a single replica.
type LocalLease struct{}

func (LocalLease) Acquire(context.Context, uuid.UUID, time.Duration) (bool, error) { return true, nil }

func (LocalLease) Release(context.Context, uuid.UUID) error { return nil }
