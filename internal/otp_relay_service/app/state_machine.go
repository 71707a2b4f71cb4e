package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/evidence"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/provider"
)

// Outcome is the result of evaluating evidence against one allocation.
type Outcome int

const (
	OutcomeNoMatch Outcome = iota // Record does not refer to the allocation
	OutcomePending                // Matched, but no OTP and no expiry signal
	OutcomeSuccess                // OTP committed
	OutcomeExpired                // Expiry committed
	OutcomeStale                  // Allocation was already terminal; nothing written
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeExpired:
		return "expired"
	case OutcomeStale:
		return "stale"
	}
	return "no_match"
}

// Terminal reports whether polling for the allocation should stop.
func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomeExpired || o == OutcomeStale
}

const sideEffectTimeout = 15 * time.Second

// StateMachine owns every transition of an allocation. Transitions are committed
// through AllocationRepository.Update so a terminal state is never overwritten.
type StateMachine struct {
	repo                 domain.AllocationRepository
	notifier             Notifier
	publisher            EventPublisher // Optional
	broadcastDestination string         // Optional
	logger               *slog.Logger
	now                  func() time.Time
}

func NewStateMachine(
	repo domain.AllocationRepository,
	notifier Notifier,
	publisher EventPublisher,
	broadcastDestination string,
	logger *slog.Logger,
) *StateMachine {
	return &StateMachine{
		repo:                 repo,
		notifier:             notifier,
		publisher:            publisher,
		broadcastDestination: broadcastDestination,
		logger:               logger.With("component", "state_machine"),
		now:                  func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate applies one provider record to a pending allocation. alloc may be a
// stale snapshot; the stored state decides whether a transition still applies.
func (m *StateMachine) Evaluate(ctx context.Context, alloc *domain.Allocation, record provider.Record) (Outcome, error) {
	finding := evidence.Inspect(record, alloc.Fingerprints)
	if !finding.Matched {
		return OutcomeNoMatch, nil
	}

	logger := m.logger.With("allocation_id", alloc.ID, "requester_id", alloc.RequesterID)
	logger.InfoContext(ctx, "Matched provider record",
		"provider_status", finding.ProviderStatus,
		"has_otp", finding.OTP != "",
		"message_source", finding.Message.Source.String(),
	)

	switch {
	case finding.OTP != "" && alloc.OTP == "":
		updated, err := m.commit(ctx, alloc.ID, func(a *domain.Allocation) error {
			return a.MarkSuccess(finding.OTP, m.now())
		})
		if err != nil {
			return m.commitFailure(ctx, logger, err)
		}
		logger.InfoContext(ctx, "OTP received", "phone_number", updated.PhoneNumber)
		m.afterTransition(ctx, updated, domain.NotificationOTPReceived, finding.MessageText(), true)
		return OutcomeSuccess, nil

	case finding.Expired:
		updated, err := m.commit(ctx, alloc.ID, func(a *domain.Allocation) error {
			return a.MarkExpired(domain.ReasonProviderExpired, m.now())
		})
		if err != nil {
			return m.commitFailure(ctx, logger, err)
		}
		logger.InfoContext(ctx, "Provider reported number expired", "phone_number", updated.PhoneNumber)
		m.afterTransition(ctx, updated, domain.NotificationExpired, finding.MessageText(), false)
		return OutcomeExpired, nil
	}
	return OutcomePending, nil
}

// Cancel forces a pending allocation to expired on behalf of its requester and
// notifies the requester. Returns domain.ErrAllocationTerminal if it already ended.
func (m *StateMachine) Cancel(ctx context.Context, id uuid.UUID) (*domain.Allocation, error) {
	updated, err := m.commit(ctx, id, func(a *domain.Allocation) error {
		return a.MarkExpired(domain.ReasonCancelled, m.now())
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "Allocation cancelled", "allocation_id", id, "requester_id", updated.RequesterID)
	m.afterTransition(ctx, updated, domain.NotificationCancelled, "", false)
	return updated, nil
}

// Retire forces a pending allocation to expired without notifying anyone.
func (m *StateMachine) Retire(ctx context.Context, id uuid.UUID, reason string) (*domain.Allocation, error) {
	updated, err := m.commit(ctx, id, func(a *domain.Allocation) error {
		return a.MarkExpired(reason, m.now())
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "Allocation retired", "allocation_id", id, "reason", reason)
	m.publish(ctx, updated)
	return updated, nil
}

func (m *StateMachine) commit(ctx context.Context, id uuid.UUID, mutate func(*domain.Allocation) error) (*domain.Allocation, error) {
	updated, err := m.repo.Update(ctx, id, mutate)
	if err != nil {
		return nil, err
	}
	transitionsCounter.WithLabelValues(string(updated.Status), updated.StatusReason).Inc()
	return updated, nil
}

func (m *StateMachine) commitFailure(ctx context.Context, logger *slog.Logger, err error) (Outcome, error) {
	if errors.Is(err, domain.ErrAllocationTerminal) {
		logger.InfoContext(ctx, "Allocation went terminal during the pass; evidence ignored")
		return OutcomeStale, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		logger.WarnContext(ctx, "Allocation disappeared from the store")
		return OutcomeStale, nil
	}
	logger.ErrorContext(ctx, "Failed to commit transition", "error", err)
	return OutcomePending, fmt.Errorf("commit transition: %w", err)
}

// afterTransition runs the side effects of a committed transition. Each one is
// attempted regardless of the others and failures are only logged.
func (m *StateMachine) afterTransition(ctx context.Context, alloc *domain.Allocation, kind domain.NotificationKind, messageText string, broadcast bool) {
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	at := alloc.UpdatedAt
	requester := domain.NewNotification(kind, alloc, alloc.RequesterID, at)
	requester.MessageText = messageText
	m.notify(sideCtx, requester, "requester")

	if broadcast && m.broadcastDestination != "" {
		b := domain.NewNotification(kind, alloc, m.broadcastDestination, at)
		b.MessageText = messageText
		b.Broadcast = true
		m.notify(sideCtx, b, "broadcast")
	}

	m.publish(sideCtx, alloc)
}

func (m *StateMachine) notify(ctx context.Context, n domain.Notification, target string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		notificationsCounter.WithLabelValues(target, string(n.Kind), "failed").Inc()
		m.logger.WarnContext(ctx, "Failed to deliver notification",
			"error", err, "target", target, "destination", n.Destination, "allocation_id", n.AllocationID)
		return
	}
	notificationsCounter.WithLabelValues(target, string(n.Kind), "sent").Inc()
}

func (m *StateMachine) publish(ctx context.Context, alloc *domain.Allocation) {
	if m.publisher == nil {
		return
	}
	event := domain.NewAllocationEvent(alloc)
	data, err := json.Marshal(event)
	if err != nil {
		eventsPublishedCounter.WithLabelValues("error").Inc()
		m.logger.ErrorContext(ctx, "Failed to marshal allocation event", "error", err, "allocation_id", alloc.ID)
		return
	}
	if err := m.publisher.Publish(ctx, event.Subject(), data); err != nil {
		eventsPublishedCounter.WithLabelValues("error").Inc()
		m.logger.WarnContext(ctx, "Failed to publish allocation event", "error", err, "subject", event.Subject(), "allocation_id", alloc.ID)
		return
	}
	eventsPublishedCounter.WithLabelValues("ok").Inc()
}
