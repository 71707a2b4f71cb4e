package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/provider"
)

// AllocationError is a failed allocation attempt as shown to the requester.
type AllocationError struct {
	Range  string
	Detail string // Short rendering of the provider's answer
	Err    error
}

func (e *AllocationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("allocation for range %s failed: %v", e.Range, e.Err)
	}
	return fmt.Sprintf("allocation for range %s failed: %s", e.Range, e.Detail)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// pollRegistry is the part of Scheduler the service needs.
type pollRegistry interface {
	Schedule(id uuid.UUID) bool
	Deactivate(id uuid.UUID) bool
}

// canceller is the part of StateMachine the service needs.
type canceller interface {
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Allocation, error)
	Retire(ctx context.Context, id uuid.UUID, reason string) (*domain.Allocation, error)
}

// AllocationService is the entry point for requester actions.
type AllocationService struct {
	provider  provider.NumberProvider
	repo      domain.AllocationRepository
	machine   canceller
	scheduler pollRegistry
	logger    *slog.Logger
	newID     func() uuid.UUID
	now       func() time.Time
}

func NewAllocationService(
	p provider.NumberProvider,
	repo domain.AllocationRepository,
	machine canceller,
	scheduler pollRegistry,
	logger *slog.Logger,
) *AllocationService {
	return &AllocationService{
		provider:  p,
		repo:      repo,
		machine:   machine,
		scheduler: scheduler,
		logger:    logger.With("component", "allocation_service"),
		newID:     uuid.New,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Allocate requests a number for rawRange, persists it as pending and starts polling.
func (s *AllocationService) Allocate(ctx context.Context, requesterID, rawRange string) (*domain.Allocation, error) {
	rangeSpec, err := domain.NormalizeRange(rawRange)
	if err != nil {
		allocationsCounter.WithLabelValues("invalid_range").Inc()
		return nil, &AllocationError{Range: rawRange, Err: err}
	}

	res, err := s.provider.Allocate(ctx, rangeSpec)
	if err != nil {
		allocationsCounter.WithLabelValues("provider_error").Inc()
		s.logger.WarnContext(ctx, "Provider allocation failed", "requester_id", requesterID, "range", rangeSpec, "error", err)
		return nil, &AllocationError{Range: rangeSpec, Detail: err.Error(), Err: err}
	}
	if !res.Succeeded {
		allocationsCounter.WithLabelValues("rejected").Inc()
		return nil, &AllocationError{Range: rangeSpec, Detail: res.RawError, Err: domain.ErrAllocationRejected}
	}

	alloc, err := domain.NewAllocation(s.newID(), requesterID, rangeSpec, res.PhoneNumber, res.Country, s.now())
	if err != nil {
		allocationsCounter.WithLabelValues("rejected").Inc()
		return nil, &AllocationError{Range: rangeSpec, Detail: res.PhoneNumber, Err: err}
	}
	if err := s.repo.Create(ctx, alloc); err != nil {
		allocationsCounter.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("store allocation: %w", err)
	}
	allocationsCounter.WithLabelValues("created").Inc()

	s.scheduler.Schedule(alloc.ID)
	s.logger.InfoContext(ctx, "Allocation created",
		"allocation_id", alloc.ID, "requester_id", requesterID, "phone_number", alloc.PhoneNumber, "range", rangeSpec)
	return alloc, nil
}

// Cancel expires a pending allocation of the requester and stops its polling before
// returning. An empty requesterID skips the ownership check.
func (s *AllocationService) Cancel(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error) {
	if _, err := s.owned(ctx, requesterID, id); err != nil {
		return nil, err
	}
	alloc, err := s.machine.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.scheduler.Deactivate(id)
	return alloc, nil
}

// Replace allocates a new number on the range of allocation id and, once that
// succeeded, retires id if it is still pending.
func (s *AllocationService) Replace(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error) {
	old, err := s.owned(ctx, requesterID, id)
	if err != nil {
		return nil, err
	}
	fresh, err := s.Allocate(ctx, old.RequesterID, old.RangeSpec)
	if err != nil {
		return nil, err
	}
	if old.Status == domain.StatusPending {
		if _, err := s.machine.Retire(ctx, old.ID, domain.ReasonReplaced); err != nil && !errors.Is(err, domain.ErrAllocationTerminal) {
			s.logger.WarnContext(ctx, "Failed to retire replaced allocation", "allocation_id", old.ID, "error", err)
		}
		s.scheduler.Deactivate(old.ID)
	}
	return fresh, nil
}

// Get returns one allocation. An empty requesterID skips the ownership check.
func (s *AllocationService) Get(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error) {
	return s.owned(ctx, requesterID, id)
}

// History returns every allocation of the requester, newest first.
func (s *AllocationService) History(ctx context.Context, requesterID string) ([]*domain.Allocation, error) {
	return s.repo.ListByRequester(ctx, requesterID)
}

// Active returns the pending allocations of the requester, newest first.
func (s *AllocationService) Active(ctx context.Context, requesterID string) ([]*domain.Allocation, error) {
	all, err := s.repo.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	active := make([]*domain.Allocation, 0, len(all))
	for _, a := range all {
		if a.Status == domain.StatusPending {
			active = append(active, a)
		}
	}
	return active, nil
}

// Latest returns the newest allocation of the requester.
func (s *AllocationService) Latest(ctx context.Context, requesterID string) (*domain.Allocation, error) {
	all, err := s.repo.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, domain.ErrNotFound
	}
	return all[0], nil
}

func (s *AllocationService) owned(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error) {
	alloc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && alloc.RequesterID != requesterID {
		return nil, domain.ErrNotFound
	}
	return alloc, nil
}
