package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

// SchedulerConfig holds the poll cadence.
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"POLL_INTERVAL"`
	LeaseTTL time.Duration `mapstructure:"POLL_LEASE_TTL"`
}

// passRunner is the part of Poller the scheduler drives.
type passRunner interface {
	RunPass(ctx context.Context, alloc *domain.Allocation) (Outcome, error)
}

type activation struct {
	cancel    context.CancelFunc
	cancelled bool
}

// Scheduler runs one poll activity per pending allocation. An activity re-reads the
// allocation before every pass and exits once it is terminal, so cancellation is a
// store state, not a signal the activity must receive.
type Scheduler struct {
	repo   domain.AllocationRepository
	poller passRunner
	lease  PollLease
	logger *slog.Logger
	config SchedulerConfig

	mu      sync.Mutex
	baseCtx context.Context
	active  map[uuid.UUID]*activation
	wg      sync.WaitGroup
}

func NewScheduler(repo domain.AllocationRepository, poller passRunner, lease PollLease, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if lease == nil {
		lease = LocalLease{}
	}
	return &Scheduler{
		repo:    repo,
		poller:  poller,
		lease:   lease,
		logger:  logger.With("component", "scheduler"),
		config:  cfg,
		baseCtx: context.Background(),
		active:  make(map[uuid.UUID]*activation),
	}
}

// Start binds activities to ctx and resumes polling every pending allocation in the store.
// It returns the number of allocations resumed.
func (s *Scheduler) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	pending, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active allocations: %w", err)
	}
	resumed := 0
	for _, alloc := range pending {
		if s.Schedule(alloc.ID) {
			resumed++
		}
	}
	s.logger.InfoContext(ctx, "Resumed polling for pending allocations", "count", resumed)
	return resumed, nil
}

// Schedule starts a poll activity for id. It returns false if one is already running.
func (s *Scheduler) Schedule(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[id]; exists {
		s.logger.Debug("Poll activity already running", "allocation_id", id)
		return false
	}
	if s.baseCtx.Err() != nil {
		return false
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	act := &activation{cancel: cancel}
	s.active[id] = act
	activePollersGauge.Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(id, act)
		s.run(ctx, id)
	}()
	return true
}

// Deactivate stops the activity for id without waiting for an in-flight pass.
func (s *Scheduler) Deactivate(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	act, ok := s.active[id]
	if !ok || act.cancelled {
		return false
	}
	act.cancelled = true
	act.cancel()
	return true
}

// IsActive reports whether an activity for id is running and not deactivated.
func (s *Scheduler) IsActive(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.active[id]
	return ok && !act.cancelled
}

// ActiveCount returns the number of running activities, including ones still winding down.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Wait blocks until every activity has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) finish(id uuid.UUID, act *activation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	act.cancel()
	if s.active[id] == act {
		delete(s.active, id)
	}
	activePollersGauge.Dec()
}

func (s *Scheduler) run(ctx context.Context, id uuid.UUID) {
	logger := s.logger.With("allocation_id", id)
	logger.InfoContext(ctx, "Poll activity started")
	defer logger.InfoContext(ctx, "Poll activity stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if done := s.tick(ctx, logger, id); done {
			return
		}
		timer.Reset(s.config.Interval)
	}
}

// tick runs one pass and reports whether the activity should exit.
func (s *Scheduler) tick(ctx context.Context, logger *slog.Logger, id uuid.UUID) bool {
	alloc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "Allocation not found; stopping poll activity")
			return true
		}
		if ctx.Err() != nil {
			return true
		}
		logger.ErrorContext(ctx, "Failed to load allocation", "error", err)
		return false
	}
	if alloc.Status.IsTerminal() {
		return true
	}

	granted, err := s.lease.Acquire(ctx, id, s.config.LeaseTTL)
	switch {
	case err != nil:
		logger.WarnContext(ctx, "Poll lease unavailable; polling without it", "error", err)
	case !granted:
		pollPassesCounter.WithLabelValues("skipped").Inc()
		logger.DebugContext(ctx, "Another replica holds the poll lease")
		return false
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx), id); err != nil {
			logger.DebugContext(ctx, "Failed to release poll lease", "error", err)
		}
	}()

	outcome, err := s.poller.RunPass(ctx, alloc)
	if err != nil {
		logger.ErrorContext(ctx, "Poll pass failed", "error", err)
		return false
	}
	return outcome.Terminal()
}
