package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/provider"
)

const inboxDateLayout = "2006-01-02"

// PollerConfig bounds a single poll pass.
type PollerConfig struct {
	MaxPages      int      `mapstructure:"POLL_MAX_PAGES"`
	StatusFilters []string `mapstructure:"POLL_STATUS_FILTERS"` // "" is the unfiltered query
}

// DefaultPollerConfig searches the first five pages unfiltered, then success-only.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{MaxPages: 5, StatusFilters: []string{"", "success"}}
}

// evaluator is the part of StateMachine a poll pass needs.
type evaluator interface {
	Evaluate(ctx context.Context, alloc *domain.Allocation, record provider.Record) (Outcome, error)
}

// Poller runs bounded searches of the provider inbox for one allocation.
type Poller struct {
	provider provider.NumberProvider
	machine  evaluator
	logger   *slog.Logger
	config   PollerConfig
	now      func() time.Time
}

func NewPoller(p provider.NumberProvider, machine evaluator, logger *slog.Logger, cfg PollerConfig) *Poller {
	def := DefaultPollerConfig()
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if len(cfg.StatusFilters) == 0 {
		cfg.StatusFilters = def.StatusFilters
	}
	return &Poller{
		provider: p,
		machine:  machine,
		logger:   logger.With("component", "poller"),
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CandidateDates returns the inbox partitions to search, in order: the allocation
// day, today, yesterday. All in UTC, duplicates removed.
func CandidateDates(allocatedAt, now time.Time) []string {
	now = now.UTC()
	raw := []string{
		allocatedAt.UTC().Format(inboxDateLayout),
		now.Format(inboxDateLayout),
		now.AddDate(0, 0, -1).Format(inboxDateLayout),
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, d := range raw {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// RunPass searches every candidate date, status filter and page for evidence about
// alloc and stops at the first terminal outcome. Inbox errors are logged and the
// search moves on; only a failure to persist a transition is returned.
func (p *Poller) RunPass(ctx context.Context, alloc *domain.Allocation) (Outcome, error) {
	start := time.Now()
	result := OutcomeNoMatch
	var passErr error
	defer func() {
		label := result.String()
		if passErr != nil {
			label = "error"
		}
		pollPassesCounter.WithLabelValues(label).Inc()
		pollPassDurationHist.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	logger := p.logger.With("allocation_id", alloc.ID)

	for _, date := range CandidateDates(alloc.AllocatedAt, p.now()) {
		for _, status := range p.config.StatusFilters {
			for page := 1; page <= p.config.MaxPages; page++ {
				if err := ctx.Err(); err != nil {
					return result, nil
				}

				records, err := p.provider.FetchInbox(ctx, provider.InboxQuery{Date: date, Page: page, Status: status})
				if err != nil {
					inboxErrorsCounter.Inc()
					logger.DebugContext(ctx, "Inbox query failed", "date", date, "page", page, "status_filter", status, "error", err)
					continue
				}
				if len(records) == 0 {
					break
				}

				for _, record := range records {
					outcome, err := p.machine.Evaluate(ctx, alloc, record)
					if err != nil {
						passErr = err
						return outcome, err
					}
					if outcome.Terminal() {
						result = outcome
						logger.InfoContext(ctx, "Poll pass ended with terminal outcome",
							"outcome", outcome.String(), "date", date, "page", page, "status_filter", status)
						return result, nil
					}
					if outcome == OutcomePending {
						result = OutcomePending
					}
				}
			}
		}
	}
	return result, nil
}
