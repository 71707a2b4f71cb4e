package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

type entry struct {
	mu    sync.Mutex
	alloc *domain.Allocation
}

// AllocationRepository keeps allocations in process memory. Each allocation has its
// own lock so updates to different allocations never wait on each other.
type AllocationRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

func NewAllocationRepository() *AllocationRepository {
	return &AllocationRepository{entries: make(map[uuid.UUID]*entry)}
}

func (r *AllocationRepository) Create(ctx context.Context, alloc *domain.Allocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[alloc.ID]; exists {
		return fmt.Errorf("allocation %s already exists", alloc.ID)
	}
	r.entries[alloc.ID] = &entry{alloc: alloc.Clone()}
	return nil
}

func (r *AllocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Allocation, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alloc.Clone(), nil
}

func (r *AllocationRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.Allocation, error) {
	out := r.filter(func(a *domain.Allocation) bool { return a.RequesterID == requesterID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].AllocatedAt.After(out[j].AllocatedAt) })
	return out, nil
}

func (r *AllocationRepository) ListActive(ctx context.Context) ([]*domain.Allocation, error) {
	out := r.filter(func(a *domain.Allocation) bool { return a.Status == domain.StatusPending })
	sort.SliceStable(out, func(i, j int) bool { return out[i].AllocatedAt.Before(out[j].AllocatedAt) })
	return out, nil
}

func (r *AllocationRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*domain.Allocation) error) (*domain.Allocation, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.alloc.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	e.alloc = working
	return working.Clone(), nil
}

func (r *AllocationRepository) lookup(id uuid.UUID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *AllocationRepository) filter(keep func(*domain.Allocation) bool) []*domain.Allocation {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*domain.Allocation, 0)
	for _, e := range entries {
		e.mu.Lock()
		if keep(e.alloc) {
			out = append(out, e.alloc.Clone())
		}
		e.mu.Unlock()
	}
	return out
}
