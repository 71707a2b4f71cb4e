package domain

import (
	"context"

	"github.com/google/uuid"
)

// AllocationRepository defines the persistence boundary for allocations.
type AllocationRepository interface {
	Create(ctx context.Context, alloc *Allocation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Allocation, error)
	// ListByRequester returns every allocation of the requester, newest first.
	ListByRequester(ctx context.Context, requesterID string) ([]*Allocation, error)
	// ListActive returns all pending allocations, oldest first.
	ListActive(ctx context.Context) ([]*Allocation, error)
	// Update loads the allocation, applies mutate and persists the result as one
	// serialized read-modify-write. If mutate returns an error nothing is written
	// and the error is returned unchanged.
	Update(ctx context.Context, id uuid.UUID, mutate func(*Allocation) error) (*Allocation, error)
}
