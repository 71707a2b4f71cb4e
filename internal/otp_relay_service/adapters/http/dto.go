package http

import (
	"time"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

// CreateAllocationRequest asks for a number on a range for a requester.
// RequesterID is the Telegram chat id notifications are delivered to.
type CreateAllocationRequest struct {
	RequesterID string `json:"requester_id" validate:"required,numeric,max=32"`
	Range       string `json:"range" validate:"required,max=32"`
}

// AllocationResponse is the API view of an allocation.
type AllocationResponse struct {
	ID           string    `json:"id"`
	RequesterID  string    `json:"requester_id"`
	RangeSpec    string    `json:"range"`
	PhoneNumber  string    `json:"phone_number"`
	Country      string    `json:"country"`
	Status       string    `json:"status"`
	StatusReason string    `json:"status_reason,omitempty"`
	OTP          string    `json:"otp,omitempty"`
	AllocatedAt  time.Time `json:"allocated_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListAllocationsResponse wraps a requester's history.
type ListAllocationsResponse struct {
	Allocations []AllocationResponse `json:"allocations"`
	Total       int                  `json:"total"`
}

// GenericErrorResponse for API errors
type GenericErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAllocationResponse(a *domain.Allocation) AllocationResponse {
	return AllocationResponse{
		ID:           a.ID.String(),
		RequesterID:  a.RequesterID,
		RangeSpec:    a.RangeSpec,
		PhoneNumber:  a.PhoneNumber,
		Country:      a.Country,
		Status:       string(a.Status),
		StatusReason: a.StatusReason,
		OTP:          a.OTP,
		AllocatedAt:  a.AllocatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
