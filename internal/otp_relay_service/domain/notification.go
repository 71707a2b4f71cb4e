package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind selects the card a notifier renders.
type NotificationKind string

const (
	NotificationOTPReceived NotificationKind = "otp_received"
	NotificationExpired     NotificationKind = "expired"
	NotificationCancelled   NotificationKind = "cancelled"
)

// Notification is one outbound message about an allocation.
type Notification struct {
	Kind         NotificationKind
	Destination  string // Requester id, or the broadcast target
	Broadcast    bool
	AllocationID uuid.UUID
	PhoneNumber  string
	Country      string
	RangeSpec    string
	OTP          string
	MessageText  string
	OccurredAt   time.Time
}

// NewNotification fills the allocation fields of a notification.
func NewNotification(kind NotificationKind, alloc *Allocation, destination string, at time.Time) Notification {
	return Notification{
		Kind:         kind,
		Destination:  destination,
		AllocationID: alloc.ID,
		PhoneNumber:  alloc.PhoneNumber,
		Country:      alloc.Country,
		RangeSpec:    alloc.RangeSpec,
		OTP:          alloc.OTP,
		OccurredAt:   at,
	}
}

// AllocationEvent is published on every committed terminal transition.
type AllocationEvent struct {
	AllocationID uuid.UUID        `json:"allocation_id"`
	RequesterID  string           `json:"requester_id"`
	PhoneNumber  string           `json:"phone_number"`
	Status       AllocationStatus `json:"status"`
	Reason       string           `json:"reason,omitempty"`
	OTP          string           `json:"otp,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// AllocationEventSubjectPrefix is the NATS subject prefix for lifecycle events.
const AllocationEventSubjectPrefix = "otp.allocation."

// NewAllocationEvent snapshots a terminal allocation.
func NewAllocationEvent(alloc *Allocation) AllocationEvent {
	return AllocationEvent{
		AllocationID: alloc.ID,
		RequesterID:  alloc.RequesterID,
		PhoneNumber:  alloc.PhoneNumber,
		Status:       alloc.Status,
		Reason:       alloc.StatusReason,
		OTP:          alloc.OTP,
		OccurredAt:   alloc.UpdatedAt,
	}
}

// Subject is the subject the event is published on.
func (e AllocationEvent) Subject() string {
	return AllocationEventSubjectPrefix + string(e.Status)
}
