package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/evidence"
)

// AllocationStatus represents the lifecycle state of an allocation.
type AllocationStatus string

const (
	StatusPending AllocationStatus = "pending"
	StatusSuccess AllocationStatus = "success" // OTP received, terminal
	StatusExpired AllocationStatus = "expired" // Provider expiry or cancellation, terminal
)

// IsTerminal reports whether no further transition is allowed.
func (s AllocationStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusExpired
}

// Reasons recorded alongside a terminal status.
const (
	ReasonOTPReceived     = "otp_received"
	ReasonProviderExpired = "provider_expired"
	ReasonCancelled       = "cancelled"
	ReasonReplaced        = "replaced"
)

// UnknownCountry is shown when the provider does not report a country.
const UnknownCountry = "Unknown"

// Allocation binds a requester to one provider-issued number and its OTP wait.
type Allocation struct {
	ID           uuid.UUID        `json:"id"`
	RequesterID  string           `json:"requester_id"`
	RangeSpec    string           `json:"range_spec"`
	PhoneNumber  string           `json:"phone_number"` // Verbatim from the provider
	Digits       string           `json:"digits"`
	Fingerprints []string         `json:"fingerprints"`
	Country      string           `json:"country"`
	AllocatedAt  time.Time        `json:"allocated_at"`
	Status       AllocationStatus `json:"status"`
	OTP          string           `json:"otp,omitempty"`
	StatusReason string           `json:"status_reason,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewAllocation creates a pending allocation. The number must contain at least one digit.
func NewAllocation(
	id uuid.UUID,
	requesterID string,
	rangeSpec string,
	phoneNumber string,
	country string,
	allocatedAt time.Time,
) (*Allocation, error) {
	digits := evidence.DigitsOnly(phoneNumber)
	if digits == "" {
		return nil, ErrNoUsableNumber
	}
	if country == "" {
		country = UnknownCountry
	}
	allocatedAt = allocatedAt.UTC()
	return &Allocation{
		ID:           id,
		RequesterID:  requesterID,
		RangeSpec:    rangeSpec,
		PhoneNumber:  phoneNumber,
		Digits:       digits,
		Fingerprints: evidence.TrailingFingerprints(digits),
		Country:      country,
		AllocatedAt:  allocatedAt,
		Status:       StatusPending,
		UpdatedAt:    allocatedAt,
	}, nil
}

// DeriveFingerprints recomputes Fingerprints from Digits. Stores call it after loading a row.
func (a *Allocation) DeriveFingerprints() {
	a.Fingerprints = evidence.TrailingFingerprints(a.Digits)
}

// MarkSuccess records the OTP and moves the allocation to success.
func (a *Allocation) MarkSuccess(otp string, at time.Time) error {
	if a.Status.IsTerminal() {
		return ErrAllocationTerminal
	}
	a.Status = StatusSuccess
	a.OTP = otp
	a.StatusReason = ReasonOTPReceived
	a.UpdatedAt = at.UTC()
	return nil
}

// MarkExpired moves the allocation to expired with the given reason.
func (a *Allocation) MarkExpired(reason string, at time.Time) error {
	if a.Status.IsTerminal() {
		return ErrAllocationTerminal
	}
	a.Status = StatusExpired
	a.StatusReason = reason
	a.UpdatedAt = at.UTC()
	return nil
}

// Clone returns a deep copy.
func (a *Allocation) Clone() *Allocation {
	c := *a
	c.Fingerprints = append([]string(nil), a.Fingerprints...)
	return &c
}
