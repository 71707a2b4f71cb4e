package provider

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Record is one opaque inbox entry as decoded from the provider's JSON.
type Record = map[string]any

// AllocationResult is the outcome of an allocation request.
type AllocationResult struct {
	Succeeded   bool
	PhoneNumber string
	Country     string
	RawError    string // Short rendering of the provider response when Succeeded is false
}

// InboxQuery selects one page of the provider inbox.
type InboxQuery struct {
	Date   string // YYYY-MM-DD
	Page   int
	Status string // Empty means unfiltered
}

// NumberProvider allocates temporary numbers and exposes their inbox.
type NumberProvider interface {
	Allocate(ctx context.Context, rangeSpec string) (*AllocationResult, error)
	FetchInbox(ctx context.Context, query InboxQuery) ([]Record, error)
	GetName() string
}

// APIError is returned when the provider answers with a non-success HTTP status.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: provider returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: provider returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

const maxRenderedBody = 200

// shortBody keeps error renderings readable in chat cards and logs.
// The cut lands on a rune boundary so the result stays valid UTF-8.
func shortBody(b []byte) string {
	if len(b) <= maxRenderedBody {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	cut := maxRenderedBody
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return strings.ToValidUTF8(string(b[:cut]), "\uFFFD") + "..."
}
