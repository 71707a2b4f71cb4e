package telegram

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/app"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

func TestCards_EscapeProviderText(t *testing.T) {
	n := domain.Notification{
		OTP:         "123456",
		PhoneNumber: "261347435123",
		Country:     "<MG>",
		MessageText: `<script>alert("x")</script> & more`,
	}
	card := otpCard(n)
	assert.NotContains(t, card, "<script>")
	assert.Contains(t, card, "&lt;script&gt;")
	assert.Contains(t, card, "&amp; more")
	assert.Contains(t, card, "&lt;MG&gt;")
}

func TestAllocationFailedCard(t *testing.T) {
	assert.Contains(t, allocationFailedCard(&app.AllocationError{Range: "2613XXX", Detail: "Range <closed>"}),
		"Range: 2613XXX\nRange &lt;closed&gt;")
	assert.Contains(t, allocationFailedCard(fmt.Errorf("plain failure")), "plain failure")
}

func TestHistoryCard(t *testing.T) {
	assert.Contains(t, historyCard(nil, time.UTC), "No history available yet.")

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var allocs []*domain.Allocation
	for i := 0; i < maxHistory+3; i++ {
		alloc, err := domain.NewAllocation(uuid.New(), "42", "2613XXX", fmt.Sprintf("2613000%02d", i), "MG", base.Add(time.Duration(i)*time.Minute))
		assert.NoError(t, err)
		allocs = append(allocs, alloc)
	}
	assert.NoError(t, allocs[0].MarkSuccess("4321", base))

	card := historyCard(allocs, time.UTC)
	assert.Equal(t, maxHistory, strings.Count(card, "📅 Allocated:"))
	assert.Contains(t, card, "… 3 older numbers not shown")
	assert.Contains(t, card, "🔐 OTP: <code>4321</code>")
	assert.Contains(t, card, "🧾 Status: success")
}
