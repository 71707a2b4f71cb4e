package telegram

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/app"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

const cardSeparator = "━━━━━━━━━━━━━━━━━━━━━━━━━━"

const (
	clockLayout   = "03:04 PM"
	historyLayout = "2006-01-02 15:04:05"
	maxHistory    = 10

	// Telegram rejects message texts longer than this many characters.
	maxMessageRunes = 4096
	truncationMark  = "…"
)

const (
	msgWelcome = "👋 Welcome!\n\n" + msgUsage
	msgUsage   = "Use /range 261347435XXX (or a full number) to get a temporary number.\n" +
		"/status shows your latest number, /active your waiting numbers, /history everything so far."
	msgWaiting         = "Getting number, please wait..."
	msgChanging        = "🔁 Requesting a new number, please wait..."
	msgNoAllocation    = "No allocation yet. Use /range to get a number."
	msgNoActive        = "No number is waiting for an OTP. Use /range to get one."
	msgNothingToCancel = "No matching active number to cancel."
	msgCancelled       = "Number cancelled."
	msgStaleButton     = "This button is no longer valid."
	msgNoOTPYet        = "No OTP received yet."
	msgCopyConfirm     = "✅ Copied text sent. Tap and hold to copy."
	msgBack            = "⬅ Back to Menu\nUse /range to allocate or /status to view current number."
)

var statusLabels = map[domain.AllocationStatus]string{
	domain.StatusPending: "⏳ Waiting for OTP…",
	domain.StatusSuccess: "✅ OTP Received",
	domain.StatusExpired: "❌ Expired",
}

func statusLabel(s domain.AllocationStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func allocationCard(a *domain.Allocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n📱 Country: %s\n📞 Phone: %s\n🔢 Range: %s\n%s\nStatus: %s",
		cardSeparator,
		html.EscapeString(a.Country),
		html.EscapeString(domain.FormatPrettyNumber(a.PhoneNumber)),
		html.EscapeString(a.RangeSpec),
		cardSeparator,
		statusLabel(a.Status),
	)
	if a.OTP != "" {
		fmt.Fprintf(&b, "\n\n🔐 OTP: <code>%s</code>", html.EscapeString(a.OTP))
	}
	return b.String()
}

func otpCard(n domain.Notification) string {
	head := fmt.Sprintf("%s\n🔔 OTP Received\n%s\n📩 Code: <code>%s</code>\n📞 Number: %s\n🗺 Country: %s\n⏰ Time: %s\n%s\n⚠️ Do not share this code\n%s\nMessage:\n",
		cardSeparator,
		cardSeparator,
		html.EscapeString(n.OTP),
		html.EscapeString(domain.FormatPrettyNumber(n.PhoneNumber)),
		html.EscapeString(n.Country),
		n.OccurredAt.Format(clockLayout),
		cardSeparator,
		cardSeparator,
	)
	return head + escapeTruncated(n.MessageText, maxMessageRunes-utf8.RuneCountInString(head))
}

// escapeTruncated HTML-escapes s, cutting whole runes so the result has at most budget runes.
func escapeTruncated(s string, budget int) string {
	var b strings.Builder
	used := 0
	for _, r := range s {
		esc := html.EscapeString(string(r))
		n := utf8.RuneCountInString(esc)
		if used+n > budget-1 {
			b.WriteString(truncationMark)
			break
		}
		b.WriteString(esc)
		used += n
	}
	return b.String()
}

func otpLine(otp string) string {
	return fmt.Sprintf("🔐 OTP: <code>%s</code>", html.EscapeString(otp))
}

func expiredCard(n domain.Notification) string {
	return fmt.Sprintf("%s\n❌ OTP Expired\n%s\n%s\n\nThis number has been marked Expired by the provider.\nYou can request a new one.",
		cardSeparator, cardSeparator, html.EscapeString(domain.FormatPrettyNumber(n.PhoneNumber)))
}

func cancelledCard(n domain.Notification) string {
	return fmt.Sprintf("%s\n🚫 Number Cancelled\n%s\n%s\n\nPolling stopped for this number.\nYou can request a new one.",
		cardSeparator, cardSeparator, html.EscapeString(domain.FormatPrettyNumber(n.PhoneNumber)))
}

func allocationFailedCard(err error) string {
	detail := err.Error()
	var allocErr *app.AllocationError
	if errors.As(err, &allocErr) {
		detail = fmt.Sprintf("Range: %s\n%s", allocErr.Range, allocErr.Detail)
		if allocErr.Detail == "" {
			detail = fmt.Sprintf("Range: %s\n%v", allocErr.Range, allocErr.Err)
		}
	}
	return fmt.Sprintf("%s\n⚠️ Allocation Failed\n%s\n%s", cardSeparator, cardSeparator, html.EscapeString(detail))
}

func historyCard(allocs []*domain.Allocation, loc *time.Location) string {
	if len(allocs) == 0 {
		return fmt.Sprintf("%s\n📜 History\n%s\nNo history available yet.", cardSeparator, cardSeparator)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n📜 History\n%s", cardSeparator, cardSeparator)
	for i, a := range allocs {
		if i == maxHistory {
			fmt.Fprintf(&b, "\n… %d older numbers not shown", len(allocs)-maxHistory)
			break
		}
		fmt.Fprintf(&b, "\n📞 %s\n🗺 %s\n🔢 Range: %s\n📅 Allocated: %s\n🧾 Status: %s",
			html.EscapeString(domain.FormatPrettyNumber(a.PhoneNumber)),
			html.EscapeString(a.Country),
			html.EscapeString(a.RangeSpec),
			a.AllocatedAt.In(loc).Format(historyLayout),
			a.Status,
		)
		if a.OTP != "" {
			b.WriteString("\n" + otpLine(a.OTP))
		}
		b.WriteString("\n" + cardSeparator)
	}
	return b.String()
}
