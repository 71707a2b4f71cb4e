package domain

import (
	"strings"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/evidence"
)

const rangeWildcard = "XXX"

// NormalizeRange turns user input into a provider range pattern. Input that already
// carries the XXX wildcard is kept; otherwise the last three digits are replaced by it.
func NormalizeRange(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(strings.ToUpper(raw), rangeWildcard) {
		if evidence.DigitsOnly(raw) == "" {
			return "", ErrInvalidRange
		}
		return raw, nil
	}
	digits := evidence.DigitsOnly(raw)
	if digits == "" {
		return "", ErrInvalidRange
	}
	if len(digits) > 3 {
		digits = digits[:len(digits)-3]
	}
	return digits + rangeWildcard, nil
}

// FormatPrettyNumber groups the digits of a number in threes from the right,
// keeping a leading plus sign.
func FormatPrettyNumber(number string) string {
	number = strings.TrimSpace(number)
	digits := evidence.DigitsOnly(number)
	if digits == "" {
		return number
	}

	var groups []string
	for end := len(digits); end > 0; end -= 3 {
		start := end - 3
		if start < 0 {
			start = 0
		}
		groups = append([]string{digits[start:end]}, groups...)
	}
	pretty := strings.Join(groups, " ")
	if strings.HasPrefix(number, "+") {
		return "+" + pretty
	}
	return pretty
}
