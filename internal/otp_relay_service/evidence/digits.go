package evidence

import "strings"

// DefaultFingerprintLengths are the trailing-digit lengths derived for every allocated number.
var DefaultFingerprintLengths = []int{6, 7, 8, 9, 10}

// DigitsOnly strips every character that is not an ASCII decimal digit.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// TrailingFingerprints returns digits[len-n:] for every n in lengths that fits,
// in the order of lengths. DefaultFingerprintLengths is used when lengths is empty.
// The result is never nil.
func TrailingFingerprints(digits string, lengths ...int) []string {
	if len(lengths) == 0 {
		lengths = DefaultFingerprintLengths
	}
	out := make([]string, 0, len(lengths))
	for _, n := range lengths {
		if n > 0 && len(digits) >= n {
			out = append(out, digits[len(digits)-n:])
		}
	}
	return out
}
