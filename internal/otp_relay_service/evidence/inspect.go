package evidence

import "strings"

var expiryKeywords = []string{"expired", "failed"}

// Finding is everything a single provider record says about one allocation.
type Finding struct {
	Matched        bool
	Message        Message
	Flat           string
	OTP            string
	ProviderStatus string
	Expired        bool
}

// Inspect matches record against fingerprints and, on a match, derives the message,
// the passcode and the provider's expiry signal.
func Inspect(record map[string]any, fingerprints []string) Finding {
	if !Matches(record, fingerprints) {
		return Finding{}
	}

	f := Finding{
		Matched: true,
		Message: ExtractMessage(record),
		Flat:    Flatten(record),
	}
	if v, ok := record["status"]; ok {
		f.ProviderStatus = Flatten(v)
	}

	if code, ok := ExtractOTP(f.Message.Text); ok {
		f.OTP = code
	} else if code, ok := ExtractOTP(f.Flat); ok {
		f.OTP = code
	}

	f.Expired = HasExpiryKeyword(f.ProviderStatus) || HasExpiryKeyword(f.Message.Text+" "+f.Flat)
	return f
}

// MessageText is the extracted body, or the flattened record when nothing was found.
func (f Finding) MessageText() string {
	if f.Message.Text != "" {
		return f.Message.Text
	}
	return f.Flat
}

// HasExpiryKeyword reports whether s mentions "expired" or "failed", case-insensitively.
func HasExpiryKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range expiryKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
