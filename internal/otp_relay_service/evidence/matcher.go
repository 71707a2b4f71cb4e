package evidence

import "strings"

// NumberFields are the provider fields that conventionally carry the allocated number.
var NumberFields = []string{"number", "full_number", "copy"}

// Candidates returns the strings a record is matched on: the number fields that are
// present, followed by the flattened record as a catch-all.
func Candidates(record map[string]any) []string {
	out := make([]string, 0, len(NumberFields)+1)
	for _, key := range NumberFields {
		v, ok := record[key]
		if !ok || isEmptyValue(v) {
			continue
		}
		out = append(out, Flatten(v))
	}
	return append(out, Flatten(record))
}

// Matches reports whether any fingerprint occurs inside the digit-only form of any
// candidate string of record.
//
// Short fingerprints can coincide with unrelated digit runs; that trade-off is kept
// so matching stays tolerant of country codes and formatting.
func Matches(record map[string]any, fingerprints []string) bool {
	if len(fingerprints) == 0 || len(record) == 0 {
		return false
	}
	for _, candidate := range Candidates(record) {
		digits := DigitsOnly(candidate)
		if digits == "" {
			continue
		}
		for _, fp := range fingerprints {
			if fp != "" && strings.Contains(digits, fp) {
				return true
			}
		}
	}
	return false
}
