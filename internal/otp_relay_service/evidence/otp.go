package evidence

import "regexp"

var (
	separatorRun = regexp.MustCompile(`[|:]+`)

	bareDigits   = regexp.MustCompile(`\b\d{4,8}\b`)
	brandedCode  = regexp.MustCompile(`(?i)\b[A-Z0-9]{1,6}[-_]\d{3,8}\b`)
	markedDigits = regexp.MustCompile(`[<#>]{1,3}\s*(\d{4,8})\b`)
)

// ExtractOTP returns the most likely passcode in text. Rules, first match wins:
// a bare 4-8 digit run, a branded code such as FB-46541, a 4-8 digit run behind
// a <, # or > marker.
func ExtractOTP(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	normalized := separatorRun.ReplaceAllString(text, " ")

	if code, ok := firstBareRun(normalized); ok {
		return code, true
	}
	if code := brandedCode.FindString(normalized); code != "" {
		return code, true
	}
	if m := markedDigits.FindStringSubmatch(normalized); m != nil {
		return m[1], true
	}
	return "", false
}

// firstBareRun skips digit runs that are the tail of a branded code ("FB-77213"):
// a hyphen is a word boundary, so \b alone would split the code.
func firstBareRun(text string) (string, bool) {
	for _, loc := range bareDigits.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start >= 2 && text[start-1] == '-' && isASCIIAlnum(text[start-2]) {
			continue
		}
		return text[start:end], true
	}
	return "", false
}

func isASCIIAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
