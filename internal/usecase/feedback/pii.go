package feedback

import (
	"regexp"
	"strings"
	"unicode"
)

type piiRule struct {
	Label string
	Re    *regexp.Regexp
}

var piiRules = []piiRule{
	{Label: "email", Re: regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
	{Label: "ssn", Re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{Label: "phone", Re: regexp.MustCompile(`(?:\+?\d{1,2}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)},
	{Label: "street address", Re: regexp.MustCompile(
		`(?i)\b\d{1,6}\s+(?:[a-z0-9.']+\s+){0,4}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl|terrace|parkway|pkwy|calle|avenida)\b`,
	)},
	{Label: "name disclosure", Re: regexp.MustCompile(
		`(?i)\b(?:my name is|my name's|i am called|call me|me llamo|mi nombre es)\s+[a-z]`,
	)},
	{Label: "address disclosure", Re: regexp.MustCompile(
		`(?i)\b(?:i live at|my address is|i live on|vivo en la|mi direcci[oó]n es)\b`,
	)},
	{Label: "bearer token", Re: regexp.MustCompile(`(?i)\b(?:bearer\s+[a-z0-9._\-]{10,}|eyJ[a-zA-Z0-9_\-]{8,}\.[a-zA-Z0-9_\-]{8,})`)},
	{Label: "session identifier", Re: regexp.MustCompile(`(?i)\b(?:session|sess|sid|token)[\s_\-]*(?:id)?\s*[:=]\s*\S{6,}`)},
}

const minTokenLength = 24

// detectPII returns the label of the first personal-data pattern found in s.
func detectPII(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	for _, r := range piiRules {
		if r.Re.MatchString(s) {
			return r.Label, true
		}
	}
	for _, f := range strings.Fields(s) {
		if looksLikeToken(f) {
			return "session identifier", true
		}
	}
	return "", false
}

// looksLikeToken flags long opaque strings mixing letters and digits, the
// usual shape of session ids and API keys.
func looksLikeToken(s string) bool {
	s = strings.Trim(s, ".,;:!?\"'()[]{}")
	if len(s) < minTokenLength {
		return false
	}
	var letters, digits int
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return letters > 0 && digits > 0
}
