package whylog

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// RedactionPolicy selects which structured PII patterns run over free-text
// evidence. The zero value redacts nothing; DefaultPolicy runs everything.
type RedactionPolicy struct {
	Email   bool
	Phone   bool
	IBAN    bool
	Address bool
}

// DefaultPolicy enables every pattern.
func DefaultPolicy() RedactionPolicy {
	return RedactionPolicy{Email: true, Phone: true, IBAN: true, Address: true}
}

type pattern struct {
	kind string
	re   *regexp.Regexp
}

// Patterns run against NFKC-normalized text so formatting tricks
// (fullwidth digits, compatibility forms) cannot smuggle PII past them.
var (
	emailPattern = pattern{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)}
	phonePattern = pattern{"phone", regexp.MustCompile(`\+?[0-9][0-9 ().\-]{6,}[0-9]`)}
	ibanPattern  = pattern{"iban", regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}\b`)}
	// Street-number plus street-type heuristics; intentionally greedy on
	// common suffixes rather than attempting full postal grammar.
	addressPattern = pattern{"address", regexp.MustCompile(`\b[0-9]{1,5}[A-Za-z]?\s+[A-Z][A-Za-z]*(\s[A-Z][A-Za-z]*)*\s(Street|St|Avenue|Ave|Road|Rd|Lane|Ln|Boulevard|Blvd|Drive|Dr|Way|Platz|Strasse|Straße)\b\.?`)}
)

// Redact NFKC-normalizes the text and replaces every match of the enabled
// patterns with a typed placeholder. The second return reports whether any
// pattern fired.
func Redact(text string, policy RedactionPolicy) (string, bool) {
	normalized := norm.NFKC.String(text)
	fired := false

	apply := func(p pattern, enabled bool) {
		if !enabled {
			return
		}
		if p.re.MatchString(normalized) {
			fired = true
			normalized = p.re.ReplaceAllString(normalized, "[redacted:"+p.kind+"]")
		}
	}

	// IBAN before phone: an IBAN's digit run would otherwise partially
	// match the phone pattern and shred the token.
	apply(ibanPattern, policy.IBAN)
	apply(emailPattern, policy.Email)
	apply(phonePattern, policy.Phone)
	apply(addressPattern, policy.Address)

	return normalized, fired
}
