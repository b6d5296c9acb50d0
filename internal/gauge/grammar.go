// internal/gauge/grammar.go
package gauge

import (
	"regexp"
	"strings"
)

// ErrorCodes are the tokens the controller sends in place of a reading
var ErrorCodes = []string{"PROTECT", "HV_OFF", "NOGAUGE", "MISCONN", "LO"}

// hard faults are the error codes that never carry a usable reading
var hardFaults = map[string]bool{
	"PROTECT": true,
	"HV_OFF":  true,
	"NOGAUGE": true,
	"MISCONN": true,
}

const floatExpr = `[0-9](\.[0-9]{1,2})?[eE][+-][0-9]{2}$`

var (
	floatPattern  = regexp.MustCompile(`^` + floatExpr)
	expNumber     = regexp.MustCompile(`[0-9]+(\.[0-9]+)?[eE][+-]?[0-9]+`)
	validCodes    = compileCodes("")
	validCodesAny = compileCodes("(?i)")
)

func compileCodes(flags string) []*regexp.Regexp {
	exprs := []string{floatExpr, `HI>`, `LO`, `AA_`, `WAIT`, `([A-Za-z]+)([ _]?)([A-Z]*)!$`}
	exprs = append(exprs, ErrorCodes...)

	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		patterns = append(patterns, regexp.MustCompile(flags+`^`+e))
	}
	return patterns
}

// IsFloat reports whether s is a reading in the controller's scientific notation
func IsFloat(s string) bool {
	return floatPattern.MatchString(strings.TrimSpace(s))
}

// IsRecognized reports whether s starts with any token of the reply grammar
func IsRecognized(s string) bool {
	return matchAny(validCodes, s)
}

// isRecognizedFold is IsRecognized ignoring case, used on lowercased channel states
func isRecognizedFold(s string) bool {
	return matchAny(validCodesAny, s)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
