package reconstruct

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// moneyTokenRe matches the three accepted price surface forms: plain
// integers, comma-grouped integers, and "k"-suffixed thousands, each with an
// optional dollar sign.
var moneyTokenRe = regexp.MustCompile(`\$?\s?\d[\d,]*(?:\.\d+)?[kK]?`)

// rangeRe matches a dash-separated value range such as "1,200-1,400" or
// "$80k - $95k".
var rangeRe = regexp.MustCompile(`(\$?\s?\d[\d,]*(?:\.\d+)?[kK]?)\s*[-–]\s*(\$?\s?\d[\d,]*(?:\.\d+)?[kK]?)`)

// ParseMoney converts a price token to whole dollars. "85k" and "85,000" and
// "85000" all yield 85000; "39.9k" yields 39900. Any value below 1000 is
// treated as thousands even without an explicit suffix: bulk sheets write
// "asking 85" for an 85k price.
func ParseMoney(token string) (int, bool) {
	return parseMoney(token, true)
}

// ParseRent converts a rent token to whole dollars. Unlike sale prices, a
// bare value below 1000 is a monthly rent, not thousands; only an explicit
// "k" suffix scales.
func ParseRent(token string) (int, bool) {
	return parseMoney(token, false)
}

func parseMoney(token string, coerceThousands bool) (int, bool) {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}

	thousands := false
	if strings.HasSuffix(s, "k") || strings.HasSuffix(s, "K") {
		thousands = true
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}

	if thousands || (coerceThousands && f < 1000) {
		f *= 1000
	}
	return int(f + 0.5), true
}

// ParseRange parses a dash-separated range from text, returning both bounds.
// The coerce flag selects price semantics (sub-1000 means thousands) or rent
// semantics.
func ParseRange(text string, coerce bool) (low, high int, ok bool) {
	m := rangeRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	low, okLow := parseMoney(m[1], coerce)
	high, okHigh := parseMoney(m[2], coerce)
	if !okLow || !okHigh {
		return 0, 0, false
	}
	return low, high, true
}

// SurfaceForms returns every textual form under which a dollar value may
// appear in page text: plain, comma-grouped, "k"-suffixed, and the bare
// thousands shorthand. Used to check whether a value genuinely originates
// from a given page.
func SurfaceForms(value int) []string {
	if value <= 0 {
		return nil
	}

	forms := []string{
		strconv.Itoa(value),
		commaGroup(value),
	}

	if value%1000 == 0 {
		forms = append(forms, fmt.Sprintf("%dk", value/1000))
		if value/1000 < 1000 {
			forms = append(forms, strconv.Itoa(value/1000))
		}
	} else if value%100 == 0 {
		forms = append(forms, fmt.Sprintf("%.1fk", float64(value)/1000))
	}

	return forms
}

// ContainsValue reports whether any surface form of value occurs in text.
// Matching is case-insensitive so "$95K" satisfies the "95k" form.
func ContainsValue(text string, value int) bool {
	lower := strings.ToLower(text)
	for _, form := range SurfaceForms(value) {
		if strings.Contains(lower, strings.ToLower(form)) {
			return true
		}
	}
	return false
}

func commaGroup(v int) string {
	s := strconv.Itoa(v)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}

// hasMoneyToken reports whether text contains at least one price-like token
// of meaningful size (filters out bare zip codes and house numbers by
// requiring a dollar sign, comma grouping, or a "k" suffix, or a labeled
// context handled elsewhere).
func hasMoneyToken(text string) bool {
	for _, tok := range moneyTokenRe.FindAllString(text, -1) {
		trimmed := strings.TrimSpace(tok)
		if strings.HasPrefix(trimmed, "$") ||
			strings.Contains(trimmed, ",") ||
			strings.HasSuffix(strings.ToLower(trimmed), "k") {
			return true
		}
	}
	return false
}
