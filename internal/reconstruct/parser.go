// Package reconstruct turns acquired page text into candidate property
// records via layered boundary detection and cross-page merging. One
// listing's identity, price, and rent fields are not guaranteed to co-occur
// on a single page, so reconstruction runs in four passes: single-page
// splitting, boundary merge, forward price completion, and in-batch collapse.
package reconstruct

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/identity"
	"github.com/sells-group/intake-cli/internal/model"
)

const streetSuffixPattern = `St|Street|Ave|Avenue|Rd|Road|Dr|Drive|Ln|Lane|Blvd|Boulevard|Ct|Court|Pl|Place|Cir|Circle|Ter|Terrace|Pkwy|Parkway|Hwy|Highway|Cv|Cove|Trl|Trail|Pike|Way`

// Boundary markers, in priority order. The first tier that matches anywhere
// on the page is the one used for splitting.
var (
	marketURLRe = regexp.MustCompile(`https?://(?:www\.)?zillow\.com/[^\s"')>]+`)

	typedAddressRe = regexp.MustCompile(`(?i)\b(?:SFH|SINGLE[ -]FAMILY|DUPLEX|TRIPLEX|FOURPLEX|QUADPLEX|CONDO|TOWNHOUSE|TOWNHOME|MULTI[ -]FAMILY)\b[\s:,-]{0,4}\d{1,6}\s+\S`)

	numberedAddressRe = regexp.MustCompile(`\b\d{1,6}\s+(?:[NSEW]\.?\s+)?[A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*){0,3}\s+(?:` + streetSuffixPattern + `)\b`)

	genericAddressRe = regexp.MustCompile(`(?i)\b\d{1,6}\s+\w+(?:\s+\w+){0,3}\s+(?:` + streetSuffixPattern + `)\b`)
)

// cityStateZipRe matches ", Memphis, TN 38103" style tails after a street.
var cityStateZipRe = regexp.MustCompile(`,\s*([A-Za-z][A-Za-z .]+?),?\s+([A-Z]{2})\b\s*(\d{5})?`)

// labeledMoneyRe catches a bare integer adjacent to a pricing label, the one
// surface form hasMoneyToken cannot distinguish from zip codes on its own.
var labeledMoneyRe = regexp.MustCompile(`(?i)(?:asking|price|list(?:ed)?|rent|arv|offer)\W{0,12}\$?\d[\d,]*(?:\.\d+)?[kK]?|\$?\d[\d,]*(?:\.\d+)?[kK]?\W{0,12}(?:asking|price|rent|arv|offer)`)

// rehabIndicators mark renovation narrative rather than a listing. Two or
// more of these with no identity or pricing token means the text describes
// work done, not a property for sale.
var rehabIndicators = []string{
	"renovated", "remodeled", "rehabbed", "updated kitchen", "new roof",
	"new hvac", "new flooring", "fresh paint", "granite", "stainless",
	"move-in ready", "turnkey",
}

var (
	bedsRe  = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:bed(?:room)?s?|br|bd)\b`)
	bathsRe = regexp.MustCompile(`(?i)\b(\d{1,2}(?:\.\d)?)\s*(?:bath(?:room)?s?|ba)\b`)
	sqftRe  = regexp.MustCompile(`(?i)\b([\d,]{3,6})\s*(?:sq\.?\s?ft|sqft|sf)\b`)
	yearRe  = regexp.MustCompile(`(?i)\b(?:built|year)\W{0,8}(19\d{2}|20\d{2})\b`)
)

// Value labels used for field extraction.
var (
	askingLabelRe = regexp.MustCompile(`(?i)\b(?:asking|list(?:ed)?(?:\s+price)?|price)\b`)
	rentLabelRe   = regexp.MustCompile(`(?i)\brents?(?:al)?\b`)
	arvLabelRe    = regexp.MustCompile(`(?i)\b(?:arv|after\s+repair\s+value)\b`)
	rehabLabelRe  = regexp.MustCompile(`(?i)\b(?:rehab|repairs?|reno(?:vation)?)\b`)
	offerLabelRe  = regexp.MustCompile(`(?i)\b(?:suggested\s+offer|offer)\b`)
)

// splitListings partitions page text into one-candidate-per-listing segments
// using the highest-priority boundary marker present.
func splitListings(text string) []string {
	for _, re := range []*regexp.Regexp{marketURLRe, typedAddressRe, numberedAddressRe, genericAddressRe} {
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}

		var segments []string
		for i, loc := range locs {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			segments = append(segments, text[loc[0]:end])
		}
		return segments
	}
	return nil
}

// hasIdentityToken reports whether a segment carries a marketplace URL or a
// usable street address.
func hasIdentityToken(segment string) bool {
	if marketURLRe.MatchString(segment) {
		return true
	}
	addr := extractStreet(segment)
	return len(addr) >= 5
}

func extractStreet(segment string) string {
	if m := numberedAddressRe.FindString(segment); m != "" {
		return strings.TrimSpace(m)
	}
	if m := genericAddressRe.FindString(segment); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// isRehabNarrative reports whether the segment reads as a renovation
// description rather than a listing.
func isRehabNarrative(segment string) bool {
	lower := strings.ToLower(segment)
	hits := 0
	for _, ind := range rehabIndicators {
		if strings.Contains(lower, ind) {
			hits++
		}
	}
	return hits >= 2 && !hasIdentityToken(segment) && !segmentHasMoney(segment)
}

func segmentHasMoney(segment string) bool {
	return hasMoneyToken(segment) || labeledMoneyRe.MatchString(segment)
}

// labeledValue finds the money token closest to a label, in either order,
// and parses it with price or rent semantics.
func labeledValue(text string, label *regexp.Regexp, coerce bool) (int, bool) {
	labelLocs := label.FindAllStringIndex(text, -1)
	if len(labelLocs) == 0 {
		return 0, false
	}
	moneyLocs := moneyTokenRe.FindAllStringIndex(text, -1)
	best := -1
	bestGap := 21
	for _, ll := range labelLocs {
		for i, ml := range moneyLocs {
			if g := gap(ll, ml); g < bestGap {
				if _, ok := parseMoney(text[ml[0]:ml[1]], coerce); ok {
					best, bestGap = i, g
				}
			}
		}
	}
	if best < 0 {
		return 0, false
	}
	v, _ := parseMoney(text[moneyLocs[best][0]:moneyLocs[best][1]], coerce)
	return v, true
}

// labeledRange finds a dash-separated range near a label.
func labeledRange(text string, label *regexp.Regexp, coerce bool) (low, high int, ok bool) {
	labelLocs := label.FindAllStringIndex(text, -1)
	if len(labelLocs) == 0 {
		return 0, 0, false
	}
	rangeLocs := rangeRe.FindAllStringIndex(text, -1)
	for _, ll := range labelLocs {
		for _, rl := range rangeLocs {
			if gap(ll, rl) > 20 {
				continue
			}
			if low, high, ok = ParseRange(text[rl[0]:rl[1]], coerce); ok {
				return low, high, true
			}
		}
	}
	return 0, 0, false
}

// gap measures the character distance between two non-overlapping spans.
func gap(a, b []int) int {
	if a[1] <= b[0] {
		return b[0] - a[1]
	}
	if b[1] <= a[0] {
		return a[0] - b[1]
	}
	return 0
}

// parseCandidate builds a raw record from one listing segment, or nil when
// the segment fails the identity/pricing gate.
func parseCandidate(segment string, page int) *model.PropertyRecord {
	if isRehabNarrative(segment) {
		zap.L().Debug("reconstruct: dropping renovation narrative", zap.Int("page", page))
		return nil
	}

	rec := &model.PropertyRecord{
		Status:       model.RecordStatusRaw,
		MarketStatus: model.MarketStatusUnknown,
		SourcePage:   page,
		RawExcerpt:   excerpt(segment),
	}

	// Identity: marketplace URL first, its slug carrying the full address.
	if u := marketURLRe.FindString(segment); u != "" {
		rec.MarketURL = strings.TrimRight(u, ".,;")
		if d := identity.DecodeSlug(rec.MarketURL); d != nil {
			rec.Street, rec.City, rec.State, rec.Zip = d.Street, d.City, d.State, d.Zip
		}
	}
	if rec.Street == "" {
		rec.Street = extractStreet(segment)
		if rec.Street != "" {
			if m := cityStateZipRe.FindStringSubmatch(segment); m != nil {
				rec.City = strings.TrimSpace(m[1])
				rec.State = m[2]
				rec.Zip = m[3]
			}
		}
	}

	if rec.MarketURL == "" && !rec.HasAddress() {
		return nil
	}

	// Pricing.
	if v, ok := labeledValue(segment, askingLabelRe, true); ok {
		rec.AskingPrice = v
	}
	if v, ok := labeledValue(segment, offerLabelRe, true); ok {
		rec.SuggestedOffer = v
	}
	if low, high, ok := labeledRange(segment, rentLabelRe, false); ok {
		rec.RentMin, rec.RentMax, rec.Rent = low, high, high
	} else if v, ok := labeledValue(segment, rentLabelRe, false); ok {
		rec.Rent = v
	}
	if low, high, ok := labeledRange(segment, arvLabelRe, true); ok {
		rec.ARVMin, rec.ARVMax, rec.ARV = low, high, high
	} else if v, ok := labeledValue(segment, arvLabelRe, true); ok {
		rec.ARV = v
	}
	if v, ok := labeledValue(segment, rehabLabelRe, true); ok {
		rec.RehabEstimate = v
	}

	// Unlabeled fallback: a lone dollar amount is the asking price.
	if rec.AskingPrice == 0 && rec.Rent == 0 && rec.ARV == 0 {
		for _, tok := range moneyTokenRe.FindAllString(segment, -1) {
			trimmed := strings.TrimSpace(tok)
			if !strings.HasPrefix(trimmed, "$") && !strings.Contains(trimmed, ",") &&
				!strings.HasSuffix(strings.ToLower(trimmed), "k") {
				continue
			}
			if v, ok := ParseMoney(trimmed); ok && v >= 10000 {
				rec.AskingPrice = v
				break
			}
		}
	}

	if rec.AskingPrice == 0 && rec.SuggestedOffer == 0 && rec.Rent == 0 && rec.ARV == 0 {
		return nil
	}

	// Structural attributes.
	if m := bedsRe.FindStringSubmatch(segment); m != nil {
		rec.Beds = atoi(m[1])
	}
	if m := bathsRe.FindStringSubmatch(segment); m != nil {
		rec.Baths = atof(m[1])
	}
	if m := sqftRe.FindStringSubmatch(segment); m != nil {
		rec.Sqft = atoi(strings.ReplaceAll(m[1], ",", ""))
	}
	if m := yearRe.FindStringSubmatch(segment); m != nil {
		rec.YearBuilt = atoi(m[1])
	}

	lower := strings.ToLower(segment)
	if strings.Contains(lower, "occupied") || strings.Contains(lower, "tenant") {
		rec.Occupied = !strings.Contains(lower, "vacant")
	}

	return rec
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 280 {
		return s[:280]
	}
	return s
}

func atoi(s string) int {
	v := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		v = v*10 + int(r-'0')
	}
	return v
}

func atof(s string) float64 {
	var v float64
	var frac float64 = 0
	seen := false
	div := 1.0
	for _, r := range s {
		if r == '.' {
			seen = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		if seen {
			div *= 10
			frac = frac + float64(r-'0')/div
		} else {
			v = v*10 + float64(r-'0')
		}
	}
	return v + frac
}
