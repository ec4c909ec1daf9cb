package availability

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/intake-cli/internal/model"
)

// Classification is the verdict of the keyword classifier over page text.
type Classification struct {
	Status model.MarketStatus
	Detail string
	Facts  *model.PropertyFacts
}

// Keyword sets in priority order. A page mentioning both "pending" and
// "for sale" is pending; stale marketing copy lingers after a status flip,
// so the more terminal status wins.
var (
	soldMarkers = []string{
		"sold on", "sold for", "last sold", ": sold", "- sold", "recently sold",
	}
	pendingMarkers = []string{
		"sale pending", "pending", "under contract", "contingent", "offer accepted",
	}
	activeMarkers = []string{
		"for sale", "active listing", "new listing", "days on market",
		"days on zillow", "on the market",
	}
	offMarketMarkers = []string{
		"off market", "off the market", "not for sale", "no longer listed", "delisted",
	}
)

var (
	soldDateRe  = regexp.MustCompile(`sold[^.\n]{0,20}?on\s+(\d{1,2}/\d{1,2}/\d{2,4})`)
	soldPriceRe = regexp.MustCompile(`sold[^.\n]{0,30}?for\s+\$([\d,]+)`)

	estimateRe = regexp.MustCompile(`(?:zestimate|estimated value)[^\d$]{0,10}\$([\d,]+)`)
	bedsRe     = regexp.MustCompile(`(\d+)\s*(?:bd|beds?|bedrooms?)\b`)
	bathsRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:ba|baths?|bathrooms?)\b`)
	sqftRe     = regexp.MustCompile(`([\d,]{3,})\s*(?:sq\.?\s?ft|sqft|square feet)`)
	builtRe    = regexp.MustCompile(`built\s+(?:in\s+)?(\d{4})`)
)

// Classify scans page text for market-status keywords and structural facts.
// Unknown means the page said nothing decisive, not that it was unreachable.
func Classify(text string) Classification {
	lower := strings.ToLower(text)

	if m := firstMarker(lower, soldMarkers); m != "" {
		return Classification{
			Status: model.MarketStatusSold,
			Detail: soldDetail(lower, m),
			Facts:  extractFacts(lower),
		}
	}
	if m := firstMarker(lower, pendingMarkers); m != "" {
		return Classification{Status: model.MarketStatusPending, Detail: m, Facts: extractFacts(lower)}
	}
	if m := firstMarker(lower, activeMarkers); m != "" {
		return Classification{Status: model.MarketStatusActive, Detail: m, Facts: extractFacts(lower)}
	}
	if m := firstMarker(lower, offMarketMarkers); m != "" {
		return Classification{Status: model.MarketStatusOffMarket, Detail: m, Facts: extractFacts(lower)}
	}

	return Classification{Status: model.MarketStatusUnknown}
}

func firstMarker(lower string, markers []string) string {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

// soldDetail captures the sale date and price when the page surfaces them.
func soldDetail(lower, marker string) string {
	detail := marker
	if m := soldDateRe.FindStringSubmatch(lower); m != nil {
		detail = "sold on " + m[1]
	}
	if m := soldPriceRe.FindStringSubmatch(lower); m != nil {
		detail += fmt.Sprintf(" for $%s", m[1])
	}
	return detail
}

// extractFacts pulls structural attributes from page text for backfill.
// Returns nil when nothing was found.
func extractFacts(lower string) *model.PropertyFacts {
	f := &model.PropertyFacts{}
	found := false

	if m := estimateRe.FindStringSubmatch(lower); m != nil {
		f.Estimate = atoiCommas(m[1])
		found = true
	}
	if m := bedsRe.FindStringSubmatch(lower); m != nil {
		f.Beds, _ = strconv.Atoi(m[1])
		found = true
	}
	if m := bathsRe.FindStringSubmatch(lower); m != nil {
		f.Baths, _ = strconv.ParseFloat(m[1], 64)
		found = true
	}
	if m := sqftRe.FindStringSubmatch(lower); m != nil {
		f.Sqft = atoiCommas(m[1])
		found = true
	}
	if m := builtRe.FindStringSubmatch(lower); m != nil {
		f.YearBuilt, _ = strconv.Atoi(m[1])
		found = true
	}

	if !found {
		return nil
	}
	return f
}

func atoiCommas(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}
