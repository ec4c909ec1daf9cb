// Package identity derives canonical comparison keys for addresses and
// marketplace URLs. Keys are deterministic and insensitive to case,
// punctuation, and common synonyms; they are used for comparison only and
// never persisted as entities of their own.
package identity

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// directionals maps directional abbreviations to full words.
var directionals = map[string]string{
	"n": "north", "s": "south", "e": "east", "w": "west",
	"ne": "northeast", "nw": "northwest", "se": "southeast", "sw": "southwest",
}

// suffixSynonyms collapses street-suffix variants to one canonical
// abbreviation.
var suffixSynonyms = map[string]string{
	"street": "st", "str": "st", "st": "st",
	"avenue": "ave", "av": "ave", "ave": "ave",
	"road": "rd", "rd": "rd",
	"drive": "dr", "drv": "dr", "dr": "dr",
	"lane": "ln", "ln": "ln",
	"boulevard": "blvd", "blvd": "blvd",
	"court": "ct", "ct": "ct",
	"place": "pl", "pl": "pl",
	"circle": "cir", "cir": "cir",
	"terrace": "ter", "ter": "ter",
	"parkway": "pkwy", "pkwy": "pkwy",
	"highway": "hwy", "hwy": "hwy",
	"cove": "cv", "cv": "cv",
	"trail": "trl", "trl": "trl",
	"pike": "pike",
	"way":  "way",
}

// unitTokens canonicalizes unit designators so "Apt 2" and "Unit 2" compare
// equal.
var unitTokens = map[string]string{
	"unit": "unit", "apt": "unit", "apartment": "unit",
	"suite": "unit", "ste": "unit",
	"floor": "unit", "fl": "unit",
	"bldg": "unit", "building": "unit",
	"#": "unit",
}

var punctRe = regexp.MustCompile(`[.,#]`)
var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeAddress produces the canonical form of a street address for
// identity comparison. "123 Main St" and "123 Main Street" normalize
// identically.
func NormalizeAddress(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return ""
	}

	lower := strings.ToLower(addr)
	lower = punctRe.ReplaceAllString(lower, " ")
	lower = spaceRe.ReplaceAllString(lower, " ")

	tokens := strings.Fields(lower)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if full, ok := directionals[tok]; ok {
			out = append(out, full)
			continue
		}
		if canon, ok := suffixSynonyms[tok]; ok {
			out = append(out, canon)
			continue
		}
		if canon, ok := unitTokens[tok]; ok {
			out = append(out, canon)
			continue
		}
		out = append(out, tok)
	}

	return strings.Join(out, " ")
}

// trailing internal id segments like "/12345678_zpid" or "/123456789" carry
// no identity information.
var idSuffixRe = regexp.MustCompile(`/(\d{5,}_zpid|\d{6,})/?$`)

// NormalizeMarketURL produces the canonical form of a marketplace URL,
// keeping only the structurally meaningful host and path.
func NormalizeMarketURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	lower := strings.ToLower(strings.TrimSpace(raw))
	lower = strings.TrimPrefix(lower, "https://")
	lower = strings.TrimPrefix(lower, "http://")
	lower = strings.TrimPrefix(lower, "www.")

	// Drop query and fragment.
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}

	lower = strings.TrimSuffix(lower, "/")
	lower = idSuffixRe.ReplaceAllString(lower, "")
	return strings.TrimSuffix(lower, "/")
}

var titleCaser = cases.Title(language.AmericanEnglish)

// slugStateZipRe matches the tail of a listing slug:
// ...-Memphis-TN-38103 (state abbreviation then 5-digit zip).
var slugStateZipRe = regexp.MustCompile(`(?i)^(.*)-([a-z]{2})-(\d{5})$`)

// DecodedAddress is an address recovered from a marketplace URL slug.
type DecodedAddress struct {
	Street string
	City   string
	State  string
	Zip    string
}

// DecodeSlug derives street, city, state, and zip from a marketplace listing
// URL such as
// https://www.zillow.com/homedetails/123-Main-St-Memphis-TN-38103/12345_zpid/.
// It returns nil when the URL carries no decodable slug.
func DecodeSlug(rawURL string) *DecodedAddress {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	var slug string
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if slugStateZipRe.MatchString(seg) {
			slug = seg
			break
		}
	}
	if slug == "" {
		return nil
	}

	m := slugStateZipRe.FindStringSubmatch(slug)
	head, state, zip := m[1], strings.ToUpper(m[2]), m[3]

	// The last hyphenated word before the state is the city; multi-word
	// cities cannot be told apart from street tails, so the final token is
	// taken as city and the remainder as street.
	parts := strings.Split(head, "-")
	if len(parts) < 2 {
		return nil
	}
	city := titleCaser.String(parts[len(parts)-1])
	street := titleCaser.String(strings.Join(parts[:len(parts)-1], " "))

	return &DecodedAddress{Street: street, City: city, State: state, Zip: zip}
}

// CanonicalListingURL constructs the canonical marketplace URL for an
// address, used to retry a fetch when the original link is dead or blocked.
func CanonicalListingURL(street, city, state, zip string) string {
	if street == "" || city == "" || state == "" {
		return ""
	}
	slug := strings.Join(strings.Fields(street+" "+city+" "+state+" "+zip), "-")
	return "https://www.zillow.com/homes/" + slug + "_rb/"
}

// StreetNumber returns the leading house number of a street address, or ""
// when the address does not start with one.
func StreetNumber(street string) string {
	fields := strings.Fields(strings.TrimSpace(street))
	if len(fields) == 0 {
		return ""
	}
	digits := fields[0]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return digits
}
