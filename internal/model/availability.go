package model

import "time"

// AvailabilitySource identifies which resolution tier produced a status.
type AvailabilitySource string

const (
	SourceMarketplace AvailabilitySource = "marketplace"
	SourceWebSearch   AvailabilitySource = "web_search"
	SourceManual      AvailabilitySource = "manual"
	SourceImported    AvailabilitySource = "imported"
	SourceNone        AvailabilitySource = "none"
)

// PropertyFacts holds structural attributes surfaced alongside a marketplace
// status, used to backfill missing fields on the record.
type PropertyFacts struct {
	Estimate  int     `json:"estimate,omitempty"`
	Beds      int     `json:"beds,omitempty"`
	Baths     float64 `json:"baths,omitempty"`
	Sqft      int     `json:"sqft,omitempty"`
	YearBuilt int     `json:"year_built,omitempty"`
}

// AvailabilityResult is the outcome of one availability resolution.
type AvailabilityResult struct {
	Status    MarketStatus       `json:"status"`
	Source    AvailabilitySource `json:"source"`
	CheckedAt time.Time          `json:"checked_at"`
	Detail    string             `json:"detail,omitempty"`
	Facts     *PropertyFacts     `json:"facts,omitempty"`
}

// DedupCacheEntry is one appended row of normalized identity keys. The cache
// is append-only and queried independently of run id, which is what makes
// duplicates detectable across separate uploads.
type DedupCacheEntry struct {
	ID                string    `json:"id"`
	NormalizedAddress string    `json:"normalized_address"`
	NormalizedURL     string    `json:"normalized_url"`
	RunID             string    `json:"run_id"`
	CreatedAt         time.Time `json:"created_at"`
}
