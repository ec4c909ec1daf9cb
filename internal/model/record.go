package model

import "time"

// MarketStatus is a property's current marketplace sale status.
type MarketStatus string

const (
	MarketStatusActive      MarketStatus = "active"
	MarketStatusPending     MarketStatus = "pending"
	MarketStatusSold        MarketStatus = "sold"
	MarketStatusOffMarket   MarketStatus = "off_market"
	MarketStatusUnknown     MarketStatus = "unknown"
	MarketStatusNeedsReview MarketStatus = "needs_review"
)

// RecordStatus tracks a record's position in the processing lifecycle.
type RecordStatus string

const (
	RecordStatusRaw       RecordStatus = "raw"
	RecordStatusFiltered  RecordStatus = "filtered"
	RecordStatusDeduped   RecordStatus = "deduped"
	RecordStatusReviewed  RecordStatus = "reviewed"
	RecordStatusAnalyzed  RecordStatus = "analyzed"
	RecordStatusDiscarded RecordStatus = "discarded"
)

// PropertyRecord is a candidate or finalized property listing. It is created
// raw by the reconstructor, annotated by the validator, classified by the
// deduplicator, and stamped with marketplace status by the availability
// resolver. Analyzed and discarded are terminal.
type PropertyRecord struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`

	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`

	AskingPrice    int `json:"asking_price,omitempty"`
	SuggestedOffer int `json:"suggested_offer,omitempty"`

	// Rent keeps the legacy single value; when a range was parsed, RentMin
	// and RentMax hold both bounds and Rent carries the upper bound.
	Rent    int `json:"rent,omitempty"`
	RentMin int `json:"rent_min,omitempty"`
	RentMax int `json:"rent_max,omitempty"`

	ARV           int `json:"arv,omitempty"`
	ARVMin        int `json:"arv_min,omitempty"`
	ARVMax        int `json:"arv_max,omitempty"`
	RehabEstimate int `json:"rehab_estimate,omitempty"`

	Beds      int     `json:"beds,omitempty"`
	Baths     float64 `json:"baths,omitempty"`
	Sqft      int     `json:"sqft,omitempty"`
	YearBuilt int     `json:"year_built,omitempty"`
	Occupied  bool    `json:"occupied,omitempty"`

	MarketURL       string       `json:"market_url,omitempty"`
	MarketStatus    MarketStatus `json:"market_status"`
	StatusSource    string       `json:"status_source,omitempty"`
	StatusCheckedAt *time.Time   `json:"status_checked_at,omitempty"`

	Status      RecordStatus `json:"status"`
	NeedsReview bool         `json:"needs_review"`
	Notes       []string     `json:"notes,omitempty"`

	SourcePage int    `json:"source_page"`
	RawExcerpt string `json:"raw_excerpt,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddNote appends a free-text note to the record.
func (r *PropertyRecord) AddNote(note string) {
	r.Notes = append(r.Notes, note)
}

// Flag marks the record for human review with a reason.
func (r *PropertyRecord) Flag(reason string) {
	r.NeedsReview = true
	r.AddNote(reason)
}

// HasAddress reports whether the record carries a usable street address.
func (r *PropertyRecord) HasAddress() bool {
	return len(r.Street) >= 5
}

// FullAddress renders the address components as a single comma-joined string.
func (r *PropertyRecord) FullAddress() string {
	out := r.Street
	for _, part := range []string{r.City, r.State, r.Zip} {
		if part == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += part
	}
	return out
}

// Terminal reports whether the record's processing status is final.
func (r *PropertyRecord) Terminal() bool {
	return r.Status == RecordStatusAnalyzed || r.Status == RecordStatusDiscarded
}
