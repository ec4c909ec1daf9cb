package acquire

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/pkg/anthropic"
)

const visionSystemPrompt = `You read pages from bulk real-estate listing PDFs.
Extract every property listing on the attached page as a JSON array. Each
element has these fields (omit fields that are not present on the page):
street, city, state, zip, asking_price, suggested_offer, rent, arv,
rehab_estimate, beds, baths, sqft, year_built, market_url, occupied.
All money fields are integer dollars. Respond with the JSON array only.`

// VisionExtractor turns a scanned page into structured listing candidates.
type VisionExtractor interface {
	ExtractRecords(ctx context.Context, chunk model.PageChunk) ([]*model.PropertyRecord, error)
}

// Vision implements VisionExtractor on the Anthropic API, sending the chunk
// PDF as a document block.
type Vision struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewVision creates a Vision extractor, or nil when no API key is configured.
func NewVision(cfg config.VisionConfig) *Vision {
	if cfg.Key == "" {
		return nil
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Vision{
		client:    anthropic.NewClient(cfg.Key),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// visionListing mirrors the JSON shape the model is asked to produce.
type visionListing struct {
	Street         string  `json:"street"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	Zip            string  `json:"zip"`
	AskingPrice    int     `json:"asking_price"`
	SuggestedOffer int     `json:"suggested_offer"`
	Rent           int     `json:"rent"`
	ARV            int     `json:"arv"`
	RehabEstimate  int     `json:"rehab_estimate"`
	Beds           int     `json:"beds"`
	Baths          float64 `json:"baths"`
	Sqft           int     `json:"sqft"`
	YearBuilt      int     `json:"year_built"`
	MarketURL      string  `json:"market_url"`
	Occupied       bool    `json:"occupied"`
}

// ExtractRecords sends the chunk PDF to the model and parses the returned
// listings into raw records.
func (v *Vision) ExtractRecords(ctx context.Context, chunk model.PageChunk) ([]*model.PropertyRecord, error) {
	data, err := os.ReadFile(chunk.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "acquire: read chunk %s", chunk.Path)
	}

	resp, err := v.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(visionSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: "Extract the listings on this page.", Document: data},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "acquire: vision extract page %d", chunk.FirstPage)
	}
	resp.Usage.LogCost(v.model, "vision")

	listings, err := parseVisionListings(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "acquire: parse vision response page %d", chunk.FirstPage)
	}

	recs := make([]*model.PropertyRecord, 0, len(listings))
	for _, l := range listings {
		recs = append(recs, visionRecord(l, chunk))
	}
	return recs, nil
}

// parseVisionListings tolerates code fences and leading prose around the
// JSON array.
func parseVisionListings(text string) ([]visionListing, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, eris.New("no JSON array in response")
	}

	var listings []visionListing
	if err := json.Unmarshal([]byte(text[start:end+1]), &listings); err != nil {
		return nil, eris.Wrap(err, "unmarshal listings")
	}
	return listings, nil
}

func visionRecord(l visionListing, chunk model.PageChunk) *model.PropertyRecord {
	now := time.Now().UTC()
	rec := &model.PropertyRecord{
		ID:             uuid.New().String(),
		RunID:          chunk.RunID,
		Street:         l.Street,
		City:           l.City,
		State:          l.State,
		Zip:            l.Zip,
		AskingPrice:    l.AskingPrice,
		SuggestedOffer: l.SuggestedOffer,
		Rent:           l.Rent,
		ARV:            l.ARV,
		RehabEstimate:  l.RehabEstimate,
		Beds:           l.Beds,
		Baths:          l.Baths,
		Sqft:           l.Sqft,
		YearBuilt:      l.YearBuilt,
		MarketURL:      l.MarketURL,
		Occupied:       l.Occupied,
		MarketStatus:   model.MarketStatusUnknown,
		Status:         model.RecordStatusRaw,
		SourcePage:     chunk.FirstPage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	rec.AddNote("extracted via vision inference")
	return rec
}
