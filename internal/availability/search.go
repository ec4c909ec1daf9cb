package availability

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/pkg/jina"
)

// SearchTier classifies a property from web search abstracts. It never
// opens the listing page itself; titles and snippets usually carry the
// status ("PENDING", "Recently Sold") for recently changed listings.
type SearchTier struct {
	client jina.Client
}

// NewSearchTier creates the tier. client must not be nil.
func NewSearchTier(client jina.Client) *SearchTier {
	return &SearchTier{client: client}
}

func (s *SearchTier) Name() string { return "web_search" }

func (s *SearchTier) Resolve(ctx context.Context, rec *model.PropertyRecord) (*model.AvailabilityResult, error) {
	if !rec.HasAddress() {
		return nil, eris.New("web_search: record has no address to query")
	}

	resp, err := s.client.Search(ctx, rec.FullAddress(), jina.WithSiteFilter("zillow.com"))
	if err != nil {
		return nil, eris.Wrap(err, "web_search: search")
	}
	if len(resp.Data) == 0 {
		return nil, eris.New("web_search: no results")
	}

	// Classify over the concatenated abstracts; the keyword priority keeps
	// a single "sold" snippet from being drowned out by marketing copy.
	var sb strings.Builder
	for _, r := range resp.Data {
		sb.WriteString(r.Title)
		sb.WriteString("\n")
		sb.WriteString(r.Description)
		sb.WriteString("\n")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}

	cls := Classify(sb.String())
	return &model.AvailabilityResult{
		Status:    cls.Status,
		Source:    model.SourceWebSearch,
		CheckedAt: time.Now().UTC(),
		Detail:    cls.Detail,
		Facts:     cls.Facts,
	}, nil
}
