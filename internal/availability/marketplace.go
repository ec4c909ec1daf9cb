package availability

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/identity"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/pkg/jina"
)

// pageFetcher is what the marketplace tier needs from the local fetcher.
type pageFetcher interface {
	Fetch(ctx context.Context, targetURL string) (string, error)
}

// MarketplaceTier checks the record's own listing page. Direct HTTP first;
// when the marketplace blocks us, the same URL goes through the Jina Reader
// proxy. A dead or inconclusive link gets one retry against the canonical
// listing URL built from the address.
type MarketplaceTier struct {
	fetcher pageFetcher
	reader  jina.Client // optional proxy fallback
}

// NewMarketplaceTier creates the tier. reader may be nil, which disables
// the proxy fallback.
func NewMarketplaceTier(fetchTimeout time.Duration, reader jina.Client) *MarketplaceTier {
	return &MarketplaceTier{fetcher: newLocalFetcher(fetchTimeout), reader: reader}
}

func (m *MarketplaceTier) Name() string { return "marketplace" }

// Resolve classifies the record's listing page. Returns an unknown-status
// result when neither the original nor the canonical URL said anything
// decisive.
func (m *MarketplaceTier) Resolve(ctx context.Context, rec *model.PropertyRecord) (*model.AvailabilityResult, error) {
	urls := m.candidateURLs(rec)
	if len(urls) == 0 {
		return nil, eris.New("marketplace: record has no listing URL or address")
	}

	var lastErr error
	for _, u := range urls {
		cls, err := m.classifyURL(ctx, u)
		if err != nil {
			lastErr = err
			zap.L().Debug("marketplace: fetch failed",
				zap.String("url", u), zap.Error(err))
			continue
		}
		if cls.Status != model.MarketStatusUnknown {
			return &model.AvailabilityResult{
				Status:    cls.Status,
				Source:    model.SourceMarketplace,
				CheckedAt: time.Now().UTC(),
				Detail:    cls.Detail,
				Facts:     cls.Facts,
			}, nil
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "marketplace: all fetches failed")
	}
	return &model.AvailabilityResult{
		Status:    model.MarketStatusUnknown,
		Source:    model.SourceMarketplace,
		CheckedAt: time.Now().UTC(),
	}, nil
}

// candidateURLs returns the record's own URL followed by the canonical URL
// built from its address, deduplicated by normalized form.
func (m *MarketplaceTier) candidateURLs(rec *model.PropertyRecord) []string {
	var urls []string
	if rec.MarketURL != "" {
		urls = append(urls, rec.MarketURL)
	}
	if rec.HasAddress() {
		canonical := identity.CanonicalListingURL(rec.Street, rec.City, rec.State, rec.Zip)
		if canonical != "" &&
			(len(urls) == 0 || identity.NormalizeMarketURL(canonical) != identity.NormalizeMarketURL(urls[0])) {
			urls = append(urls, canonical)
		}
	}
	return urls
}

func (m *MarketplaceTier) classifyURL(ctx context.Context, u string) (Classification, error) {
	text, err := m.fetcher.Fetch(ctx, u)
	if err != nil {
		if !IsBlocked(err) || m.reader == nil {
			return Classification{}, err
		}
		zap.L().Debug("marketplace: blocked, retrying via reader proxy", zap.String("url", u))
		resp, rerr := m.reader.Read(ctx, u)
		if rerr != nil {
			return Classification{}, eris.Wrap(rerr, "marketplace: reader proxy")
		}
		text = resp.Data.Content
	}
	return Classify(text), nil
}
