package reconstruct

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/identity"
	"github.com/sells-group/intake-cli/internal/model"
)

// Reconstructor builds property records from acquired page text.
type Reconstructor struct{}

// New creates a Reconstructor.
func New() *Reconstructor {
	return &Reconstructor{}
}

// Build runs all four reconstruction passes over the page→text map and
// returns the run's candidate records in page order.
func (r *Reconstructor) Build(runID string, pages map[int]string) []*model.PropertyRecord {
	pageNums := make([]int, 0, len(pages))
	for p := range pages {
		pageNums = append(pageNums, p)
	}
	sort.Ints(pageNums)

	// Pass 1: single-page splitting.
	perPage := make(map[int][]*model.PropertyRecord, len(pages))
	for _, p := range pageNums {
		perPage[p] = parsePage(pages[p], p)
	}

	// Pass 2: boundary merge for pages that yielded nothing on their own.
	for _, p := range pageNums {
		if len(perPage[p]) > 0 {
			continue
		}
		prev, ok := pages[p-1]
		if !ok {
			continue
		}
		merged := mergeBoundary(prev, pages[p], p)
		if len(merged) > 0 {
			zap.L().Debug("reconstruct: boundary merge recovered records",
				zap.Int("page", p),
				zap.Int("records", len(merged)),
			)
			perPage[p] = merged
		}
	}

	var records []*model.PropertyRecord
	for _, p := range pageNums {
		records = append(records, perPage[p]...)
	}

	// Pass 3: forward price completion.
	completeForwardPrices(records, pages)

	// Pass 4: in-batch collapse.
	records = collapseInBatch(records)

	now := time.Now().UTC()
	for _, rec := range records {
		rec.ID = uuid.New().String()
		rec.RunID = runID
		rec.CreatedAt = now
		rec.UpdatedAt = now
	}

	zap.L().Info("reconstruct: build complete",
		zap.String("run_id", runID),
		zap.Int("pages", len(pages)),
		zap.Int("records", len(records)),
	)

	return records
}

func parsePage(text string, page int) []*model.PropertyRecord {
	var out []*model.PropertyRecord
	for _, seg := range splitListings(text) {
		if rec := parseCandidate(seg, page); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// mergeBoundary concatenates the previous page's text before the current
// page's and re-runs single-page splitting. A candidate is accepted as new
// only when at least one of its money values appears, in some accepted
// surface form, in the current page's text specifically; otherwise it
// belongs wholly to the previous page and would be double-counted.
func mergeBoundary(prevText, curText string, page int) []*model.PropertyRecord {
	var out []*model.PropertyRecord
	for _, rec := range parsePage(prevText+"\n"+curText, page) {
		if !valueOriginatesFrom(rec, curText) {
			continue
		}
		rec.AddNote(fmt.Sprintf("merged across page boundary %d-%d", page-1, page))
		out = append(out, rec)
	}
	return out
}

func valueOriginatesFrom(rec *model.PropertyRecord, text string) bool {
	for _, v := range []int{rec.AskingPrice, rec.SuggestedOffer, rec.Rent, rec.RentMin, rec.ARV, rec.ARVMin} {
		if v > 0 && ContainsValue(text, v) {
			return true
		}
	}
	return false
}

// completeForwardPrices fills the asking price of rent-only records from the
// next page's text when a money token sits near an "asking"/"price" label
// there.
func completeForwardPrices(records []*model.PropertyRecord, pages map[int]string) {
	for _, rec := range records {
		if rec.AskingPrice != 0 || rec.Rent == 0 {
			continue
		}
		next, ok := pages[rec.SourcePage+1]
		if !ok {
			continue
		}
		if v, found := labeledValue(next, askingLabelRe, true); found {
			rec.AskingPrice = v
			rec.AddNote(fmt.Sprintf("asking price completed from page %d", rec.SourcePage+1))
		}
	}
}

// collapseInBatch keeps the first occurrence of each normalized address or
// marketplace URL within the run. The full address is the collapse key, same
// as the dedup stage, so two streets that read alike in different cities
// stay distinct records.
func collapseInBatch(records []*model.PropertyRecord) []*model.PropertyRecord {
	seenAddr := make(map[string]bool)
	seenURL := make(map[string]bool)

	var out []*model.PropertyRecord
	for _, rec := range records {
		addr := identity.NormalizeAddress(rec.FullAddress())
		u := identity.NormalizeMarketURL(rec.MarketURL)

		if (addr != "" && seenAddr[addr]) || (u != "" && seenURL[u]) {
			zap.L().Debug("reconstruct: collapsing in-batch duplicate",
				zap.String("street", rec.Street),
				zap.Int("page", rec.SourcePage),
			)
			continue
		}
		if addr != "" {
			seenAddr[addr] = true
		}
		if u != "" {
			seenURL[u] = true
		}
		out = append(out, rec)
	}
	return out
}
