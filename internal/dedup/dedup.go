// Package dedup classifies records as unique or duplicate using normalized
// identity keys and a cross-run cache.
package dedup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/identity"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/store"
)

// Deduper resolves each record against the current batch first, then the
// persistent cache. The cache is consulted without regard to run id, which
// is what catches a property re-listed in a later upload.
type Deduper struct {
	store store.Store
}

// New creates a Deduper backed by st.
func New(st store.Store) *Deduper {
	return &Deduper{store: st}
}

// Dedup classifies recs in order. Duplicates are discarded with a reason
// note; unique records move to deduped and their identity keys are appended
// to the cache. Returns (unique, duplicate) counts.
func (d *Deduper) Dedup(ctx context.Context, runID string, recs []*model.PropertyRecord) (int, int, error) {
	seenAddr := make(map[string]bool)
	seenURL := make(map[string]bool)
	var newEntries []model.DedupCacheEntry
	unique, dupes := 0, 0

	for _, rec := range recs {
		addrKey := ""
		if rec.HasAddress() {
			addrKey = identity.NormalizeAddress(rec.FullAddress())
		}
		urlKey := identity.NormalizeMarketURL(rec.MarketURL)

		reason, cached, err := d.resolve(ctx, runID, addrKey, urlKey, seenAddr, seenURL)
		if err != nil {
			return unique, dupes, err
		}
		if reason != "" {
			rec.Status = model.RecordStatusDiscarded
			rec.AddNote(reason)
			dupes++
			continue
		}

		rec.Status = model.RecordStatusDeduped
		unique++
		if addrKey != "" {
			seenAddr[addrKey] = true
		}
		if urlKey != "" {
			seenURL[urlKey] = true
		}
		if (addrKey != "" || urlKey != "") && !cached {
			newEntries = append(newEntries, model.DedupCacheEntry{
				NormalizedAddress: addrKey,
				NormalizedURL:     urlKey,
				RunID:             runID,
			})
		}
	}

	if err := d.store.InsertCacheEntries(ctx, newEntries); err != nil {
		return unique, dupes, err
	}

	zap.L().Info("dedup complete",
		zap.String("run_id", runID),
		zap.Int("unique", unique),
		zap.Int("duplicates", dupes))
	return unique, dupes, nil
}

// resolve returns a non-empty duplicate reason when the record's identity
// was seen before: batch address, batch URL, cached address, cached URL, in
// that order. Cache entries written by this same run are ignored so re-runs
// classify identically; they are reported via cached so the caller does not
// append the same keys to the cache again.
func (d *Deduper) resolve(ctx context.Context, runID, addrKey, urlKey string, seenAddr, seenURL map[string]bool) (reason string, cached bool, err error) {
	if addrKey != "" && seenAddr[addrKey] {
		return "duplicate address within batch", false, nil
	}
	if urlKey != "" && seenURL[urlKey] {
		return "duplicate listing URL within batch", false, nil
	}

	entry, err := d.store.FindCacheByAddress(ctx, addrKey)
	if err != nil {
		return "", false, err
	}
	if entry != nil {
		if entry.RunID != runID {
			return fmt.Sprintf("address already seen in run %s", entry.RunID), false, nil
		}
		cached = true
	}

	entry, err = d.store.FindCacheByURL(ctx, urlKey)
	if err != nil {
		return "", false, err
	}
	if entry != nil {
		if entry.RunID != runID {
			return fmt.Sprintf("listing URL already seen in run %s", entry.RunID), false, nil
		}
		cached = true
	}

	return "", cached, nil
}
