package availability

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/model"
)

// Tier resolves a single record's marketplace status. Tiers are tried in
// order; the first non-unknown classification wins.
type Tier interface {
	Name() string
	Resolve(ctx context.Context, rec *model.PropertyRecord) (*model.AvailabilityResult, error)
}

// Resolver walks records through the tier chain under a fixed inter-record
// delay and a hard per-record timeout. A record that exhausts every tier, or
// blows the timeout, is stamped unknown rather than failing the stage.
type Resolver struct {
	tiers   []Tier
	limiter *rate.Limiter
	timeout time.Duration
}

// Summary counts the outcomes of one resolution pass.
type Summary struct {
	Resolved    int
	Unavailable int
	Unknown     int
}

// NewResolver builds a resolver over the given tiers.
func NewResolver(cfg config.AvailabilityConfig, tiers ...Tier) *Resolver {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if d := cfg.Delay(); d > 0 {
		limiter = rate.NewLimiter(rate.Every(d), 1)
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Resolver{tiers: tiers, limiter: limiter, timeout: timeout}
}

// ResolveAll stamps every non-terminal record in place and returns outcome
// counts. Records that already carry a manual or imported status are left
// untouched.
func (r *Resolver) ResolveAll(ctx context.Context, recs []*model.PropertyRecord) (*Summary, error) {
	sum := &Summary{}
	for _, rec := range recs {
		if rec.Terminal() {
			continue
		}
		if rec.StatusSource == string(model.SourceManual) || rec.StatusSource == string(model.SourceImported) {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return sum, err
		}

		result := r.resolveOne(ctx, rec)
		Apply(rec, result)

		switch result.Status {
		case model.MarketStatusUnknown:
			sum.Unknown++
		case model.MarketStatusSold, model.MarketStatusPending, model.MarketStatusOffMarket:
			sum.Unavailable++
			sum.Resolved++
		default:
			sum.Resolved++
		}
	}
	zap.L().Info("availability: pass complete",
		zap.Int("resolved", sum.Resolved),
		zap.Int("unavailable", sum.Unavailable),
		zap.Int("unknown", sum.Unknown))
	return sum, nil
}

// resolveOne runs the tier chain under the hard timeout. The chain runs in a
// goroutine so that a hung fetch degrades the record instead of stalling the
// whole pass.
func (r *Resolver) resolveOne(ctx context.Context, rec *model.PropertyRecord) *model.AvailabilityResult {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan *model.AvailabilityResult, 1)
	go func() {
		done <- r.runChain(runCtx, rec)
	}()

	select {
	case result := <-done:
		return result
	case <-runCtx.Done():
		zap.L().Warn("availability: record timed out",
			zap.String("record", rec.ID),
			zap.Duration("timeout", r.timeout))
		return &model.AvailabilityResult{
			Status:    model.MarketStatusUnknown,
			Source:    model.SourceNone,
			CheckedAt: time.Now().UTC(),
			Detail:    "resolution timed out",
		}
	}
}

func (r *Resolver) runChain(ctx context.Context, rec *model.PropertyRecord) *model.AvailabilityResult {
	for _, tier := range r.tiers {
		if ctx.Err() != nil {
			break
		}
		result, err := tier.Resolve(ctx, rec)
		if err != nil {
			zap.L().Debug("availability: tier failed",
				zap.String("tier", tier.Name()),
				zap.String("record", rec.ID),
				zap.Error(err))
			continue
		}
		if result != nil && result.Status != model.MarketStatusUnknown {
			return result
		}
	}
	return &model.AvailabilityResult{
		Status:    model.MarketStatusUnknown,
		Source:    model.SourceNone,
		CheckedAt: time.Now().UTC(),
		Detail:    "no tier produced a status",
	}
}

// Apply stamps a resolution result onto the record: status fields always,
// structural facts only into zero-valued slots.
func Apply(rec *model.PropertyRecord, result *model.AvailabilityResult) {
	rec.MarketStatus = result.Status
	rec.StatusSource = string(result.Source)
	checked := result.CheckedAt
	rec.StatusCheckedAt = &checked
	if result.Detail != "" {
		rec.AddNote(result.Detail)
	}
	if f := result.Facts; f != nil {
		if rec.Beds == 0 && f.Beds > 0 {
			rec.Beds = f.Beds
		}
		if rec.Baths == 0 && f.Baths > 0 {
			rec.Baths = f.Baths
		}
		if rec.Sqft == 0 && f.Sqft > 0 {
			rec.Sqft = f.Sqft
		}
		if rec.YearBuilt == 0 && f.YearBuilt > 0 {
			rec.YearBuilt = f.YearBuilt
		}
		if rec.ARV == 0 && f.Estimate > 0 {
			rec.ARV = f.Estimate
			rec.AddNote("arv backfilled from marketplace estimate")
		}
	}
}
