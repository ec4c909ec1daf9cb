// Package validate runs synchronous, side-effect-free plausibility checks
// over reconstructed records. Extraction upstream is unreliable (OCR noise,
// vision hallucination), so violations flag the record for review with a
// reason; nothing here ever discards a record.
package validate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/identity"
	"github.com/sells-group/intake-cli/internal/model"
)

// Validator checks records against configured plausibility bands.
type Validator struct {
	cfg config.ValidateConfig
}

// New creates a Validator.
func New(cfg config.ValidateConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Check flags implausible values on a single record and returns the number
// of findings. The record's processing status moves to filtered either way.
func (v *Validator) Check(rec *model.PropertyRecord) int {
	findings := 0
	flag := func(format string, args ...any) {
		rec.Flag(fmt.Sprintf(format, args...))
		findings++
	}

	if rec.AskingPrice > 0 {
		if rec.AskingPrice < v.cfg.MinPrice || rec.AskingPrice > v.cfg.MaxPrice {
			flag("asking price %d outside plausible band [%d, %d]", rec.AskingPrice, v.cfg.MinPrice, v.cfg.MaxPrice)
		}
	}

	if rec.AskingPrice > 0 && rec.Rent > 0 {
		yield := float64(rec.Rent*12) / float64(rec.AskingPrice) * 100
		if yield < v.cfg.MinYieldPct || yield > v.cfg.MaxYieldPct {
			flag("annualized yield %.1f%% outside plausible band [%.1f%%, %.1f%%]", yield, v.cfg.MinYieldPct, v.cfg.MaxYieldPct)
		}
	}

	if rec.AskingPrice > 0 && rec.RehabEstimate > 0 && rec.ARV > 0 {
		allIn := float64(rec.AskingPrice + rec.RehabEstimate)
		if allIn > float64(rec.ARV)*(1+v.cfg.ARVHeadroomPct/100) {
			flag("price plus rehab %d exceeds ARV %d by more than %.0f%%", rec.AskingPrice+rec.RehabEstimate, rec.ARV, v.cfg.ARVHeadroomPct)
		}
	}

	if rec.MarketURL != "" && rec.Street != "" {
		if d := identity.DecodeSlug(rec.MarketURL); d != nil {
			urlNum := identity.StreetNumber(d.Street)
			addrNum := identity.StreetNumber(rec.Street)
			if urlNum != "" && addrNum != "" && urlNum != addrNum {
				flag("marketplace URL street number %s disagrees with parsed address %s", urlNum, addrNum)
			}
		}
	}

	if rec.RentMin > 0 && rec.RentMax > 0 && rec.RentMin > rec.RentMax {
		flag("rent range lower bound %d exceeds upper bound %d", rec.RentMin, rec.RentMax)
	}
	if rec.ARVMin > 0 && rec.ARVMax > 0 && rec.ARVMin > rec.ARVMax {
		flag("arv range lower bound %d exceeds upper bound %d", rec.ARVMin, rec.ARVMax)
	}

	if rec.RehabEstimate < 0 || rec.RehabEstimate > v.cfg.MaxRehab {
		flag("implausible rehab estimate %d", rec.RehabEstimate)
	}

	return findings
}

// CheckAll validates a batch, moving each record to filtered, and returns
// how many records were flagged.
func (v *Validator) CheckAll(records []*model.PropertyRecord) int {
	flagged := 0
	for _, rec := range records {
		if v.Check(rec) > 0 {
			flagged++
		}
		rec.Status = model.RecordStatusFiltered
	}

	zap.L().Info("validate: batch checked",
		zap.Int("records", len(records)),
		zap.Int("flagged", flagged),
	)
	return flagged
}
