package main

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intake-cli/internal/model"
)

var (
	overrideStatus string
	overrideField  string
	overrideValue  string
	overrideReason string
)

var overrideCmd = &cobra.Command{
	Use:   "override <record-id>",
	Short: "Manually override a record during review",
	Long:  "Overwrites a record's market status or corrects a single field. Manual statuses are never re-resolved.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if overrideStatus == "" && overrideField == "" {
			return eris.New("nothing to do: pass --status or --field")
		}
		if overrideField != "" && overrideValue == "" {
			return eris.New("--field requires --value")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetRecord(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "override")
		}

		if overrideStatus != "" {
			status, ok := parseMarketStatus(overrideStatus)
			if !ok {
				return eris.Errorf("unknown market status %q", overrideStatus)
			}
			now := time.Now().UTC()
			rec.MarketStatus = status
			rec.StatusSource = string(model.SourceManual)
			rec.StatusCheckedAt = &now
			if overrideReason != "" {
				rec.AddNote(overrideReason)
			}
		}

		if overrideField != "" {
			err := rec.ApplyCorrection(model.Correction{
				Field:     model.CorrectionField(overrideField),
				Extracted: extractedValue(rec, model.CorrectionField(overrideField)),
				Corrected: overrideValue,
				Reason:    overrideReason,
			})
			if err != nil {
				return err
			}
		}

		if err := st.UpsertRecords(ctx, []*model.PropertyRecord{rec}); err != nil {
			return eris.Wrap(err, "save record")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func parseMarketStatus(s string) (model.MarketStatus, bool) {
	switch model.MarketStatus(s) {
	case model.MarketStatusActive, model.MarketStatusPending, model.MarketStatusSold,
		model.MarketStatusOffMarket, model.MarketStatusUnknown, model.MarketStatusNeedsReview:
		return model.MarketStatus(s), true
	}
	return "", false
}

// extractedValue renders the record's current value for the correction note.
func extractedValue(rec *model.PropertyRecord, field model.CorrectionField) string {
	switch field {
	case model.CorrectionAskingPrice:
		return strconv.Itoa(rec.AskingPrice)
	case model.CorrectionRent:
		return strconv.Itoa(rec.Rent)
	case model.CorrectionARV:
		return strconv.Itoa(rec.ARV)
	case model.CorrectionRehab:
		return strconv.Itoa(rec.RehabEstimate)
	case model.CorrectionStreet:
		return rec.Street
	case model.CorrectionZip:
		return rec.Zip
	}
	return ""
}

func init() {
	overrideCmd.Flags().StringVar(&overrideStatus, "status", "", "market status to set (active, pending, sold, off_market, unknown)")
	overrideCmd.Flags().StringVar(&overrideField, "field", "", "record field to correct (asking_price, rent, arv, rehab_estimate, street, zip)")
	overrideCmd.Flags().StringVar(&overrideValue, "value", "", "corrected value for --field")
	overrideCmd.Flags().StringVar(&overrideReason, "reason", "", "note recorded with the override")
	rootCmd.AddCommand(overrideCmd)
}
