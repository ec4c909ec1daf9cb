package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/availability"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/store"
)

var importReportFile string

var importReportCmd = &cobra.Command{
	Use:   "import-report <run-id>",
	Short: "Import a manually prepared availability report",
	Long:  "Reads \"address | STATUS | details\" lines and stamps matching records with an imported status, overriding whatever the resolver found.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := os.Open(importReportFile)
		if err != nil {
			return eris.Wrap(err, "open report")
		}
		defer f.Close() //nolint:errcheck

		lines, parseFailures, err := availability.ParseReport(f)
		if err != nil {
			return err
		}

		recs, err := st.ListRecords(ctx, store.RecordFilter{RunID: args[0]})
		if err != nil {
			return eris.Wrap(err, "load records")
		}
		if len(recs) == 0 {
			return eris.Errorf("no records found for run %s", args[0])
		}
		records := make([]*model.PropertyRecord, len(recs))
		for i := range recs {
			records[i] = &recs[i]
		}

		applied, matchFailures := availability.ApplyReport(records, lines)
		if err := st.UpsertRecords(ctx, records); err != nil {
			return eris.Wrap(err, "save records")
		}

		zap.L().Info("report imported",
			zap.String("run", args[0]),
			zap.Int("applied", applied),
			zap.Int("failures", len(parseFailures)+len(matchFailures)))

		fmt.Printf("Applied %d of %d lines.\n", applied, len(lines)+len(parseFailures))
		for _, fail := range parseFailures {
			fmt.Fprintf(os.Stderr, "  skipped: %s (%s)\n", fail.Line, fail.Reason)
		}
		for _, fail := range matchFailures {
			fmt.Fprintf(os.Stderr, "  unmatched: %s (%s)\n", fail.Line, fail.Reason)
		}
		return nil
	},
}

func init() {
	importReportCmd.Flags().StringVar(&importReportFile, "file", "", "path to the report file (required)")
	_ = importReportCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importReportCmd)
}
