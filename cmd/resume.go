package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intake-cli/internal/pipeline"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Finalize a run paused for review",
	Long:  "Re-enters a run halted at awaiting_review and marks the surviving records analyzed. Extraction is not re-run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := pipeline.New(cfg, st)
		result, err := p.Resume(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "resume")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
