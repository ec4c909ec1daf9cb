package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intake-cli/internal/model"
)

var (
	statusWatch    bool
	statusInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the current state of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		for {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "status")
			}

			if !statusWatch {
				return enc.Encode(run.State)
			}

			fmt.Printf("%s  stage=%s  progress=%d%%  step=%s\n",
				time.Now().Format("15:04:05"), run.State.Stage, run.State.Progress, run.State.Step)

			if terminalStage(run.State.Stage) {
				return enc.Encode(run.State)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(statusInterval):
			}
		}
	},
}

// terminalStage reports whether a run will make no further progress on its
// own. awaiting_review is terminal here; only resume moves it.
func terminalStage(stage model.RunStage) bool {
	switch stage {
	case model.RunStageComplete, model.RunStageFailed, model.RunStageAwaitingReview:
		return true
	}
	return false
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "poll until the run reaches a terminal stage")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 2*time.Second, "poll interval with --watch")
	rootCmd.AddCommand(statusCmd)
}
