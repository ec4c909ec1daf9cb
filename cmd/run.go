package main

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/pipeline"
)

var runAwaitReview bool

var runCmd = &cobra.Command{
	Use:   "run <pdf> [pdf...]",
	Short: "Process one or more listing sheet PDFs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := pipeline.New(cfg, st)
		p.AwaitReview = runAwaitReview

		// Each document is its own run; runs share the store and the
		// cross-run dedup cache.
		var mu sync.Mutex
		results := make([]*model.RunResult, 0, len(args))

		g, gctx := errgroup.WithContext(ctx)
		limit := cfg.Batch.MaxConcurrentDocs
		if limit <= 0 {
			limit = 1
		}
		g.SetLimit(limit)

		for _, path := range args {
			g.Go(func() error {
				result, runErr := p.Run(gctx, path)
				if runErr != nil {
					zap.L().Error("run failed",
						zap.String("source", path), zap.Error(runErr))
					return eris.Wrapf(runErr, "run %s", path)
				}
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(results[0])
		}
		return enc.Encode(results)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runAwaitReview, "await-review", false, "pause after availability resolution for manual review")
	rootCmd.AddCommand(runCmd)
}
