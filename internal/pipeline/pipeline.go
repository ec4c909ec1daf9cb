// Package pipeline orchestrates an intake run end to end: split, acquire,
// reconstruct, validate, dedup, availability, finalize. The pipeline is the
// single writer of run state; a consistent snapshot is persisted after every
// stage so status readers never see a half-applied stage.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/acquire"
	"github.com/sells-group/intake-cli/internal/availability"
	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/dedup"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/ocr"
	"github.com/sells-group/intake-cli/internal/reconstruct"
	"github.com/sells-group/intake-cli/internal/split"
	"github.com/sells-group/intake-cli/internal/store"
	"github.com/sells-group/intake-cli/internal/validate"
	"github.com/sells-group/intake-cli/pkg/jina"
)

// Narrow stage interfaces so tests can substitute fakes for the stages that
// touch the filesystem or the network.
type chunkSplitter interface {
	Split(ctx context.Context, runID, srcPath string) ([]model.PageChunk, error)
}

type textAcquirer interface {
	Acquire(ctx context.Context, chunks []model.PageChunk) (*acquire.Result, error)
}

type recordDeduper interface {
	Dedup(ctx context.Context, runID string, recs []*model.PropertyRecord) (int, int, error)
}

type statusResolver interface {
	ResolveAll(ctx context.Context, recs []*model.PropertyRecord) (*availability.Summary, error)
}

// Pipeline runs intake documents through every processing stage.
type Pipeline struct {
	cfg   *config.Config
	store store.Store

	splitter      chunkSplitter
	acquirer      textAcquirer
	reconstructor *reconstruct.Reconstructor
	validator     *validate.Validator
	deduper       recordDeduper
	resolver      statusResolver

	// AwaitReview halts the run after availability resolution; resume picks
	// it up at finalize.
	AwaitReview bool
}

// New wires a Pipeline from config. Tiers whose services are not configured
// are silently degraded rather than failing construction.
func New(cfg *config.Config, st store.Store) *Pipeline {
	var vision acquire.VisionExtractor
	if v := acquire.NewVision(cfg.Vision); v != nil {
		vision = v
	} else {
		zap.L().Debug("pipeline: vision tier disabled, no api key")
	}

	fallback, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		zap.L().Warn("pipeline: ocr tier disabled", zap.Error(err))
		fallback = nil
	}

	var jinaClient jina.Client
	if cfg.Jina.Key != "" {
		opts := []jina.Option{}
		if cfg.Jina.BaseURL != "" {
			opts = append(opts, jina.WithBaseURL(cfg.Jina.BaseURL))
		}
		if cfg.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		jinaClient = jina.NewClient(cfg.Jina.Key, opts...)
	} else {
		zap.L().Debug("pipeline: jina tiers disabled, no api key")
	}

	tiers := []availability.Tier{
		availability.NewMarketplaceTier(cfg.Availability.FetchTimeout(), jinaClient),
	}
	if jinaClient != nil {
		tiers = append(tiers, availability.NewSearchTier(jinaClient))
	}
	if cfg.Browser.Enabled {
		tiers = append(tiers, availability.NewBrowserTier(cfg.Browser))
	}

	return &Pipeline{
		cfg:           cfg,
		store:         st,
		splitter:      split.New(cfg.Split),
		acquirer:      acquire.New(cfg.Acquire, nil, vision, fallback),
		reconstructor: reconstruct.New(),
		validator:     validate.New(cfg.Validate),
		deduper:       dedup.New(st),
		resolver:      availability.NewResolver(cfg.Availability, tiers...),
	}
}

// stageProgress maps each stage to its percent-complete after it finishes.
var stageProgress = map[model.RunStage]int{
	model.RunStageSplitting:  15,
	model.RunStageAcquiring:  40,
	model.RunStageExtracting: 55,
	model.RunStageValidating: 65,
	model.RunStageDeduping:   75,
	model.RunStageResolving:  90,
	model.RunStageFinalizing: 100,
}

// Run processes one source document from split through finalize (or through
// awaiting_review when AwaitReview is set). A stage error fails the run;
// counters from completed stages are preserved in the failed state.
func (p *Pipeline) Run(ctx context.Context, sourcePath string) (*model.RunResult, error) {
	run, err := p.store.CreateRun(ctx, sourcePath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	log := zap.L().With(zap.String("run", run.ID), zap.String("source", sourcePath))
	log.Info("pipeline: starting intake run")

	state := run.State
	result := &model.RunResult{RunID: run.ID}

	persist := func() {
		if err := p.store.UpdateRunState(ctx, run.ID, state); err != nil {
			log.Warn("pipeline: failed to persist run state", zap.Error(err))
		}
	}

	trackStage := func(stage model.RunStage, step string, fn func() error) error {
		state.Stage = stage
		state.Step = step
		persist()

		start := time.Now()
		stageErr := fn()
		sr := model.StageResult{
			Name:     step,
			Stage:    stage,
			Duration: time.Since(start).Milliseconds(),
		}
		if stageErr != nil {
			sr.Error = stageErr.Error()
			result.Stages = append(result.Stages, sr)
			state.Stage = model.RunStageFailed
			state.Error = stageErr.Error()
			result.Counters = state.Counters
			persist()
			log.Error("pipeline: stage failed",
				zap.String("stage", step), zap.Error(stageErr))
			return stageErr
		}
		result.Stages = append(result.Stages, sr)
		state.Progress = stageProgress[stage]
		persist()
		log.Info("pipeline: stage complete",
			zap.String("stage", step),
			zap.Duration("duration", time.Since(start)))
		return nil
	}

	var chunks []model.PageChunk
	if err := trackStage(model.RunStageSplitting, "split", func() error {
		var splitErr error
		chunks, splitErr = p.splitter.Split(ctx, run.ID, sourcePath)
		if splitErr != nil {
			return splitErr
		}
		state.Counters.Chunks = len(chunks)
		for _, c := range chunks {
			state.Counters.Pages += c.LastPage - c.FirstPage + 1
		}
		return nil
	}); err != nil {
		return result, err
	}

	var acquired *acquire.Result
	if err := trackStage(model.RunStageAcquiring, "acquire", func() error {
		var acqErr error
		acquired, acqErr = p.acquirer.Acquire(ctx, chunks)
		return acqErr
	}); err != nil {
		return result, err
	}

	var records []*model.PropertyRecord
	if err := trackStage(model.RunStageExtracting, "reconstruct", func() error {
		records = p.reconstructor.Build(run.ID, acquired.PageText)
		records = append(records, acquired.VisionCandidates...)
		state.Counters.Extracted = len(records)
		return p.store.UpsertRecords(ctx, records)
	}); err != nil {
		return result, err
	}

	if err := trackStage(model.RunStageValidating, "validate", func() error {
		result.Flagged = p.validator.CheckAll(records)
		state.Counters.Filtered = len(records)
		return p.store.UpsertRecords(ctx, records)
	}); err != nil {
		return result, err
	}

	if err := trackStage(model.RunStageDeduping, "dedup", func() error {
		unique, dupes, dedupErr := p.deduper.Dedup(ctx, run.ID, records)
		if dedupErr != nil {
			return dedupErr
		}
		state.Counters.Deduped = unique
		state.Counters.Duplicates = dupes
		result.Unique = unique
		result.Dupes = dupes
		return p.store.UpsertRecords(ctx, records)
	}); err != nil {
		return result, err
	}

	if err := trackStage(model.RunStageResolving, "availability", func() error {
		survivors := surviving(records)
		sum, resolveErr := p.resolver.ResolveAll(ctx, survivors)
		if resolveErr != nil {
			return resolveErr
		}
		state.Counters.Unavailable = sum.Unavailable
		return p.store.UpsertRecords(ctx, survivors)
	}); err != nil {
		return result, err
	}

	if p.AwaitReview {
		state.Stage = model.RunStageAwaitingReview
		state.Step = "awaiting_review"
		result.Counters = state.Counters
		persist()
		if err := p.store.UpdateRunResult(ctx, run.ID, result); err != nil {
			log.Warn("pipeline: failed to persist run result", zap.Error(err))
		}
		log.Info("pipeline: run paused for review",
			zap.Int("deduped", state.Counters.Deduped))
		return result, nil
	}

	if err := trackStage(model.RunStageFinalizing, "finalize", func() error {
		analyzed, finErr := p.finalizeRecords(ctx, records)
		if finErr != nil {
			return finErr
		}
		state.Counters.Analyzed = analyzed
		return nil
	}); err != nil {
		return result, err
	}

	state.Stage = model.RunStageComplete
	state.Step = "complete"
	result.Counters = state.Counters
	persist()
	if err := p.store.UpdateRunResult(ctx, run.ID, result); err != nil {
		log.Warn("pipeline: failed to persist run result", zap.Error(err))
	}

	log.Info("pipeline: run complete",
		zap.Int("unique", result.Unique),
		zap.Int("duplicates", result.Dupes),
		zap.Int("flagged", result.Flagged),
		zap.Int("analyzed", state.Counters.Analyzed))
	return result, nil
}

// Resume finalizes a run paused at awaiting_review. Extraction is not
// re-run; the persisted records are loaded and the survivors marked
// analyzed.
func (p *Pipeline) Resume(ctx context.Context, runID string) (*model.RunResult, error) {
	run, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.State.Stage != model.RunStageAwaitingReview {
		return nil, eris.Errorf("pipeline: run %s is %s, not awaiting review", runID, run.State.Stage)
	}

	log := zap.L().With(zap.String("run", runID))
	log.Info("pipeline: resuming run")

	recs, err := p.store.ListRecords(ctx, store.RecordFilter{RunID: runID})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load records")
	}
	records := make([]*model.PropertyRecord, len(recs))
	for i := range recs {
		records[i] = &recs[i]
	}

	state := run.State
	result := run.Result
	if result == nil {
		result = &model.RunResult{RunID: runID, Counters: state.Counters}
	}

	state.Stage = model.RunStageFinalizing
	state.Step = "finalize"
	if err := p.store.UpdateRunState(ctx, runID, state); err != nil {
		log.Warn("pipeline: failed to persist run state", zap.Error(err))
	}

	start := time.Now()
	analyzed, err := p.finalizeRecords(ctx, records)
	sr := model.StageResult{
		Name:     "finalize",
		Stage:    model.RunStageFinalizing,
		Duration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		sr.Error = err.Error()
		result.Stages = append(result.Stages, sr)
		state.Stage = model.RunStageFailed
		state.Error = err.Error()
		_ = p.store.UpdateRunState(ctx, runID, state)
		return result, err
	}
	result.Stages = append(result.Stages, sr)

	state.Counters.Analyzed = analyzed
	state.Stage = model.RunStageComplete
	state.Step = "complete"
	state.Progress = 100
	result.Counters = state.Counters
	if err := p.store.UpdateRunState(ctx, runID, state); err != nil {
		log.Warn("pipeline: failed to persist run state", zap.Error(err))
	}
	if err := p.store.UpdateRunResult(ctx, runID, result); err != nil {
		log.Warn("pipeline: failed to persist run result", zap.Error(err))
	}

	log.Info("pipeline: run complete", zap.Int("analyzed", analyzed))
	return result, nil
}

// finalizeRecords marks every surviving record analyzed and persists the
// batch. Flagged records stay reviewable but still count as analyzed;
// discarding them is the reviewer's call, not the pipeline's.
func (p *Pipeline) finalizeRecords(ctx context.Context, records []*model.PropertyRecord) (int, error) {
	survivors := surviving(records)
	for _, rec := range survivors {
		rec.Status = model.RecordStatusAnalyzed
	}
	if err := p.store.UpsertRecords(ctx, survivors); err != nil {
		return 0, err
	}
	return len(survivors), nil
}

// surviving returns the records still in play after dedup.
func surviving(records []*model.PropertyRecord) []*model.PropertyRecord {
	out := make([]*model.PropertyRecord, 0, len(records))
	for _, rec := range records {
		if rec.Status == model.RecordStatusDiscarded {
			continue
		}
		out = append(out, rec)
	}
	return out
}
