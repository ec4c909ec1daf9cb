package model

import "time"

// RunStage represents the current stage of an intake run.
type RunStage string

const (
	RunStageQueued         RunStage = "queued"
	RunStageSplitting      RunStage = "splitting"
	RunStageAcquiring      RunStage = "acquiring"
	RunStageExtracting     RunStage = "extracting"
	RunStageValidating     RunStage = "validating"
	RunStageDeduping       RunStage = "deduping"
	RunStageResolving      RunStage = "resolving"
	RunStageAwaitingReview RunStage = "awaiting_review"
	RunStageFinalizing     RunStage = "finalizing"
	RunStageComplete       RunStage = "complete"
	RunStageFailed         RunStage = "failed"
)

// StageCounters tracks per-stage progress counts, polled by status readers.
type StageCounters struct {
	Pages       int `json:"pages"`
	Chunks      int `json:"chunks"`
	Extracted   int `json:"extracted"`
	Filtered    int `json:"filtered"`
	Deduped     int `json:"deduped"`
	Duplicates  int `json:"duplicates"`
	Unavailable int `json:"unavailable"`
	Analyzed    int `json:"analyzed"`
}

// RunState is the externally polled snapshot of a run. The pipeline is the
// single writer; it persists a consistent snapshot after every stage.
type RunState struct {
	Stage    RunStage      `json:"stage"`
	Progress int           `json:"progress"`
	Step     string        `json:"step"`
	Counters StageCounters `json:"counters"`
	Error    string        `json:"error,omitempty"`
}

// Run represents a single intake run over one uploaded document.
type Run struct {
	ID         string     `json:"id"`
	SourceFile string     `json:"source_file"`
	State      RunState   `json:"state"`
	Result     *RunResult `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// StageResult holds the outcome of a single pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Stage    RunStage       `json:"stage"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunResult is the final output of a pipeline run.
type RunResult struct {
	RunID    string        `json:"run_id"`
	Unique   int           `json:"unique"`
	Dupes    int           `json:"duplicates"`
	Flagged  int           `json:"flagged"`
	Stages   []StageResult `json:"stages"`
	Counters StageCounters `json:"counters"`
}
